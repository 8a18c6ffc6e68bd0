// Package e2e provides end-to-end tests against a large synthetic codebase with multiple queries.
package e2e

import (
	"fmt"
	"strings"
)

// CorpusFile is one synthetic source file in the E2E corpus: a relative
// path and the function it declares, following the MockParser convention.
type CorpusFile struct {
	RelPath      string
	FunctionName string
	EntityID     string // deterministic test-local id, for assertions only
}

// QueryTestCase defines a query and the entity name(s) that must appear in search results.
// At least one of ExpectedNames must be present in the combined keyword+semantic results.
type QueryTestCase struct {
	Query         string
	ExpectedNames []string
	Description   string
}

// Corpus holds source files and query test cases for E2E tests.
type Corpus struct {
	Files        []CorpusFile
	TestCases    []QueryTestCase
	TotalFiles   int
	TotalQueries int
}

// BuildCorpus returns a corpus of 100 synthetic source files with varied
// function names and multiple query test cases. Each file declares one
// function whose name is a unique descriptive phrase, so queries can
// assert the correct entity is returned.
func BuildCorpus() *Corpus {
	files := buildFiles(100)
	cases := buildQueryTestCases(files)
	return &Corpus{
		Files:        files,
		TestCases:    cases,
		TotalFiles:   len(files),
		TotalQueries: len(cases),
	}
}

func buildFiles(n int) []CorpusFile {
	topics := []string{
		"Python programming language", "Kubernetes container orchestration", "React hooks and components",
		"Go golang concurrency", "PostgreSQL relational database", "Docker container images",
		"machine learning algorithms", "neural network deep learning", "REST API endpoints",
		"GraphQL query language", "TypeScript type system", "Redis in-memory cache",
		"Elasticsearch full-text search", "AWS Lambda serverless", "Terraform infrastructure as code",
		"Prometheus monitoring metrics", "gRPC remote procedure calls", "OAuth 2.0 authorization",
		"JWT JSON web tokens", "CI/CD continuous integration", "Git version control",
		"SQL structured query language", "microservices architecture", "Apache Kafka streaming",
		"Nginx reverse proxy", "object-oriented programming", "functional programming paradigm",
		"design patterns software", "API versioning strategy", "database indexing performance",
		"cryptography encryption decryption", "HTTPS TLS SSL certificates", "load balancing high availability",
		"caching strategy invalidation", "event sourcing CQRS", "domain-driven design DDD",
		"Agile Scrum sprint", "unit testing mock", "integration testing E2E",
		"dependency injection DI", "semantic search embeddings", "keyword search full-text",
		"hybrid search fusion", "vector database similarity", "embedding models sentence",
		"chunking strategy overlap", "RAG retrieval augmented", "LLM fine-tuning training",
		"prompt engineering few-shot", "OpenAPI specification", "WebSocket real-time protocol",
		"message queue asynchronous", "rate limiting throttling", "circuit breaker resilience",
		"feature flags rollout", "A/B testing experiment", "logging structured logs",
		"distributed tracing spans", "security headers CORS", "input validation sanitization",
		"password hashing bcrypt", "RBAC role-based access", "audit logging compliance",
		"backup strategy recovery", "disaster recovery DR", "horizontal scaling sharding",
		"vertical scaling resources", "cost optimization cloud", "green computing sustainability",
		"accessibility WCAG guidelines", "internationalization i18n locale", "mobile first responsive",
		"progressive web app PWA", "server-side rendering SSR", "static site generation SSG",
		"edge computing latency", "serverless cold start", "graph database Neo4j",
		"time-series database metrics", "document store MongoDB", "key-value store caching",
		"CAP theorem consistency", "ACID transactions database", "eventually consistent systems",
		"CRDT conflict-free replication", "zero trust security", "defense in depth layers",
		"penetration testing pentest", "code review pull request", "documentation API docs",
		"onboarding guide new hires", "incident response runbook", "post-mortem blameless",
		"SLO SLI reliability", "chaos engineering resilience", "blue-green deployment",
		"canary release gradual", "feature branch workflow", "trunk-based development",
		"refactoring code quality", "technical debt payoff", "code coverage tests",
		"performance profiling tools", "memory leak debugging", "deadlock detection concurrency",
	}

	out := make([]CorpusFile, 0, n)
	for i := 0; i < n && i < len(topics); i++ {
		out = append(out, corpusFileFor(i, topics[i]))
	}
	for len(out) < n {
		i := len(out)
		out = append(out, corpusFileFor(i, fmt.Sprintf("%s variant %d", topics[i%len(topics)], i)))
	}
	return out
}

func corpusFileFor(i int, phrase string) CorpusFile {
	return CorpusFile{
		RelPath:      fmt.Sprintf("pkg/topic%03d/handler.go", i+1),
		FunctionName: phrase,
		EntityID:     fmt.Sprintf("e2e-entity-%03d", i+1),
	}
}

// Source renders the file's MockParser-convention source text.
func (f CorpusFile) Source() string {
	return fmt.Sprintf("function %s(ctx) {\n  process(ctx)\n}\n", f.FunctionName)
}

func buildQueryTestCases(files []CorpusFile) []QueryTestCase {
	if len(files) == 0 {
		return nil
	}
	var cases []QueryTestCase
	for _, f := range files {
		words := strings.Fields(f.FunctionName)
		if len(words) < 2 {
			continue
		}
		query := strings.Join(words[:2], " ")
		cases = append(cases, QueryTestCase{
			Query:         query,
			ExpectedNames: []string{f.FunctionName},
			Description:   fmt.Sprintf("query %q should return entity %q", query, f.FunctionName),
		})
		if len(cases) >= 50 {
			break
		}
	}
	return cases
}
