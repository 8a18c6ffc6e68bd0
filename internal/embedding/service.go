package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/hyperjump/codesight/internal/codeerr"
	"github.com/hyperjump/codesight/internal/models"
	"github.com/hyperjump/codesight/internal/storage"
)

// ContentHash derives the cache/storage key for a (model, text) pair so that
// re-embedding identical content under the same model is a pure lookup.
func ContentHash(model models.ModelDescriptor, text string) string {
	sum := sha256.Sum256([]byte(model.Name + "\x00" + model.Provider + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Service produces Embeddings for text, backed by a durable store so
// repeated content under the same model is embedded exactly once.
type Service struct {
	embedder Embedder
	store    storage.Storage
	model    models.ModelDescriptor
}

// NewService builds a Service around embedder, describing its model via
// descriptor so content hashes and staleness checks stay consistent.
func NewService(embedder Embedder, store storage.Storage, descriptor models.ModelDescriptor) *Service {
	descriptor.OutputDimensions = embedder.Dimensions()
	return &Service{embedder: embedder, store: store, model: descriptor}
}

// EmbedText returns the Embedding for text, reusing a stored one keyed by
// content hash when present and its model descriptor matches the service's.
// The stored embedding's age is not checked.
func (s *Service) EmbedText(ctx context.Context, text string) (*models.Embedding, error) {
	hash := ContentHash(s.model, text)

	if existing, err := s.store.GetEmbeddingByHash(ctx, hash); err == nil && existing.Model == s.model {
		return existing, nil
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Internal, "embed text", err)
	}
	NormalizeL2Slice(vector)

	e := models.NewEmbedding(hash, vector, s.model)
	if err := e.Validate(); err != nil {
		return nil, codeerr.Wrap(codeerr.Validation, "validate generated embedding", err)
	}
	if err := s.store.PutEmbedding(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// EmbedEntity embeds an entity's searchable text (signature, documentation,
// and qualified name) and links the resulting embedding to entity.ID.
func (s *Service) EmbedEntity(ctx context.Context, entity *models.CodeEntity) (*models.Embedding, error) {
	text := entityEmbeddingText(entity)
	e, err := s.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	e.EntityID = entity.ID
	e.Source = &models.SourceLocation{
		FilePath: entity.FilePath,
		Language: entity.Language,
		Line:     entity.StartLine,
	}
	return e, nil
}

func entityEmbeddingText(e *models.CodeEntity) string {
	text := e.QualifiedName
	if e.Signature != "" {
		text += "\n" + e.Signature
	}
	if e.Documentation != "" {
		text += "\n" + e.Documentation
	}
	return text
}

// ValidateBatchForModel checks texts against model's batching and
// input-length limits before a batch reaches the embedder (§4.3's "valid
// for model" predicate). A text over MaxInputLength words is truncated when
// truncate is true; otherwise it fails Validation alongside batch-size and
// batching-support violations.
func ValidateBatchForModel(model models.ModelDescriptor, texts []string, truncate bool) ([]string, error) {
	if !model.SupportsBatching && len(texts) > 1 {
		return nil, codeerr.New(codeerr.Validation,
			fmt.Sprintf("model %s does not support batching: got %d inputs", model.Name, len(texts)))
	}
	if model.MaxBatchSize > 0 && len(texts) > model.MaxBatchSize {
		return nil, codeerr.New(codeerr.Validation,
			fmt.Sprintf("batch of %d inputs exceeds model %s max batch size %d", len(texts), model.Name, model.MaxBatchSize))
	}
	if model.MaxInputLength <= 0 {
		return texts, nil
	}

	out := make([]string, len(texts))
	for i, text := range texts {
		words := SplitWords(text)
		if len(words) <= model.MaxInputLength {
			out[i] = text
			continue
		}
		if !truncate {
			return nil, codeerr.New(codeerr.Validation,
				fmt.Sprintf("input %d has %d words, exceeds model %s max input length %d", i, len(words), model.Name, model.MaxInputLength))
		}
		out[i] = JoinWords(TruncateWords(words, model.MaxInputLength))
	}
	return out, nil
}

// CosineSimilarity computes cosine similarity between two equal-dimension
// vectors, returning a validation error on dimension mismatch.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, codeerr.New(codeerr.Validation, fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// EuclideanDistance computes L2 distance between two equal-dimension vectors.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, codeerr.New(codeerr.Validation, fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// DotProduct computes the dot product of two equal-dimension vectors.
func DotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, codeerr.New(codeerr.Validation, fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}
