package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/codesight/internal/models"
)

// MockParser is a deterministic stand-in for TreeSitterParser used in tests
// that need predictable entities without depending on a real grammar. It
// recognizes a small line-oriented convention: a line of the form
// "kind Name(...)" starts an entity that runs until the next line consisting
// of only "}" (at any indentation) or the next entity line, and
// "import \"path\"" / "export Name"
// lines are recorded directly.
type MockParser struct {
	// Languages maps an extension (with leading dot) to the language name
	// DetectLanguage returns for it. A nil map falls back to a single
	// "mock" language for every extension.
	Languages map[string]string
}

// NewMockParser constructs a MockParser using the default "mock" language
// for every extension.
func NewMockParser() *MockParser {
	return &MockParser{}
}

// DetectLanguage reports the configured language for path's extension, or
// "mock" when none was configured.
func (p *MockParser) DetectLanguage(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if p.Languages != nil {
		if lang, ok := p.Languages[ext]; ok {
			return lang, nil
		}
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	return "mock", nil
}

var mockEntityKinds = map[string]models.EntityKind{
	"function":  models.EntityFunction,
	"method":    models.EntityMethod,
	"class":     models.EntityClass,
	"interface": models.EntityInterface,
	"type":      models.EntityType,
	"enum":      models.EntityEnum,
	"variable":  models.EntityVariable,
	"constant":  models.EntityConstant,
}

// ParseFile scans content line by line for the mock entity convention
// described on MockParser, producing the same Result shape a real grammar
// would.
func (p *MockParser) ParseFile(path string, content []byte) (*Result, error) {
	lang, err := p.DetectLanguage(path)
	if err != nil {
		return nil, err
	}
	_ = lang

	res := &Result{}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	var open *Entity
	var bodyStart int

	flush := func(endLine int) {
		if open == nil {
			return
		}
		open.EndLine = endLine
		lines := strings.Split(string(content), "\n")
		if bodyStart-1 >= 0 && endLine-1 < len(lines) && endLine-1 >= bodyStart-1 {
			open.Content = strings.Join(lines[bodyStart-1:endLine], "\n")
		}
		res.Entities = append(res.Entities, *open)
		open = nil
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "import "):
			path := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"' `)
			res.Imports = append(res.Imports, Import{Path: path, Line: lineNo})
		case strings.HasPrefix(trimmed, "export "):
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "export "))
			res.Exports = append(res.Exports, Export{Name: name, Line: lineNo})
		case trimmed == "}":
			if open != nil {
				flush(lineNo)
			}
		default:
			fields := strings.SplitN(trimmed, " ", 2)
			if len(fields) == 2 {
				if kind, ok := mockEntityKinds[fields[0]]; ok {
					if open != nil {
						flush(lineNo - 1)
					}
					name := fields[1]
					if idx := strings.IndexAny(name, "(:"); idx >= 0 {
						name = name[:idx]
					}
					name = strings.TrimSpace(name)
					open = &Entity{
						Name:       name,
						Kind:       kind,
						StartLine:  lineNo,
						Signature:  trimmed,
						Visibility: visibilityOf(name),
					}
					bodyStart = lineNo
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	if open != nil {
		flush(lineNo)
	}

	return res, nil
}

var (
	_ Parser = (*TreeSitterParser)(nil)
	_ Parser = (*MockParser)(nil)
)
