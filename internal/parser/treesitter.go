package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/hyperjump/codesight/internal/models"
)

// languageByExtension maps a file extension to the language DetectLanguage
// reports and the grammar ParseFile dispatches to.
var languageByExtension = map[string]string{
	".ts":  "typescript",
	".tsx": "typescript",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
}

// TreeSitterParser extracts code entities from TypeScript and JavaScript
// source using tree-sitter grammars. Parsers are not safe for concurrent
// use, so each language keeps its own pool and ParseFile borrows and
// returns an instance per call rather than holding one long-lived.
type TreeSitterParser struct {
	jsPool sync.Pool
	tsPool sync.Pool
	once   sync.Once
}

// NewTreeSitterParser constructs a parser ready to handle TypeScript and
// JavaScript files.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{}
}

func (p *TreeSitterParser) init() {
	p.once.Do(func() {
		p.jsPool.New = func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(javascript.GetLanguage())
			return sp
		}
		p.tsPool.New = func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(typescript.GetLanguage())
			return sp
		}
	})
}

// DetectLanguage reports the language for path based on its extension.
func (p *TreeSitterParser) DetectLanguage(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := languageByExtension[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	return lang, nil
}

// ParseFile parses content as TypeScript or JavaScript, chosen by path's
// extension, and extracts its functions, classes, interfaces, imports, and
// exports.
func (p *TreeSitterParser) ParseFile(path string, content []byte) (*Result, error) {
	start := time.Now()

	lang, err := p.DetectLanguage(path)
	if err != nil {
		return nil, err
	}

	p.init()

	var pool *sync.Pool
	if lang == "typescript" {
		pool = &p.tsPool
	} else {
		pool = &p.jsPool
	}

	sp := pool.Get().(*sitter.Parser)
	defer pool.Put(sp)

	tree, err := sp.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	root := tree.RootNode()

	res := &Result{}
	w := &walker{content: content, result: res}
	w.walk(root, nil)

	if root.HasError() {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: syntax error recovered partially", path))
	}

	res.ParseTimeMS = time.Since(start).Milliseconds()
	return res, nil
}

// walker accumulates entities, imports, and exports while recursing the
// tree exactly once.
type walker struct {
	content []byte
	result  *Result
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) walk(node, parent *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_declaration":
		w.addFunction(node, models.EntityFunction)
	case "method_definition":
		w.addFunction(node, models.EntityMethod)
	case "class_declaration":
		w.addType(node, models.EntityClass)
	case "interface_declaration":
		w.addType(node, models.EntityInterface)
	case "variable_declarator":
		w.maybeAddFunctionValue(node)
	case "import_statement":
		w.addImport(node)
	case "export_statement":
		w.addExport(node)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), node)
	}
}

func (w *walker) location(n *sitter.Node) (startLine, endLine, startCol, endCol int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1,
		int(n.StartPoint().Column) + 1, int(n.EndPoint().Column) + 1
}

func (w *walker) addFunction(node *sitter.Node, kind models.EntityKind) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)

	signature := name
	if params := node.ChildByFieldName("parameters"); params != nil {
		signature = name + w.text(params)
	}

	startLine, endLine, startCol, endCol := w.location(node)
	w.result.Entities = append(w.result.Entities, Entity{
		Name:        name,
		Kind:        kind,
		StartLine:   startLine,
		EndLine:     endLine,
		StartColumn: startCol,
		EndColumn:   endCol,
		Signature:   signature,
		Content:     w.text(node),
		Visibility:  visibilityOf(name),
	})
}

// maybeAddFunctionValue handles `const foo = () => {}` and
// `const foo = function() {}`, the arrow/expression function idiom that
// tree-sitter represents as a plain variable_declarator.
func (w *walker) maybeAddFunctionValue(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	valueNode := node.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return
	}
	switch valueNode.Type() {
	case "arrow_function", "function_expression", "function":
	default:
		return
	}

	name := w.text(nameNode)
	params := valueNode.ChildByFieldName("parameters")
	signature := name + "()"
	if params != nil {
		signature = name + w.text(params)
	}

	startLine, endLine, startCol, endCol := w.location(node)
	w.result.Entities = append(w.result.Entities, Entity{
		Name:        name,
		Kind:        models.EntityFunction,
		StartLine:   startLine,
		EndLine:     endLine,
		StartColumn: startCol,
		EndColumn:   endCol,
		Signature:   signature,
		Content:     w.text(node),
		Visibility:  visibilityOf(name),
	})
}

func (w *walker) addType(node *sitter.Node, kind models.EntityKind) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)

	startLine, endLine, startCol, endCol := w.location(node)
	w.result.Entities = append(w.result.Entities, Entity{
		Name:        name,
		Kind:        kind,
		StartLine:   startLine,
		EndLine:     endLine,
		StartColumn: startCol,
		EndColumn:   endCol,
		Signature:   name,
		Content:     w.text(node),
		Visibility:  visibilityOf(name),
	})
}

func (w *walker) addImport(node *sitter.Node) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			path := strings.Trim(w.text(child), `"'`)
			w.result.Imports = append(w.result.Imports, Import{
				Path: path,
				Line: int(node.StartPoint().Row) + 1,
			})
			return
		}
	}
}

func (w *walker) addExport(node *sitter.Node) {
	line := int(node.StartPoint().Row) + 1

	var name string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			name = w.text(nameNode)
			break
		}
	}
	if name == "" {
		return
	}
	w.result.Exports = append(w.result.Exports, Export{Name: name, Line: line})
}

// visibilityOf applies the JavaScript/TypeScript convention that a leading
// underscore marks a symbol as intentionally private.
func visibilityOf(name string) models.Visibility {
	if strings.HasPrefix(name, "_") {
		return models.VisibilityPrivate
	}
	return models.VisibilityPublic
}
