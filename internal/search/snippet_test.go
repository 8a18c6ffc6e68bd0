package search

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/codesight/internal/models"
)

func TestExtractSnippetCentersOnStartLine(t *testing.T) {
	dir := t.TempDir()
	content := "line one\nline two\nfunction Run() {\n  doWork()\n}\nline six\n"
	path := filepath.Join(dir, "widget.go")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	e := &models.CodeEntity{FilePath: "widget.go", StartLine: 3}
	snippet := ExtractSnippet(dir, e, 20)
	if !strings.Contains(snippet, "function") {
		t.Errorf("snippet %q should contain the start of the entity's line", snippet)
	}
	if len(snippet) > 20 {
		t.Errorf("snippet length %d exceeds max 20", len(snippet))
	}
}

func TestExtractSnippetMissingFileReturnsEmpty(t *testing.T) {
	e := &models.CodeEntity{FilePath: "missing.go", StartLine: 1}
	if got := ExtractSnippet(t.TempDir(), e, 50); got != "" {
		t.Errorf("ExtractSnippet for missing file = %q, want empty", got)
	}
}

func TestExtractSnippetZeroMaxLenReturnsEmpty(t *testing.T) {
	e := &models.CodeEntity{FilePath: "widget.go", StartLine: 1}
	if got := ExtractSnippet(t.TempDir(), e, 0); got != "" {
		t.Errorf("ExtractSnippet with maxLen 0 = %q, want empty", got)
	}
}

func TestLineOffsetFindsLineStart(t *testing.T) {
	content := []byte("aaa\nbbb\nccc\n")
	if got := lineOffset(content, 1); got != 0 {
		t.Errorf("lineOffset(1) = %d, want 0", got)
	}
	if got := lineOffset(content, 2); got != 4 {
		t.Errorf("lineOffset(2) = %d, want 4", got)
	}
	if got := lineOffset(content, 99); got != -1 {
		t.Errorf("lineOffset(99) = %d, want -1", got)
	}
}
