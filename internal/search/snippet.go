package search

import (
	"os"
	"path/filepath"

	"github.com/hyperjump/codesight/internal/models"
)

// ExtractSnippet reads the source window of up to maxLen characters centered
// on e's start line, from the file under codebaseRoot. A read failure
// yields an empty snippet rather than an error — snippets are best-effort.
func ExtractSnippet(codebaseRoot string, e *models.CodeEntity, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	content, err := os.ReadFile(filepath.Join(codebaseRoot, e.FilePath))
	if err != nil {
		return ""
	}

	offset := lineOffset(content, e.StartLine)
	if offset < 0 {
		return ""
	}

	half := maxLen / 2
	start := offset - half
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(content) {
		end = len(content)
		start = end - maxLen
		if start < 0 {
			start = 0
		}
	}
	return string(content[start:end])
}

// lineOffset returns the byte offset of the start of the 1-indexed line,
// or -1 if content has fewer lines.
func lineOffset(content []byte, line int) int {
	if line <= 1 {
		return 0
	}
	seen := 1
	for i, b := range content {
		if b == '\n' {
			seen++
			if seen == line {
				return i + 1
			}
		}
	}
	return -1
}
