package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/hyperjump/codesight/internal/models"
)

func sampleResponse() *models.QueryResponse {
	return &models.QueryResponse{
		Results: []*models.QueryResult{
			{
				EntityID:  "e1",
				Name:      "ProcessPayment",
				Kind:      models.EntityFunction,
				Score:     0.9,
				FilePath:  "billing/pay.go",
				StartLine: 42,
				Snippet:   "func ProcessPayment(amount int) error {",
			},
		},
		TotalCount:      1,
		HasMore:         false,
		ExecutionTimeMs: 12,
	}
}

func TestWriteQueryResults_JSON(t *testing.T) {
	resp := sampleResponse()
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, resp, OutputJSON); err != nil {
		t.Fatalf("WriteQueryResults(json): %v", err)
	}
	var decoded models.QueryResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.TotalCount != 1 || len(decoded.Results) != 1 || decoded.Results[0].EntityID != "e1" {
		t.Errorf("decoded response = %+v, want entity e1", decoded)
	}
}

func TestWriteQueryResults_JSON_empty(t *testing.T) {
	resp := &models.QueryResponse{}
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, resp, OutputJSON); err != nil {
		t.Fatalf("WriteQueryResults(json): %v", err)
	}
	var decoded models.QueryResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("empty response JSON decode: %v", err)
	}
	if decoded.TotalCount != 0 {
		t.Errorf("expected zero total, got %d", decoded.TotalCount)
	}
}

func TestWriteQueryResults_text(t *testing.T) {
	resp := sampleResponse()
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, resp, OutputText); err != nil {
		t.Fatalf("WriteQueryResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 1 results", "12ms", "ProcessPayment", "billing/pay.go:42", "func ProcessPayment"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteQueryResults_text_cacheAndTimeout(t *testing.T) {
	resp := sampleResponse()
	resp.FromCache = true
	resp.TimedOut = true
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, resp, OutputText); err != nil {
		t.Fatalf("WriteQueryResults(text): %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "served from cache") || !strings.Contains(out, "timed out") {
		t.Errorf("expected cache/timeout notices in output:\n%s", out)
	}
}

func TestWriteQueryResults_compact(t *testing.T) {
	resp := sampleResponse()
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, resp, OutputCompact); err != nil {
		t.Fatalf("WriteQueryResults(compact): %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("compact should have 2 lines (header + 1 result), got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "Found 1 results") {
		t.Errorf("first line should be header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "ProcessPayment") || !strings.Contains(lines[1], "billing/pay.go:42") {
		t.Errorf("result line missing expected fields: %q", lines[1])
	}
}

func TestWriteQueryResults_compact_empty(t *testing.T) {
	resp := &models.QueryResponse{}
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, resp, OutputCompact); err != nil {
		t.Fatalf("WriteQueryResults(compact empty): %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Found 0 results") {
		t.Errorf("expected header with 0 results: %q", out)
	}
}

func TestWriteQueryResults_unknownFormatTreatedAsText(t *testing.T) {
	resp := &models.QueryResponse{}
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, resp, SearchOutputFormat("unknown")); err != nil {
		t.Fatalf("WriteQueryResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Found") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestSanitizeForLine(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want string
	}{
		{"empty", "", ""},
		{"no change", "hello world", "hello world"},
		{"newline", "a\nb", "a b"},
		{"multiple newlines", "a\n\nb", "a  b"},
		{"tab", "a\tb", "a b"},
		{"newline and tab", "a\nb\tc", "a b c"},
		{"leading trailing space", "  x  ", "x"},
		{"leading newline", "\nhello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeForLine(tt.s)
			if got != tt.want {
				t.Errorf("SanitizeForLine(%q) = %q, want %q", tt.s, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty", "", 5, ""},
		{"short", "hi", 5, "hi"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"maxLen zero", "ab", 0, "ab"},
		{"maxLen negative", "ab", -1, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
		{"single long", "word", 1, "word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWords(tt.s, tt.maxWords)
			if got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}

func TestPrintQueryResults(t *testing.T) {
	resp := &models.QueryResponse{}
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
		_ = w.Close()
	}()
	PrintQueryResults(resp)
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	out := buf.String()
	if !strings.Contains(out, "Found 0 results") {
		t.Errorf("PrintQueryResults should write to stdout; got %q", out)
	}
}
