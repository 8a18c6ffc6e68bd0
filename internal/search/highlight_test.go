package search

import (
	"strings"
	"testing"
)

func TestHighlightWrapsMatchedToken(t *testing.T) {
	got := Highlight("function Widget does work", "widget")
	if !strings.Contains(got, highlightOpen+"Widget"+highlightClose) {
		t.Errorf("Highlight() = %q, want a wrapped match for Widget", got)
	}
}

func TestHighlightIsCaseInsensitiveWordBoundary(t *testing.T) {
	got := Highlight("Widgetry uses Widget internally", "widget")
	if strings.Contains(got, highlightOpen+"Widgetry"+highlightClose) {
		t.Errorf("Highlight() = %q, should not match the substring inside Widgetry", got)
	}
	if !strings.Contains(got, highlightOpen+"Widget"+highlightClose) {
		t.Errorf("Highlight() = %q, want the standalone word Widget wrapped", got)
	}
}

func TestHighlightNoTokensReturnsTextUnchanged(t *testing.T) {
	text := "some text"
	if got := Highlight(text, "a"); got != text {
		t.Errorf("Highlight() = %q, want unchanged %q", got, text)
	}
}
