package summarizing

import "testing"

func TestNormalizeKeywordsStripsListNumbering(t *testing.T) {
	got := normalizeKeywords("1. foo; 2. bar")
	want := "foo, bar"
	if got != want {
		t.Fatalf("normalizeKeywords() = %q, want %q", got, want)
	}
}

func TestNormalizeKeywordsDropsPunctuationOnlyTokens(t *testing.T) {
	got := normalizeKeywords("foo, --, bar, 42")
	want := "foo, bar"
	if got != want {
		t.Fatalf("normalizeKeywords() = %q, want %q", got, want)
	}
}

func TestNormalizeKeywordsEmptyInput(t *testing.T) {
	if got := normalizeKeywords(""); got != "" {
		t.Fatalf("normalizeKeywords(\"\") = %q, want empty", got)
	}
}
