package jsonrepair

import (
	"encoding/json"
	"testing"
)

func mustCanonical(t *testing.T, s string) string {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("input %q does not round-trip through encoding/json: %v", s, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(out)
}

func TestFixArrayValidInputsPassThrough(t *testing.T) {
	cases := []string{
		`[]`,
		`[[]]`,
		`[[""]]`,
		`[["a","b"],["c"]]`,
		`[["a \"quoted\" word"]]`,
		`[["line1\nline2"]]`,
		`[[],[]]`,
	}
	for _, in := range cases {
		got, err := FixArray(in)
		if err != nil {
			t.Fatalf("FixArray(%q) unexpected error: %v", in, err)
		}
		gotCanon := mustCanonical(t, got)
		wantCanon := mustCanonical(t, in)
		if gotCanon != wantCanon {
			t.Fatalf("FixArray(%q) = %q, canonical mismatch with input (%q != %q)", in, got, gotCanon, wantCanon)
		}
	}
}

func TestFixArrayRepairsTripleQuote(t *testing.T) {
	got, err := FixArray(`["""]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v []string
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("repaired output %q is not valid JSON: %v", got, err)
	}
}

func TestFixArrayRepairsMissingOpeningQuote(t *testing.T) {
	got, err := FixArray(`["a", b"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v []string
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("repaired output %q is not valid JSON: %v", got, err)
	}
	if len(v) != 2 {
		t.Fatalf("expected 2 elements, got %v", v)
	}
}

func TestFixArrayRepairsMissingBackslash(t *testing.T) {
	got, err := FixArray(`["\ "]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v []string
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("repaired output %q is not valid JSON: %v", got, err)
	}
}

func TestFixArrayRepairsMissingClosingBracket(t *testing.T) {
	got, err := FixArray(`[["a","b"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v [][]string
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("repaired output %q is not valid JSON: %v", got, err)
	}
}

func TestFixArrayRejectsNonArrayInput(t *testing.T) {
	if _, err := FixArray(`{"a":1}`); err == nil {
		t.Fatalf("expected an error for non-array input")
	}
}
