package main

import (
	"math/big"
	"testing"
)

func TestCanonicalWriterKeyOrderAndSeparators(t *testing.T) {
	w := newCanonicalWriter()
	w.Str("a", "x")
	w.Int64("b", 42)
	w.StrPtrOrNull("c", nil)
	got := string(w.Bytes())
	want := `{"a": "x", "b": 42, "c": null}`
	if got != want {
		t.Errorf("canonical bytes = %q, want %q", got, want)
	}
}

func TestCanonicalWriterEscapesControlCharsAndQuotes(t *testing.T) {
	w := newCanonicalWriter()
	w.Str("s", "line\nwith\ttab and \"quote\" and \\backslash")
	got := string(w.Bytes())
	want := `{"s": "line\nwith\ttab and \"quote\" and \\backslash"}`
	if got != want {
		t.Errorf("escaped string = %q, want %q", got, want)
	}
}

func TestCanonicalWriterBigInt(t *testing.T) {
	w := newCanonicalWriter()
	w.BigInt("difficulty", big.NewInt(1<<40))
	got := string(w.Bytes())
	want := `{"difficulty": 1099511627776}`
	if got != want {
		t.Errorf("BigInt output = %q, want %q", got, want)
	}
}

func TestCanonicalWriterRawSplicesVerbatim(t *testing.T) {
	w := newCanonicalWriter()
	w.Raw("nested", []byte(`{"x": 1}`))
	got := string(w.Bytes())
	want := `{"nested": {"x": 1}}`
	if got != want {
		t.Errorf("Raw splice = %q, want %q", got, want)
	}
}

func TestCanonicalArrayJoinsWithPythonStyleSeparators(t *testing.T) {
	items := [][]byte{[]byte(`{"a": 1}`), []byte(`{"a": 2}`)}
	got := string(canonicalArray(items))
	want := `[{"a": 1}, {"a": 2}]`
	if got != want {
		t.Errorf("canonicalArray = %q, want %q", got, want)
	}
}

func TestCanonicalArrayEmpty(t *testing.T) {
	got := string(canonicalArray(nil))
	if got != "[]" {
		t.Errorf("canonicalArray(nil) = %q, want []", got)
	}
}
