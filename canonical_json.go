package main

import (
	"bytes"
	"math/big"
	"strconv"
)

// canonicalWriter builds a JSON object byte-for-byte in a fixed key order,
// matching Python's json.dumps(obj) default separators (", " between
// members, ": " between key and value) with no key reordering and no
// number normalisation. Do not replace this with encoding/json.Marshal on
// a map or struct: Go's map iteration order is random and struct tag order
// does not guarantee wire order, and both would silently break consensus
// hashing.
type canonicalWriter struct {
	buf   bytes.Buffer
	count int
}

func newCanonicalWriter() *canonicalWriter {
	w := &canonicalWriter{}
	w.buf.WriteByte('{')
	return w
}

func (w *canonicalWriter) sep() {
	if w.count > 0 {
		w.buf.WriteString(", ")
	}
	w.count++
}

func (w *canonicalWriter) key(k string) {
	w.sep()
	w.buf.WriteByte('"')
	w.buf.WriteString(k)
	w.buf.WriteString(`": `)
}

// escapeString writes a JSON string literal matching Python's ensure_ascii
// default: printable ASCII passes through, '"' and '\\' are escaped, and
// control characters use \u00XX escapes. Every field this node emits is
// restricted to hex digits, the literal "1.0", and ISO-8601 timestamps, so
// this minimal escaper is sufficient and never needs a \uXXXX path beyond
// control characters.
func (w *canonicalWriter) escapeString(s string) {
	w.buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			w.buf.WriteString(`\"`)
		case '\\':
			w.buf.WriteString(`\\`)
		case '\n':
			w.buf.WriteString(`\n`)
		case '\r':
			w.buf.WriteString(`\r`)
		case '\t':
			w.buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				w.buf.WriteString(`\u`)
				hex := strconv.FormatInt(int64(r), 16)
				for i := len(hex); i < 4; i++ {
					w.buf.WriteByte('0')
				}
				w.buf.WriteString(hex)
			} else {
				w.buf.WriteRune(r)
			}
		}
	}
	w.buf.WriteByte('"')
}

// Str writes key: "value".
func (w *canonicalWriter) Str(k, v string) {
	w.key(k)
	w.escapeString(v)
}

// StrPtrOrNull writes key: "value" or key: null when v is nil.
func (w *canonicalWriter) StrPtrOrNull(k string, v *string) {
	w.key(k)
	if v == nil {
		w.buf.WriteString("null")
		return
	}
	w.escapeString(*v)
}

// Int64 writes key: <integer literal>.
func (w *canonicalWriter) Int64(k string, v int64) {
	w.key(k)
	w.buf.WriteString(strconv.FormatInt(v, 10))
}

// BigInt writes key: <integer literal> for arbitrary-precision integers
// (used for difficulty, a 256-bit target that does not fit in int64).
func (w *canonicalWriter) BigInt(k string, v *big.Int) {
	w.key(k)
	w.buf.WriteString(v.String())
}

// Raw writes key: <rawJSON> verbatim, used to splice in an already
// canonicalised nested object or array (e.g. a block's transaction list).
func (w *canonicalWriter) Raw(k string, rawJSON []byte) {
	w.key(k)
	w.buf.Write(rawJSON)
}

// Bytes finalises the object and returns its canonical bytes.
func (w *canonicalWriter) Bytes() []byte {
	w.buf.WriteByte('}')
	return w.buf.Bytes()
}

// canonicalArray joins already-canonicalised element byte slices into a
// JSON array using the same ", " separator Python's json.dumps uses
// between list items.
func canonicalArray(items [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.Write(item)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
