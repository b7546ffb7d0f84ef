// Package canonicalize provides deterministic, key-order independent
// serialization of ledger data so that two deep-equal values always hash
// to the same digest.
//
// The canonical byte form is RFC 8785 (JSON Canonicalization Scheme). For
// objects without integer-like keys it is byte-identical to JSON.stringify
// over a value whose keys were sorted recursively, which keeps chains
// written by browser clients verifiable here. JavaScript always enumerates
// integer-like keys ("2", "10") first and in numeric order; JCS sorts them as
// strings, so blocks carrying such keys hash differently in the two.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/gowebpki/jcs"
)

// Field is one key/value pair of an Object.
type Field struct {
	Key   string
	Value any
}

// Object is a mapping whose keys are held in canonical order.
type Object []Field

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys of o in canonical order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, f := range o {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON writes the object with its keys in canonical order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := encode(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := encode(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Canonicalize returns a value with the same structure as v in which every
// mapping, at any depth, has been replaced by an Object with sorted keys.
// Arrays keep their order and scalars pass through unchanged. Structs are
// lowered through their JSON tags first. Inputs are assumed acyclic.
func Canonicalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}

	var generic any
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode failed: %w", err)
	}

	return sortRecursive(generic), nil
}

func sortRecursive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })

		obj := make(Object, len(keys))
		for i, k := range keys {
			obj[i] = Field{Key: k, Value: sortRecursive(t[k])}
		}
		return obj
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = sortRecursive(elem)
		}
		return out
	default:
		return v
	}
}

// lessUTF16 orders keys by UTF-16 code units, the ordering RFC 8785 and
// ECMAScript's default sort both use.
func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

// JCS returns the RFC 8785 canonical JSON representation of v.
//
//  1. Map keys are sorted at every depth.
//  2. HTML escaping is disabled (unlike standard json.Marshal).
//  3. Numbers use ECMAScript formatting, so 1000, 1000.0 and json.Number("1000") agree.
func JCS(v any) ([]byte, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return nil, err
	}

	raw, err := encode(canonical)
	if err != nil {
		return nil, fmt.Errorf("jcs: encode failed: %w", err)
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v any) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns lowercase hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder adds a newline, we must trim it
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
