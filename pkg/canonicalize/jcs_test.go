package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]any{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(b))
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]any{
		"z": map[string]any{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

// Integer-like keys sort as strings ("10" < "2"), unlike JavaScript
// property enumeration which would give {"2":2,"10":1}.
func TestJCS_IntegerLikeKeysSortAsStrings(t *testing.T) {
	input := map[string]any{
		"m":    map[string]any{"10": 1, "2": 2, "b": 3},
		"type": "x",
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"m":{"10":1,"2":2,"b":3},"type":"x"}`, string(b))
}

func TestJCS_ArraysKeepOrder(t *testing.T) {
	input := map[string]any{
		"list": []any{3, map[string]any{"b": 1, "a": 2}, "x"},
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"list":[3,{"a":2,"b":1},"x"]}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<script>alert('xss')</script> &"}`, string(b))
}

func TestJCS_NumberFormatting(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  string
	}{
		{"json number", map[string]any{"num": json.Number("123.456")}, `{"num":123.456}`},
		{"integral float", map[string]any{"budget": 1000.0}, `{"budget":1000}`},
		{"int", map[string]any{"quantity": 50}, `{"quantity":50}`},
		{"json number integral", map[string]any{"quantity": json.Number("50")}, `{"quantity":50}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := JCS(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(b))
		})
	}
}

func TestJCS_Nil(t *testing.T) {
	b, err := JCS(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = JCS(map[string]any{"a": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"a":null}`, string(b))
}

func TestCanonicalHash_Stability(t *testing.T) {
	v1 := map[string]any{"a": 1, "b": 2}

	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	h1, err := CanonicalHash(v1)
	require.NoError(t, err)
	h2, err := CanonicalHash(v2)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "semantically identical inputs must hash identically")
	assert.Len(t, h1, 64)
}

func TestCanonicalize_ReturnsSortedObjects(t *testing.T) {
	c, err := Canonicalize(map[string]any{
		"title":  "Road",
		"budget": 1000,
		"meta":   map[string]any{"z": true, "a": false},
	})
	require.NoError(t, err)

	obj, ok := c.(Object)
	require.True(t, ok, "expected Object, got %T", c)
	assert.Equal(t, []string{"budget", "meta", "title"}, obj.Keys())

	meta, ok := obj.Get("meta")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "z"}, meta.(Object).Keys())

	_, ok = obj.Get("missing")
	assert.False(t, ok)
}

func TestCanonicalize_ScalarsPassThrough(t *testing.T) {
	c, err := Canonicalize("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", c)

	c, err = Canonicalize(nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestLessUTF16_MatchesCodeUnitOrder(t *testing.T) {
	// U+E000 sorts after the surrogate pair of U+1F680 in UTF-16 but before it in UTF-8.
	assert.True(t, lessUTF16("\U0001F680", "\uE000"))
	assert.True(t, lessUTF16("a", "b"))
	assert.True(t, lessUTF16("a", "aa"))
	assert.False(t, lessUTF16("b", "a"))
}

func TestJCSString_IsReachable(t *testing.T) {
	s, err := JCSString(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, s)
}
