package canonicalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: JCS(m) is independent of the order in which m was populated.
func TestJCS_KeyOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("insertion order never changes canonical bytes", prop.ForAll(
		func(keys []string, values []string) bool {
			forward := make(map[string]any)
			backward := make(map[string]any)
			n := len(keys)
			if len(values) < n {
				n = len(values)
			}
			for i := 0; i < n; i++ {
				forward[keys[i]] = values[i]
			}
			for i := n - 1; i >= 0; i-- {
				if _, seen := backward[keys[i]]; !seen {
					backward[keys[i]] = forward[keys[i]]
				}
			}

			b1, err1 := JCS(forward)
			b2, err2 := JCS(backward)
			if err1 != nil || err2 != nil {
				return false
			}
			return string(b1) == string(b2)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}

// Property: CanonicalHash(v) == CanonicalHash(v) for any v.
func TestCanonicalHash_Determinism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hashing is deterministic", prop.ForAll(
		func(title string, qty int, present bool) bool {
			v := map[string]any{
				"title":    title,
				"quantity": qty,
				"nested":   map[string]any{"present": present, "tags": []any{title, qty}},
			}
			h1, err1 := CanonicalHash(v)
			h2, err2 := CanonicalHash(v)
			return err1 == nil && err2 == nil && h1 == h2
		},
		gen.AnyString(),
		gen.IntRange(-1_000_000, 1_000_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
