//go:build property

package build

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestManifestProperties validates manifest and hashing properties.
func TestManifestProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234) // For reproducible results
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("parse(marshal(manifest)) preserves entries and order", prop.ForAll(
		func(names []string, files []string) bool {
			var entries []ManifestEntry
			seen := make(map[string]bool)
			for i, name := range names {
				if seen[name] || i >= len(files) {
					continue
				}
				seen[name] = true
				entries = append(entries, ManifestEntry{Name: name, File: files[i]})
			}

			m := BuildManifest(entries)
			data, err := m.MarshalJSON()
			if err != nil {
				return false
			}
			parsed, err := ParseManifest(data)
			if err != nil {
				return false
			}
			got := parsed.Entries()
			if len(got) != len(entries) {
				return false
			}
			for i := range entries {
				if got[i] != entries[i] {
					return false
				}
			}

			return true
		},
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("hash is 8 lowercase hex characters", prop.ForAll(
		func(content string) bool {
			h := Hash([]byte(content))
			if len(h) != HashLength {
				return false
			}
			for _, c := range h {
				if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
					return false
				}
			}

			return h == Hash([]byte(content))
		},
		gen.AnyString(),
	))

	properties.Property("public path always ends with the file base name", prop.ForAll(
		func(base, dir, name string) bool {
			if name == "" {
				return true
			}
			p := GetPublicPath("/"+base, dir+"/"+name+".png")

			return len(p) > 0 && p[0] == '/' && hasSuffix(p, "/"+name+".png")
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
