package build

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestHash(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "single_character", content: "a"},
		{name: "compiled_script", content: "var _user$project$Main$main = 1;"},
		{name: "unicode_content", content: "こんにちは世界\n🎉🚀✨"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := Hash([]byte(tt.content))
			h2 := Hash([]byte(tt.content))

			assert.Equal(t, h1, h2)
			assert.Regexp(t, hashPattern, h1)
		})
	}
}

func TestHashKnownValue(t *testing.T) {
	// xxHash64 of the empty input is ef46db3751d8e999.
	assert.Equal(t, "ef46db37", Hash(nil))
}

func TestHashDistinguishesContents(t *testing.T) {
	fixtures := []string{"body {}", "body { color: red; }", "main = text \"hi\"", "main = text \"ho\""}
	seen := make(map[string]string)

	for _, f := range fixtures {
		name := DeriveFilename([]byte(f), ".js")
		if prev, ok := seen[name]; ok {
			t.Fatalf("%q and %q derived the same filename %s", prev, f, name)
		}
		seen[name] = f
	}
}

func TestDeriveFilename(t *testing.T) {
	name := DeriveFilename([]byte("x"), ".css")
	assert.Equal(t, Hash([]byte("x"))+".css", name)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))

	contents, hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), contents)
	assert.Equal(t, Hash([]byte("png")), hash)

	_, _, err = HashFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
