package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestOrder(t *testing.T) {
	m := NewManifest()
	m.Set("zeta.css", "11111111.css")
	m.Set("alpha.css", "22222222.css")
	m.Set("zeta.css", "33333333.css")

	assert.Equal(t, []string{"zeta.css", "alpha.css"}, m.Keys())
	assert.Equal(t, 2, m.Len())

	file, ok := m.Get("zeta.css")
	assert.True(t, ok)
	assert.Equal(t, "33333333.css", file)

	_, ok = m.Get("missing.css")
	assert.False(t, ok)
}

func TestManifestMarshalJSON(t *testing.T) {
	m := BuildManifest([]ManifestEntry{
		{Name: "Main.js", File: "0123abcd.js"},
	})

	data, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"Main.js\": \"0123abcd.js\"\n}", string(data))

	empty, err := NewManifest().MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(empty))
}

func TestParseManifestRoundTrip(t *testing.T) {
	entries := []ManifestEntry{
		{Name: "index.css", File: "aaaaaaaa.css"},
		{Name: "admin/panel.css", File: "bbbbbbbb.css"},
		{Name: "\"quoted\".css", File: "cccccccc.css"},
	}
	m := BuildManifest(entries)

	data, err := m.MarshalJSON()
	require.NoError(t, err)

	parsed, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, entries, parsed.Entries())
}

func TestParseManifestErrors(t *testing.T) {
	for _, input := range []string{``, `[]`, `{"a": 1}`, `{"a": "b"`} {
		_, err := ParseManifest([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestNilManifest(t *testing.T) {
	var m *Manifest
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Keys())
	_, ok := m.Get("x")
	assert.False(t, ok)
}
