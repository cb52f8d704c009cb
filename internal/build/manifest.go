package build

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Manifest filenames written into every output directory.
const (
	ScriptManifestName = "js-manifest.json"
	StyleManifestName  = "css-manifest.json"
)

// ManifestEntry is one logical name to hashed filename mapping.
type ManifestEntry struct {
	Name string
	File string
}

// Manifest is an insertion-ordered mapping from original logical names to
// final hashed filenames.
type Manifest struct {
	keys   []string
	values map[string]string
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{values: make(map[string]string)}
}

// BuildManifest creates a manifest from entries in order. A repeated name
// keeps its first position and its last value.
func BuildManifest(entries []ManifestEntry) *Manifest {
	m := NewManifest()
	for _, e := range entries {
		m.Set(e.Name, e.File)
	}

	return m
}

// Set records name → file, appending name if it is new.
func (m *Manifest) Set(name, file string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = file
}

// Get returns the hashed filename recorded for name.
func (m *Manifest) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	file, ok := m.values[name]

	return file, ok
}

// Keys returns the logical names in insertion order.
func (m *Manifest) Keys() []string {
	if m == nil {
		return nil
	}

	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}

	return len(m.keys)
}

// Entries returns the mapping as an ordered slice.
func (m *Manifest) Entries() []ManifestEntry {
	if m == nil {
		return nil
	}
	entries := make([]ManifestEntry, 0, len(m.keys))
	for _, k := range m.keys {
		entries = append(entries, ManifestEntry{Name: k, File: m.values[k]})
	}

	return entries
}

// Files returns the hashed filenames in insertion order.
func (m *Manifest) Files() []string {
	if m == nil {
		return nil
	}
	files := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		files = append(files, m.values[k])
	}

	return files
}

// MarshalJSON renders the manifest as a 2-space indented JSON object in
// insertion order, without a trailing newline.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if m.Len() == 0 {
		return []byte("{}"), nil
	}

	buf.WriteString("{\n")
	for i, k := range m.keys {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(m.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the manifest contents with data, keeping the
// document's key order.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	parsed, err := ParseManifest(data)
	if err != nil {
		return err
	}
	*m = *parsed

	return nil
}

// ParseManifest reads a manifest document, preserving key order.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parse manifest: expected object, got %v", tok)
	}

	m := NewManifest()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("parse manifest: expected key, got %v", tok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("parse manifest: value for %q: %w", key, err)
		}
		m.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	return m, nil
}
