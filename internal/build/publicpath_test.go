package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPublicPath(t *testing.T) {
	tests := []struct {
		base     string
		filename string
		want     string
	}{
		{"a", "c.png", "/a/c.png"},
		{"/a/", "c.png", "/a/c.png"},
		{"/a/b", "b/c/d.png", "/a/b/d.png"},
		{"http://foo.bar/", "a/b.png", "http://foo.bar/b.png"},
		{"https://cdn.example.com/static", "x.js", "https://cdn.example.com/static/x.js"},
		{"/", "1234abcd.js", "/1234abcd.js"},
		{"", "1234abcd.js", "/1234abcd.js"},
		{"/_factory/", "1234abcd.css", "/_factory/1234abcd.css"},
	}

	for _, tt := range tests {
		t.Run(tt.base+"+"+tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, GetPublicPath(tt.base, tt.filename))
		})
	}
}
