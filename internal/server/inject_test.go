package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectScript(t *testing.T) {
	const src = "http://127.0.0.1:35729/livereload.js"
	const tag = `<script src="` + src + `"></script>`

	testCases := []struct {
		name  string
		input string
		check func(t *testing.T, out string)
	}{
		{
			name:  "appends to body",
			input: `<!DOCTYPE html><html><head><title>x</title></head><body><div id="app"></div></body></html>`,
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, `<div id="app"></div>`+tag+`</body>`)
			},
		},
		{
			name:  "after existing scripts",
			input: `<html><body><script src="/_factory/0a1b2c3d.js"></script></body></html>`,
			check: func(t *testing.T, out string) {
				first := strings.Index(out, "0a1b2c3d.js")
				injected := strings.Index(out, src)
				require.GreaterOrEqual(t, first, 0)
				assert.Greater(t, injected, first)
			},
		},
		{
			name:  "fragment gains a body",
			input: `<p>compiled</p>`,
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, `<p>compiled</p>`+tag+`</body>`)
			},
		},
		{
			name:  "empty document",
			input: ``,
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, tag)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := InjectScript([]byte(tc.input), src)
			require.NoError(t, err)
			tc.check(t, string(out))
			assert.Equal(t, 1, strings.Count(string(out), src))
		})
	}
}

func TestInjectScriptEscapesSource(t *testing.T) {
	out, err := InjectScript([]byte(`<html><body></body></html>`), `/lr.js?a=1&b="2"`)
	require.NoError(t, err)
	assert.Contains(t, string(out), `src="/lr.js?a=1&amp;b=&#34;2&#34;"`)
}
