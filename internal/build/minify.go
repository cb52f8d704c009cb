package build

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	"github.com/conneroisu/elm-factory/internal/errors"
)

const (
	mediaTypeScript = "application/javascript"
	mediaTypeStyle  = "text/css"
)

// Minifier shrinks compiled scripts and stylesheets.
type Minifier struct {
	m *minify.M
}

// NewMinifier creates a minifier for JavaScript and CSS.
func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc(mediaTypeStyle, css.Minify)
	m.AddFunc(mediaTypeScript, js.Minify)

	return &Minifier{m: m}
}

// Script minifies compiled JavaScript.
func (mf *Minifier) Script(contents []byte) ([]byte, error) {
	return mf.run(mediaTypeScript, contents)
}

// Style minifies a stylesheet.
func (mf *Minifier) Style(contents []byte) ([]byte, error) {
	return mf.run(mediaTypeStyle, contents)
}

func (mf *Minifier) run(mediaType string, contents []byte) ([]byte, error) {
	out, err := mf.m.Bytes(mediaType, contents)
	if err != nil {
		return nil, errors.NewCompileError(errors.ErrCodeMinifyFailed,
			"failed to minify "+mediaType, "", err)
	}

	return out, nil
}
