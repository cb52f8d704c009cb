package build

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
)

// Asset is a static file referenced from compiled output, relocated under
// its hashed name.
type Asset struct {
	// Source is the absolute path of the referenced file.
	Source string
	// Name is the hashed, flattened output filename.
	Name     string
	URL      string
	Contents []byte
}

// Rewriter replaces asset-tag references in compiled output with hashed
// public URLs and collects the referenced files.
type Rewriter struct {
	root       string
	publicPath string
	tag        string
	tagPattern *regexp.Regexp
	logger     logging.Logger
}

// RewriterOption configures a Rewriter.
type RewriterOption func(*Rewriter)

// WithTag sets the asset tag name matched in compiled output.
func WithTag(tag string) RewriterOption {
	return func(r *Rewriter) {
		if tag != "" {
			r.tag = tag
		}
	}
}

// WithRewriterLogger sets the logger used for skipped references.
func WithRewriterLogger(logger logging.Logger) RewriterOption {
	return func(r *Rewriter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

var cssURLPattern = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)"'\s]*))\s*\)`)

// NewRewriter creates a rewriter resolving references relative to root and
// publishing them under publicPath.
func NewRewriter(root, publicPath string, opts ...RewriterOption) *Rewriter {
	r := &Rewriter{
		root:       root,
		publicPath: publicPath,
		tag:        "AssetPath",
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}

	// Compiled Elm qualifies the constructor with the package and module
	// ($author$project$Assets$AssetPath), so any identifier prefix is part
	// of the match.
	r.tagPattern = regexp.MustCompile(`[\w$]*` + regexp.QuoteMeta(r.tag) +
		`\(\s*(?:"([^"]*)"|'([^']*)')\s*\)`)

	return r
}

// Rewrite replaces every asset tag in contents with the double-quoted public
// URL of the hashed file. Each referenced file is returned once.
func (r *Rewriter) Rewrite(contents []byte) ([]byte, []Asset, error) {
	matches := r.tagPattern.FindAllSubmatchIndex(contents, -1)
	if len(matches) == 0 {
		return contents, nil, nil
	}

	var (
		out    bytes.Buffer
		assets []Asset
		seen   = make(map[string]Asset)
		last   int
	)
	for _, m := range matches {
		ref := submatch(contents, m, 1, 2)

		asset, ok := seen[ref]
		if !ok {
			var err error
			asset, err = r.load(ref)
			if err != nil {
				return nil, nil, err
			}
			seen[ref] = asset
			assets = appendAsset(assets, asset)
		}

		out.Write(contents[last:m[0]])
		out.WriteString(strconv.Quote(asset.URL))
		last = m[1]
	}
	out.Write(contents[last:])

	return out.Bytes(), assets, nil
}

// RewriteCSSURLs relocates relative url(...) references in a stylesheet to
// their hashed public URLs. data: URIs, absolute URLs, site-absolute paths
// and fragment-only references are left alone. References to missing files
// are kept unchanged and logged.
func (r *Rewriter) RewriteCSSURLs(ctx context.Context, contents []byte) ([]byte, []Asset) {
	matches := cssURLPattern.FindAllSubmatchIndex(contents, -1)
	if len(matches) == 0 {
		return contents, nil
	}

	var (
		out    bytes.Buffer
		assets []Asset
		seen   = make(map[string]Asset)
		last   int
	)
	for _, m := range matches {
		quote := ""
		switch {
		case m[2] >= 0:
			quote = `"`
		case m[4] >= 0:
			quote = "'"
		}
		ref := submatch(contents, m, 1, 2, 3)

		if skipCSSReference(ref) {
			continue
		}

		file, suffix := splitReference(ref)
		asset, ok := seen[file]
		if !ok {
			var err error
			asset, err = r.load(file)
			if err != nil {
				r.logger.Warn(ctx, err, "Stylesheet references a missing file, leaving it unchanged", "ref", ref)
				continue
			}
			seen[file] = asset
			assets = appendAsset(assets, asset)
		}

		out.Write(contents[last:m[0]])
		out.WriteString("url(" + quote + asset.URL + suffix + quote + ")")
		last = m[1]
	}
	out.Write(contents[last:])

	return out.Bytes(), assets
}

func (r *Rewriter) load(ref string) (Asset, error) {
	source := ref
	if !filepath.IsAbs(source) {
		source = filepath.Join(r.root, filepath.FromSlash(ref))
	}

	contents, hash, err := HashFile(source)
	if err != nil {
		return Asset{}, errors.NewResolutionError(errors.ErrCodeAssetNotFound,
			"referenced asset not found: "+ref, err).WithFile(source)
	}

	name := hash + filepath.Ext(source)

	return Asset{
		Source:   source,
		Name:     name,
		URL:      GetPublicPath(r.publicPath, name),
		Contents: contents,
	}, nil
}

// appendAsset adds a to assets unless another reference already produced
// the same output file.
func appendAsset(assets []Asset, a Asset) []Asset {
	for _, existing := range assets {
		if existing.Name == a.Name {
			return assets
		}
	}

	return append(assets, a)
}

// submatch returns the first participating capture group among groups.
func submatch(src []byte, m []int, groups ...int) string {
	for _, g := range groups {
		if start := m[2*g]; start >= 0 {
			return string(src[start:m[2*g+1]])
		}
	}

	return ""
}

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

func skipCSSReference(ref string) bool {
	switch {
	case ref == "":
		return true
	case strings.HasPrefix(ref, "#"):
		return true
	case strings.HasPrefix(ref, "/"):
		// Site-absolute and protocol-relative.
		return true
	case schemePattern.MatchString(ref):
		// data:, http:, https: and friends.
		return true
	}

	return false
}

// splitReference separates the file part of a reference from its query
// string and fragment.
func splitReference(ref string) (file, suffix string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}

	return ref, ""
}
