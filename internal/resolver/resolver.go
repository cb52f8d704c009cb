// Package resolver discovers the transitive module dependencies of an Elm
// entry file.
//
// Source roots come from the nearest project file (elm.json or the legacy
// elm-package.json). Each import is mapped to a file under the first root
// that contains it; imports that map to no file belong to installed
// packages and are not dependencies. The module graph is held in a
// directed graph keyed by absolute path and the closure is a depth-first
// walk from the entry.
package resolver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
)

// Project file names, in lookup order within a directory.
var projectFiles = []string{"elm.json", "elm-package.json"}

// Resolver computes dependency sets.
type Resolver struct {
	logger logging.Logger
}

// New creates a resolver.
func New(logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Resolver{logger: logger.WithComponent("resolver")}
}

// Resolve returns every file transitively imported by entryPath as sorted
// absolute paths, excluding the entry itself.
func (r *Resolver) Resolve(ctx context.Context, entryPath string) ([]string, error) {
	entry, err := filepath.Abs(entryPath)
	if err != nil {
		return nil, errors.ErrEntryNotFound(entryPath, err)
	}
	if info, err := os.Stat(entry); err != nil || info.IsDir() {
		if err == nil {
			err = stderrors.New("entry is a directory")
		}
		return nil, errors.ErrEntryNotFound(entry, err)
	}

	roots, err := SourceRoots(entry)
	if err != nil {
		return nil, err
	}

	g := graph.New(graph.StringHash, graph.Directed())
	if err := g.AddVertex(entry); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to add entry vertex", err)
	}

	queue := []string{entry}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file := queue[0]
		queue = queue[1:]

		modules, err := r.imports(ctx, file)
		if err != nil {
			return nil, err
		}

		for _, module := range modules {
			dep, ok := locate(roots, module)
			if !ok {
				continue
			}

			err := g.AddVertex(dep)
			switch {
			case err == nil:
				queue = append(queue, dep)
			case !stderrors.Is(err, graph.ErrVertexAlreadyExists):
				return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to add module vertex", err)
			}

			if err := g.AddEdge(file, dep); err != nil && !stderrors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to add import edge", err)
			}
		}
	}

	var deps []string
	err = graph.DFS(g, entry, func(v string) bool {
		if v != entry {
			deps = append(deps, v)
		}

		return false
	})
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to walk module graph", err)
	}

	sort.Strings(deps)
	r.logger.Debug(ctx, "Resolved dependencies", "entry", entry, "count", len(deps), "parser", ParserName)

	return deps, nil
}

func (r *Resolver) imports(ctx context.Context, file string) ([]string, error) {
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.NewResolutionError(errors.ErrCodeEntryNotFound, "cannot read module", err).
			WithFile(file)
	}

	modules, err := parseImports(ctx, source)
	if err != nil {
		return nil, errors.NewResolutionError(errors.ErrCodeParseFailed, "unparseable module header", err).
			WithFile(file)
	}

	return modules, nil
}

// locate maps a dotted module name to the first existing file under roots.
func locate(roots []string, module string) (string, bool) {
	rel := filepath.FromSlash(strings.ReplaceAll(module, ".", "/")) + ".elm"
	for _, root := range roots {
		candidate := filepath.Join(root, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}

	return "", false
}

type projectFile struct {
	SourceDirectories []string `json:"source-directories"`
	Type              string   `json:"type"`
}

// SourceRoots returns the absolute source directories that apply to entry:
// those of the nearest project file walking up from its directory, or the
// entry's own directory when there is none.
func SourceRoots(entry string) ([]string, error) {
	entryDir := filepath.Dir(entry)

	for dir := entryDir; ; dir = filepath.Dir(dir) {
		for _, name := range projectFiles {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}

			var pf projectFile
			if err := json.Unmarshal(data, &pf); err != nil {
				return nil, errors.NewResolutionError(errors.ErrCodeProjectFile, "invalid project file", err).
					WithFile(path)
			}

			dirs := pf.SourceDirectories
			if len(dirs) == 0 {
				// Packages keep their modules under src.
				dirs = []string{"src"}
			}
			roots := make([]string, 0, len(dirs))
			for _, d := range dirs {
				roots = append(roots, filepath.Join(dir, filepath.FromSlash(d)))
			}

			return roots, nil
		}

		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}

	return []string{entryDir}, nil
}

// ModuleName returns the dotted module name of file relative to the
// innermost source root that contains it (src/Page/Home.elm is Page.Home).
// A file outside every root is named by its base name.
func ModuleName(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", errors.NewResolutionError(errors.ErrCodeEntryNotFound, "cannot resolve path", err).
			WithFile(file)
	}

	roots, err := SourceRoots(abs)
	if err != nil {
		return "", err
	}

	rel := filepath.Base(abs)
	best := -1
	for _, root := range roots {
		r, err := filepath.Rel(root, abs)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > best {
			best, rel = len(root), r
		}
	}

	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".elm")

	return strings.ReplaceAll(rel, "/", "."), nil
}
