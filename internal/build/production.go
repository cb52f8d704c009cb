package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
)

// Class identifies an artifact class. Each class has its own manifest.
type Class string

const (
	ClassScript Class = "script"
	ClassStyle  Class = "style"
)

// ManifestName returns the manifest filename of the class.
func (c Class) ManifestName() string {
	if c == ClassStyle {
		return StyleManifestName
	}

	return ScriptManifestName
}

// Build stages reported in errors.
const (
	StageInstall = "install"
	StageClean   = "clean"
	StageMain    = "main"
	StageStyles  = "styles"
)

// MainOptions configures a script build.
type MainOptions struct {
	Entry      string
	OutputPath string
	PublicPath string
	Minify     bool
}

// StyleOptions configures a stylesheet build.
type StyleOptions struct {
	Entry      string
	OutputPath string
	PublicPath string
	Minify     bool
}

// BuildOptions configures a full production build.
type BuildOptions struct {
	Main        string
	Stylesheets string
	OutputPath  string
	PublicPath  string
	Minify      bool
}

// Result reports one artifact class build.
type Result struct {
	Class    Class
	Manifest *Manifest
	// Files lists every file written, relative to the output directory,
	// including the manifest.
	Files    []string
	Duration time.Duration
}

// Report is the outcome of a full build.
type Report struct {
	Styles   *Result
	Main     *Result
	Duration time.Duration
}

// Orchestrator runs compiles and turns their output into hashed artifacts.
type Orchestrator struct {
	compiler  Compiler
	installer Installer
	root      string
	tag       string
	minifier  *Minifier
	metrics   *BuildMetrics
	logger    logging.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInstaller sets the package installer run before a full build.
func WithInstaller(installer Installer) Option {
	return func(o *Orchestrator) { o.installer = installer }
}

// WithRoot sets the directory asset references are resolved against.
func WithRoot(root string) Option {
	return func(o *Orchestrator) { o.root = root }
}

// WithAssetTag sets the asset tag name.
func WithAssetTag(tag string) Option {
	return func(o *Orchestrator) { o.tag = tag }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger.WithComponent("build")
		}
	}
}

// WithMetrics records every class build into metrics.
func WithMetrics(metrics *BuildMetrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// NewOrchestrator creates an orchestrator around compiler.
func NewOrchestrator(compiler Compiler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		compiler: compiler,
		tag:      "AssetPath",
		minifier: NewMinifier(),
		metrics:  NewBuildMetrics(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Metrics returns the build metrics.
func (o *Orchestrator) Metrics() *BuildMetrics {
	return o.metrics
}

// Build installs packages, cleans the output directory and builds both
// artifact classes concurrently. Either class failing fails the build.
func (o *Orchestrator) Build(ctx context.Context, opts BuildOptions) (*Report, error) {
	start := time.Now()
	op := logging.StartOperation(o.logger, "build")

	root := o.root
	if root == "" {
		root = "."
	}
	if err := CheckOutputPath(opts.OutputPath, root, opts.Main, opts.Stylesheets); err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}

	if o.installer != nil {
		if err := o.installer.Install(ctx, o.root); err != nil {
			err = errors.WrapStage(err, StageInstall)
			op.EndWithError(ctx, err)
			return nil, err
		}
	}

	if err := CleanDir(opts.OutputPath); err != nil {
		err = errors.WrapStage(err, StageClean)
		op.EndWithError(ctx, err)
		return nil, err
	}

	var (
		wg                   sync.WaitGroup
		styles, script       *Result
		stylesErr, scriptErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		styles, stylesErr = o.BuildStyles(ctx, StyleOptions{
			Entry:      opts.Stylesheets,
			OutputPath: opts.OutputPath,
			PublicPath: opts.PublicPath,
			Minify:     opts.Minify,
		})
	}()
	go func() {
		defer wg.Done()
		script, scriptErr = o.BuildMain(ctx, MainOptions{
			Entry:      opts.Main,
			OutputPath: opts.OutputPath,
			PublicPath: opts.PublicPath,
			Minify:     opts.Minify,
		})
	}()
	wg.Wait()

	if err := errors.CombineErrors(stylesErr, scriptErr); err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}

	report := &Report{Styles: styles, Main: script, Duration: time.Since(start)}
	op.End(ctx, "files", len(styles.Files)+len(script.Files))

	return report, nil
}

// BuildMain compiles the main entry, rewrites asset references and writes
// the hashed script, its assets and js-manifest.json.
func (o *Orchestrator) BuildMain(ctx context.Context, opts MainOptions) (result *Result, err error) {
	start := time.Now()
	defer func() { o.record(ClassScript, start, err) }()

	if err := EnsureDir(opts.OutputPath); err != nil {
		return nil, errors.WrapStage(err, StageMain)
	}

	contents, err := o.compiler.CompileMain(ctx, opts.Entry)
	if err != nil {
		return nil, errors.WrapStage(err, StageMain)
	}

	rewriter := o.rewriter(opts.PublicPath)
	contents, assets, err := rewriter.Rewrite(contents)
	if err != nil {
		return nil, errors.WrapStage(err, StageMain)
	}

	if opts.Minify {
		if contents, err = o.minifier.Script(contents); err != nil {
			return nil, errors.WrapStage(err, StageMain)
		}
	}

	name := DeriveFilename(contents, ".js")
	manifest := NewManifest()
	manifest.Set(LogicalScriptName(opts.Entry), name)

	files, err := o.writeClass(opts.OutputPath, ClassScript, manifest, map[string][]byte{name: contents}, assets)
	if err != nil {
		return nil, errors.WrapStage(err, StageMain)
	}

	o.logger.Info(ctx, "Built script", "entry", opts.Entry, "file", name, "assets", len(assets))

	return &Result{
		Class:    ClassScript,
		Manifest: manifest,
		Files:    files,
		Duration: time.Since(start),
	}, nil
}

// BuildStyles runs the stylesheet program and writes each produced
// stylesheet under its hashed name, followed by css-manifest.json.
func (o *Orchestrator) BuildStyles(ctx context.Context, opts StyleOptions) (result *Result, err error) {
	start := time.Now()
	defer func() { o.record(ClassStyle, start, err) }()

	if err := EnsureDir(opts.OutputPath); err != nil {
		return nil, errors.WrapStage(err, StageStyles)
	}

	tmpDir, err := os.MkdirTemp("", "elm-factory-styles-*")
	if err != nil {
		return nil, errors.WrapStage(
			errors.NewIOError(errors.ErrCodeInternalError, "failed to create temp dir", err), StageStyles)
	}
	defer os.RemoveAll(tmpDir)

	styleFiles, err := o.compiler.CompileStyles(ctx, opts.Entry, tmpDir)
	if err != nil {
		return nil, errors.WrapStage(err, StageStyles)
	}

	rewriter := o.rewriter(opts.PublicPath)
	manifest := NewManifest()
	outputs := make(map[string][]byte, len(styleFiles))
	var assets []Asset

	for _, sf := range styleFiles {
		contents, tagged, err := rewriter.Rewrite(sf.Contents)
		if err != nil {
			return nil, errors.WrapStage(err, StageStyles)
		}
		contents, referenced := rewriter.RewriteCSSURLs(ctx, contents)

		if opts.Minify {
			if contents, err = o.minifier.Style(contents); err != nil {
				return nil, errors.WrapStage(err, StageStyles)
			}
		}

		name := DeriveFilename(contents, ".css")
		manifest.Set(sf.Name, name)
		outputs[name] = contents
		for _, a := range append(tagged, referenced...) {
			assets = appendAsset(assets, a)
		}
	}

	files, err := o.writeClass(opts.OutputPath, ClassStyle, manifest, outputs, assets)
	if err != nil {
		return nil, errors.WrapStage(err, StageStyles)
	}

	o.logger.Info(ctx, "Built stylesheets", "entry", opts.Entry, "files", manifest.Len(), "assets", len(assets))

	return &Result{
		Class:    ClassStyle,
		Manifest: manifest,
		Files:    files,
		Duration: time.Since(start),
	}, nil
}

// writeClass writes assets, then artifacts, then the manifest, so a
// manifest only ever names files that exist.
func (o *Orchestrator) writeClass(dir string, class Class, manifest *Manifest, outputs map[string][]byte, assets []Asset) ([]string, error) {
	var files []string

	for _, a := range assets {
		if err := WriteFileAtomic(filepath.Join(dir, a.Name), a.Contents, 0o644); err != nil {
			return nil, err
		}
		files = append(files, a.Name)
	}

	for _, name := range manifest.Files() {
		contents, ok := outputs[name]
		if !ok {
			continue
		}
		if err := WriteFileAtomic(filepath.Join(dir, name), contents, 0o644); err != nil {
			return nil, err
		}
		files = append(files, name)
		// Identical stylesheets share one hashed file.
		delete(outputs, name)
	}

	data, err := manifest.MarshalJSON()
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to encode manifest", err)
	}
	if err := WriteFileAtomic(filepath.Join(dir, class.ManifestName()), data, 0o644); err != nil {
		return nil, err
	}
	files = append(files, class.ManifestName())

	return files, nil
}

func (o *Orchestrator) rewriter(publicPath string) *Rewriter {
	return NewRewriter(o.root, publicPath, WithTag(o.tag), WithRewriterLogger(o.logger))
}

func (o *Orchestrator) record(class Class, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordBuild(BuildRecord{Class: class, Duration: time.Since(start), Error: err})
}

// LogicalScriptName returns the manifest key of the main script: the
// entry's base name with a .js extension.
func LogicalScriptName(entry string) string {
	base := filepath.Base(entry)

	return strings.TrimSuffix(base, filepath.Ext(base)) + ".js"
}
