package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/mattbaird/ontology-sub000/internal/schema"
)

// DefaultCacheSize bounds the number of parsed documents a Loader keeps
const DefaultCacheSize = 1024

// documentPattern matches package documents inside a directory
const documentPattern = "**/*.{yml,yaml,json}"

// Loader reads package documents and links them into graphs. Parsed
// documents are cached by content digest so a reload only parses files that
// changed. A Loader is safe for concurrent use.
type Loader struct {
	cache   *lru.Cache[digest.Digest, *schema.Package]
	workers int
	hits    atomic.Int64
	misses  atomic.Int64
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithCacheSize sets how many parsed documents are kept
func WithCacheSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.cache, _ = lru.New[digest.Digest, *schema.Package](n)
		}
	}
}

// WithWorkers bounds how many documents are parsed at once
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// NewLoader creates a loader
func NewLoader(opts ...LoaderOption) *Loader {
	cache, _ := lru.New[digest.Digest, *schema.Package](DefaultCacheSize)
	l := &Loader{cache: cache, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CacheStats reports document cache usage since the loader was created
type CacheStats struct {
	Hits   int64
	Misses int64
}

// Stats returns cache usage counters
func (l *Loader) Stats() CacheStats {
	return CacheStats{Hits: l.hits.Load(), Misses: l.misses.Load()}
}

// Load expands paths (files, directories, and doublestar globs), parses
// every document, and builds a graph. Syntax errors of all files are
// reported together with link errors.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Graph, error) {
	files, err := Expand(paths...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no package documents found in %v", paths)
	}

	type parsed struct {
		pkg  *schema.Package
		errs []*LoadError
	}
	results := make([]parsed, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pkg, errs, err := l.parse(file)
			if err != nil {
				return err
			}
			results[i] = parsed{pkg: pkg, errs: errs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs errorList
	pkgs := make([]*schema.Package, 0, len(files))
	for _, r := range results {
		for _, le := range r.errs {
			errs.add(le)
		}
		if r.pkg != nil {
			pkgs = append(pkgs, r.pkg)
		}
	}

	graph, err := Build(pkgs...)
	if err != nil {
		for _, le := range LoadErrors(err) {
			errs.add(le)
		}
	}
	if errs.len() > 0 {
		return nil, errs.err()
	}
	return graph, nil
}

// parse reads one document, consulting the cache first. I/O failures are
// returned as errors; document problems as load errors.
func (l *Loader) parse(file string) (*schema.Package, []*LoadError, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read package file: %w", err)
	}

	key := digest.FromBytes(data)
	if cached, ok := l.cache.Get(key); ok {
		l.hits.Add(1)
		return withSource(cached, file), nil, nil
	}
	l.misses.Add(1)

	pkg, err := schema.ParseBytes(data)
	if err != nil {
		var verrs schema.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fromValidation(file, verrs, KindSyntax, ""), nil
		}
		return nil, []*LoadError{{Kind: KindSyntax, Message: err.Error(), Source: file}}, nil
	}
	l.cache.Add(key, pkg)
	return withSource(pkg, file), nil, nil
}

// withSource copies pkg so cached documents are never mutated
func withSource(pkg *schema.Package, file string) *schema.Package {
	cp := *pkg
	cp.Source = file
	return &cp
}

// Expand turns paths into a sorted, deduplicated list of document files.
// Directories are searched recursively for .yml, .yaml, and .json files.
func Expand(paths ...string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(f string) {
		f = filepath.Clean(f)
		if !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		switch {
		case err == nil && info.IsDir():
			matches, err := doublestar.Glob(os.DirFS(p), documentPattern)
			if err != nil {
				return nil, fmt.Errorf("failed to search %s: %w", p, err)
			}
			for _, m := range matches {
				add(filepath.Join(p, filepath.FromSlash(m)))
			}
		case err == nil:
			add(p)
		case errors.Is(err, fs.ErrNotExist) && hasMeta(p):
			matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %s: %w", p, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("pattern %s matched no files", p)
			}
			for _, m := range matches {
				add(m)
			}
		default:
			return nil, fmt.Errorf("failed to read package path: %w", err)
		}
	}

	sort.Strings(files)
	return files, nil
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
