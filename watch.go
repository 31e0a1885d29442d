package ontology

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/mattbaird/ontology-sub000/internal/logger"
)

// Watch reloads the graph whenever a package document under the service
// paths changes. Bursts of events are coalesced into one reload after the
// debounce delay. Failed reloads are logged and keep the previous graph.
// Watch blocks until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dirs, err := watchDirs(s.paths)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}
	s.log.Debug("watching package directories", logger.F("dirs", dirs))

	flush := time.NewTimer(0)
	if !flush.Stop() {
		<-flush.C
	}
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.Add(ev.Name)
					continue
				}
			}
			if !isDocument(ev.Name) || ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			s.log.Debug("package document changed", logger.F("file", ev.Name), logger.F("op", ev.Op.String()))
			flush.Reset(s.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watch error", logger.F("error", err))

		case <-flush.C:
			_, _ = s.Reload(ctx)
		}
	}
}

func isDocument(name string) bool {
	switch filepath.Ext(name) {
	case ".yml", ".yaml", ".json":
		return true
	}
	return false
}

// watchDirs lists every directory a path can load documents from: the
// directory itself and its subdirectories, a file's parent, or the static
// prefix of a glob
func watchDirs(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(d string) {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	for _, p := range paths {
		root := p
		info, err := os.Stat(p)
		switch {
		case err == nil && !info.IsDir():
			add(filepath.Dir(p))
			continue
		case err != nil:
			base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
			root = filepath.FromSlash(base)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}
