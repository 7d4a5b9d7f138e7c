package localstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// signal records that key changed by writing this store's origin into
// <signalDir>/<key>. Other contexts watching the directory reload the key.
func (s *Store) signal(key string) {
	if s.signalDir == "" {
		return
	}
	if err := os.MkdirAll(s.signalDir, 0o755); err != nil {
		s.logger.Warn("creating signal directory", "dir", s.signalDir, "error", err)
		return
	}

	tmp, err := os.CreateTemp(s.signalDir, ".signal-*")
	if err != nil {
		s.logger.Warn("writing change signal", "key", key, "error", err)
		return
	}
	_, werr := tmp.WriteString(s.origin)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		s.logger.Warn("writing change signal", "key", key, "error", errors.Join(werr, cerr))
		return
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.signalDir, url.PathEscape(key))); err != nil {
		os.Remove(tmp.Name())
		s.logger.Warn("publishing change signal", "key", key, "error", err)
	}
}

// Watch observes the signal directory until ctx is cancelled. A change
// written by another context drops the cached value for that key, re-reads
// it and notifies subscribers. Signals carrying this store's origin are
// ignored. Watch returns nil immediately when no signal directory is set.
func (s *Store) Watch(ctx context.Context) error {
	if s.signalDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.signalDir, 0o755); err != nil {
		return fmt.Errorf("creating signal directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.signalDir); err != nil {
		return fmt.Errorf("watching %s: %w", s.signalDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			s.handleSignal(ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("signal watcher error", "error", err)
		}
	}
}

func (s *Store) handleSignal(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	key, err := url.PathUnescape(name)
	if err != nil {
		return
	}

	origin, err := os.ReadFile(path)
	if err != nil {
		// Replaced again before we got to it; the next event covers it.
		return
	}
	if strings.TrimSpace(string(origin)) == s.origin {
		return
	}

	s.logger.Debug("external change", "key", key)
	s.invalidate(key)
	s.bus.publish(key)
}
