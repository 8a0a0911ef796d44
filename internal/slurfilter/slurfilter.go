// Package slurfilter redacts configured terms from inbound comment bodies.
//
// The pattern is a single regular expression supplied through a file so
// operators can tune it without recompiling; Watch hot-swaps the compiled
// pattern when that file changes.
package slurfilter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Replacement substitutes every pattern match on the inbound path.
const Replacement = "*removed*"

// Filter applies a swappable redaction pattern.
type Filter struct {
	mu sync.RWMutex
	re *regexp.Regexp // nil means filtering is disabled
}

// New compiles pattern into a Filter. An empty pattern disables filtering.
func New(pattern string) (*Filter, error) {
	f := &Filter{}
	if err := f.Reload(pattern); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFile builds a Filter from the pattern file at path. A missing or
// empty file disables filtering rather than failing startup.
func LoadFile(path string) (*Filter, error) {
	if path == "" {
		return New("")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New("")
		}
		return nil, fmt.Errorf("slurfilter: read pattern file: %w", err)
	}
	return New(strings.TrimSpace(string(data)))
}

// Reload replaces the active pattern. The old pattern stays active if the
// new one does not compile.
func (f *Filter) Reload(pattern string) error {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		re, err = regexp.Compile("(?i)" + pattern)
		if err != nil {
			return fmt.Errorf("slurfilter: compile pattern: %w", err)
		}
	}
	f.mu.Lock()
	f.re = re
	f.mu.Unlock()
	return nil
}

// Apply redacts every match in text. Called only on the inbound path;
// outbound rendering re-emits already-filtered stored content.
func (f *Filter) Apply(text string) string {
	f.mu.RLock()
	re := f.re
	f.mu.RUnlock()
	if re == nil {
		return text
	}
	return re.ReplaceAllString(text, Replacement)
}

// Enabled reports whether a pattern is active.
func (f *Filter) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.re != nil
}

// Watch reloads the pattern whenever the file at path is written or
// replaced, until ctx is cancelled. The parent directory is watched so
// atomic rename-over saves are picked up too.
func (f *Filter) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("slurfilter: new watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("slurfilter: watch %s: %w", dir, err)
	}
	logger.Info("slurfilter: watching pattern file", slog.String("path", path))

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			logger.Info("slurfilter: watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				logger.Warn("slurfilter: read pattern failed", slog.String("error", readErr.Error()))
				continue
			}
			if reloadErr := f.Reload(strings.TrimSpace(string(data))); reloadErr != nil {
				logger.Warn("slurfilter: reload failed, keeping previous pattern",
					slog.String("error", reloadErr.Error()))
				continue
			}
			logger.Info("slurfilter: pattern reloaded", slog.String("path", path))

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("slurfilter: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
