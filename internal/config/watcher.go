package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// snapshot is one successfully validated read of the config file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher polls a config file and reports validated edits to a callback.
// Only a changed mtime triggers a read, and only changed content triggers the
// callback, so touching the file is free.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu   sync.Mutex
	last snapshot
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher reads and validates path once and returns a watcher holding that
// config. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = snap
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll reloads the file when its mtime moved. A file that fails to load or
// validate leaves the current config in place.
func (w *Watcher) poll() {
	log := slog.With("path", w.path)

	info, err := os.Stat(w.path)
	if err != nil {
		log.Warn("config watcher: stat failed", "err", err)
		return
	}

	w.mu.Lock()
	prev := w.last
	w.mu.Unlock()
	if info.ModTime().Equal(prev.mtime) {
		return
	}

	next, err := readSnapshot(w.path)
	if err != nil {
		log.Warn("config watcher: keeping previous config", "err", err)
		return
	}

	w.mu.Lock()
	w.last = next
	w.mu.Unlock()

	if next.sum == prev.sum {
		return
	}
	log.Info("config watcher: configuration reloaded")
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
}

func readSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
