// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache remembers which inputs have already been converted so a
// batch can skip them. An entry is keyed by the (input, output) pair and is
// valid while the input's fingerprint (size and modification time) is
// unchanged and the entry is younger than the retention window.
//
// The whole mapping lives in memory and is rewritten to a single JSON file
// on every update. Read or parse failures degrade to an empty cache: the
// worst case is redundant work, never a wrong answer.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pdiddy/mdconv/internal/logging"
	"github.com/pdiddy/mdconv/pkg/types"
)

// FileName is the name of the cache document inside the cache directory.
const FileName = "file_cache.json"

// ErrPersist wraps failures writing the cache document.
var ErrPersist = errors.New("failed to persist cache")

// Entry is the stored state for one converted pair.
type Entry struct {
	InputPath         string            `json:"input_path"`
	OutputPath        string            `json:"output_path"`
	FileHash          string            `json:"file_hash"`
	Timestamp         time.Time         `json:"timestamp"`
	ConversionOptions map[string]string `json:"conversion_options"`
}

// Stats summarizes the cache for display.
type Stats struct {
	TotalItems    int    `json:"total_items" yaml:"total_items"`
	CacheFile     string `json:"cache_file" yaml:"cache_file"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
}

// Cache is a file-backed content cache. It is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]Entry
	path      string
	retention time.Duration
	days      int
	logger    *slog.Logger
	now       func() time.Time
}

// New loads the cache document from cfg.Dir, purging expired entries. It
// never fails: an unreadable document yields an empty cache and a warning.
func New(cfg types.CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.Discard()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = types.DefaultCacheDir
	}
	days := cfg.RetentionDays
	if days <= 0 {
		days = types.DefaultRetentionDays
	}
	c := &Cache{
		entries:   make(map[string]Entry),
		path:      filepath.Join(dir, FileName),
		retention: time.Duration(days) * 24 * time.Hour,
		days:      days,
		logger:    logger.With(slog.String("component", "cache")),
		now:       time.Now,
	}
	c.load()
	return c
}

// Path returns the location of the cache document.
func (c *Cache) Path() string { return c.path }

func (c *Cache) load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("cannot read cache, starting empty", slog.String("path", c.path), slog.String("error", err.Error()))
		}
		return
	}
	if len(data) == 0 {
		return
	}

	var loaded map[string]Entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		c.logger.Warn("cache is corrupt, starting empty", slog.String("path", c.path), slog.String("error", err.Error()))
		return
	}
	if loaded != nil {
		c.entries = loaded
	}

	cutoff := c.now().Add(-c.retention)
	expired := 0
	for k, e := range c.entries {
		if e.Timestamp.Before(cutoff) {
			delete(c.entries, k)
			expired++
		}
	}
	if expired > 0 {
		c.logger.Info("purged expired cache entries", slog.Int("count", expired))
		if err := c.persistLocked(); err != nil {
			c.logger.Error("cannot persist purged cache", slog.String("error", err.Error()))
		}
	}
	c.logger.Debug("cache loaded", slog.String("path", c.path), slog.Int("entries", len(c.entries)))
}

// IsValid reports whether output is a still-current conversion of input.
func (c *Cache) IsValid(input, output string) bool {
	if _, err := os.Stat(input); err != nil {
		return false
	}
	if _, err := os.Stat(output); err != nil {
		return false
	}

	key := Key(input, output)
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return false
	}

	fp, err := Fingerprint(input)
	if err != nil || fp != entry.FileHash {
		return false
	}
	return !entry.Timestamp.Before(c.now().Add(-c.retention))
}

// Record stores a successful conversion of input into output and rewrites
// the cache document. The in-memory entry is kept even if persisting fails.
func (c *Cache) Record(input, output string, options map[string]string) error {
	fp, err := Fingerprint(input)
	if err != nil {
		c.logger.Warn("cannot fingerprint input, not caching", slog.String("input", input), slog.String("error", err.Error()))
		return err
	}
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(input, output)] = Entry{
		InputPath:         input,
		OutputPath:        output,
		FileHash:          fp,
		Timestamp:         c.now(),
		ConversionOptions: opts,
	}
	if err := c.persistLocked(); err != nil {
		c.logger.Error("cannot persist cache", slog.String("path", c.path), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Invalidate removes the entry for the pair, if any.
func (c *Cache) Invalidate(input, output string) error {
	key := Key(input, output)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	return c.persistLocked()
}

// InvalidateIfOptionsChanged removes the entry for the pair when it was
// recorded with options other than the given ones, and reports whether it
// did.
func (c *Cache) InvalidateIfOptionsChanged(input, output string, options map[string]string) (bool, error) {
	key := Key(input, output)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || maps.Equal(entry.ConversionOptions, options) {
		return false, nil
	}
	delete(c.entries, key)
	c.logger.Debug("conversion options changed, entry dropped", slog.String("input", input))
	return true, c.persistLocked()
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.logger.Info("cache cleared", slog.String("path", c.path))
	return nil
}

// Stats returns a summary of the cache.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalItems:    len(c.entries),
		CacheFile:     c.path,
		RetentionDays: c.days,
	}
}

// persistLocked writes the whole mapping to a temporary file and renames it
// over the cache document. c.mu must be held.
func (c *Cache) persistLocked() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrPersist, dir, err)
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrPersist, err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrPersist, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", ErrPersist, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrPersist, tmpPath, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("%w: renaming to %s: %w", ErrPersist, c.path, err)
	}
	return nil
}
