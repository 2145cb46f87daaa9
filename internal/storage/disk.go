package storage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

const fileExt = ".json"

// DiskCache persists each cache key as one JSON file under dir and keeps
// a read-through mirror in memory.
type DiskCache struct {
	dir     string
	loggers ldlog.Loggers

	mu      sync.RWMutex
	loaded  map[string]map[string]domain.Evaluation
	metrics Metrics
}

// NewDiskCache creates the directory if needed
func NewDiskCache(dir string, loggers ldlog.Loggers) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	loggers.SetPrefix("[pennant.storage]")

	return &DiskCache{
		dir:     dir,
		loggers: loggers,
		loaded:  make(map[string]map[string]domain.Evaluation),
	}, nil
}

func (d *DiskCache) filePath(key string) string {
	return filepath.Join(d.dir, url.PathEscape(key)+fileExt)
}

func (d *DiskCache) Get(key, id string) (domain.Evaluation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.scope(key)[id]
	if ok {
		d.metrics.Hits++
	} else {
		d.metrics.Misses++
	}
	return e, ok
}

func (d *DiskCache) GetAll(key string) []domain.Evaluation {
	d.mu.Lock()
	defer d.mu.Unlock()

	return sortedValues(d.scope(key))
}

func (d *DiskCache) Put(key, id string, evaluation domain.Evaluation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	scope := d.scope(key)
	if _, exists := scope[id]; exists {
		d.metrics.KeysUpdated++
	} else {
		d.metrics.KeysAdded++
	}
	scope[id] = evaluation
	d.persist(key, scope)
}

func (d *DiskCache) PutAll(key string, evaluations []domain.Evaluation) {
	scope := make(map[string]domain.Evaluation, len(evaluations))
	for _, e := range evaluations {
		scope[e.Flag] = e
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.loaded[key] = scope
	d.metrics.KeysAdded += uint64(len(scope))
	d.persist(key, scope)
}

func (d *DiskCache) Remove(key, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	scope := d.scope(key)
	if _, ok := scope[id]; !ok {
		return
	}
	delete(scope, id)
	d.metrics.KeysDeleted++
	d.persist(key, scope)
}

func (d *DiskCache) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.loaded = make(map[string]map[string]domain.Evaluation)

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.loggers.Errorf("Failed to list cache dir %s: %v", d.dir, err)
		return
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != fileExt {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil {
			d.loggers.Warnf("Failed to remove cache file %s: %v", e.Name(), err)
		}
	}
}

// Keys lists the cache keys present on disk
func (d *DiskCache) Keys() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) != fileExt {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (d *DiskCache) Metrics() Metrics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metrics
}

// scope returns the mirror for key, loading it from disk on first use.
// Callers hold d.mu.
func (d *DiskCache) scope(key string) map[string]domain.Evaluation {
	if scope, ok := d.loaded[key]; ok {
		return scope
	}

	scope := make(map[string]domain.Evaluation)
	data, err := os.ReadFile(d.filePath(key))
	switch {
	case err == nil:
		var list []domain.Evaluation
		if err := json.Unmarshal(data, &list); err != nil {
			d.loggers.Warnf("Ignoring unreadable cache file for %s: %v", key, err)
			break
		}
		for _, e := range list {
			scope[e.Flag] = e
		}
	case !os.IsNotExist(err):
		d.loggers.Warnf("Failed to read cache file for %s: %v", key, err)
	}

	d.loaded[key] = scope
	return scope
}

// persist writes scope to a temp file and renames it over the old one.
// Callers hold d.mu.
func (d *DiskCache) persist(key string, scope map[string]domain.Evaluation) {
	data, err := json.MarshalIndent(sortedValues(scope), "", "  ")
	if err != nil {
		d.metrics.WriteErrors++
		d.loggers.Errorf("Failed to encode cache for %s: %v", key, err)
		return
	}

	file := d.filePath(key)
	tmp, err := os.CreateTemp(d.dir, ".pending-*")
	if err != nil {
		d.metrics.WriteErrors++
		d.loggers.Errorf("Failed to write cache for %s: %v", key, err)
		return
	}
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		d.metrics.WriteErrors++
		d.loggers.Errorf("Failed to write cache for %s: %v", key, firstErr(writeErr, closeErr))
		return
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		os.Remove(tmp.Name())
		d.metrics.WriteErrors++
		d.loggers.Errorf("Failed to replace cache file for %s: %v", key, err)
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
