package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/worklogs/worklogs/internal/utils"
)

const (
	DEFAULT_DIR = ".cache"
	DEFAULT_TTL = time.Hour
	fileSuffix  = ".json"
)

// Options configures a Cache. Zero values pick the defaults.
type Options struct {
	Dir      string
	TTL      time.Duration
	Disabled bool
	Log      utils.Logger
	Now      func() time.Time
}

// Entry describes one stored value. StoredAt is the file modification time.
type Entry struct {
	Key      string
	Payload  []byte
	StoredAt time.Time
}

// Cache stores one file per (namespace, id) and expires entries by mtime.
// Reads and writes never fail from the caller's point of view.
type Cache struct {
	dir      string
	ttl      time.Duration
	disabled bool
	log      utils.Logger
	now      func() time.Time
}

// New returns a cache over opts.Dir. A zero TTL selects DEFAULT_TTL; a
// negative one is rejected.
func New(opts Options) (*Cache, error) {
	if opts.TTL < 0 {
		return nil, fmt.Errorf("cache: negative ttl %s", opts.TTL)
	}
	c := &Cache{
		dir:      opts.Dir,
		ttl:      opts.TTL,
		disabled: opts.Disabled,
		log:      utils.OrNop(opts.Log),
		now:      opts.Now,
	}
	if c.dir == "" {
		c.dir = DEFAULT_DIR
	}
	if c.ttl == 0 {
		c.ttl = DEFAULT_TTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.disabled {
		return c, nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) Dir() string        { return c.dir }
func (c *Cache) Enabled() bool      { return !c.disabled }
func (c *Cache) TTL() time.Duration { return c.ttl }

// Key returns the file name used for (namespace, id).
func Key(namespace, id string) string {
	sum := md5.Sum([]byte(namespace + "\x00" + id))
	return namespace + "_" + hex.EncodeToString(sum[:]) + fileSuffix
}

func (c *Cache) path(namespace, id string) string {
	return filepath.Join(c.dir, Key(namespace, id))
}

func (c *Cache) expired(mtime time.Time) bool {
	return c.now().Sub(mtime) > c.ttl
}

// Lookup returns the entry for (namespace, id) if it exists and is fresh.
// An expired entry is removed.
func (c *Cache) Lookup(namespace, id string) (Entry, bool) {
	if c.disabled {
		return Entry{}, false
	}
	p := c.path(namespace, id)
	info, err := os.Stat(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warnf("cache: stat %s: %v", p, err)
		}
		return Entry{}, false
	}
	if c.expired(info.ModTime()) {
		c.log.Debugf("cache: %s/%s expired", namespace, id)
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warnf("cache: removing %s: %v", p, err)
		}
		return Entry{}, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		c.log.Warnf("cache: reading %s: %v", p, err)
		return Entry{}, false
	}
	return Entry{Key: Key(namespace, id), Payload: data, StoredAt: info.ModTime()}, true
}

func (c *Cache) Get(namespace, id string) ([]byte, bool) {
	e, ok := c.Lookup(namespace, id)
	return e.Payload, ok
}

// Put replaces the entry for (namespace, id). Failures are only logged.
func (c *Cache) Put(namespace, id string, value []byte) {
	if c.disabled {
		return
	}
	p := c.path(namespace, id)
	if err := atomic.WriteFile(p, bytes.NewReader(value)); err != nil {
		c.log.Warnf("cache: writing %s: %v", p, err)
	}
}

// GetJSON decodes the entry into v. A corrupt entry counts as a miss.
func (c *Cache) GetJSON(namespace, id string, v any) bool {
	data, ok := c.Get(namespace, id)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.log.Warnf("cache: corrupt entry %s/%s: %v", namespace, id, err)
		return false
	}
	return true
}

func (c *Cache) PutJSON(namespace, id string, v any) {
	if c.disabled {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warnf("cache: encoding %s/%s: %v", namespace, id, err)
		return
	}
	c.Put(namespace, id, data)
}

func (c *Cache) files() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), fileSuffix) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Prune removes expired entries and returns how many were removed.
func (c *Cache) Prune() (int, error) {
	if c.disabled {
		return 0, nil
	}
	files, err := c.files()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		info, err := f.Info()
		if err != nil || !c.expired(info.ModTime()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.Name())); err != nil {
			c.log.Warnf("cache: removing %s: %v", f.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Clear removes every entry.
func (c *Cache) Clear() (int, error) {
	if c.disabled {
		return 0, nil
	}
	files, err := c.files()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(filepath.Join(c.dir, f.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
