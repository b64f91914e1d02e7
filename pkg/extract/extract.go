package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/cache"
	"github.com/worklogs/worklogs/pkg/tracker"
	"github.com/worklogs/worklogs/pkg/worklog"
	"golang.org/x/sync/singleflight"
)

const (
	DEFAULT_WORKERS = 10

	NamespaceMetadata = "metadata"
	NamespaceEntries  = "entries"
)

// Config holds everything an Extractor needs.
type Config struct {
	Client  tracker.Client
	Cache   *cache.Cache // optional; nil = no caching
	Workers int          // defaults to 10 if <= 0
	Log     utils.Logger // optional; nil = no logging

	// OnItemDone is called once per key after it is processed (from worker
	// goroutines). Nil = no callback.
	OnItemDone func(key string, entries []worklog.TimeEntry, err error)
}

// KeyError is the failure recorded for a single key.
type KeyError struct {
	Key string
	Err error
}

func (e KeyError) Error() string { return e.Key + ": " + e.Err.Error() }
func (e KeyError) Unwrap() error { return e.Err }

// Result holds the entries of every key that succeeded, in completion
// order, and the failures sorted by key.
type Result struct {
	Entries  []worklog.TimeEntry
	Failures []KeyError
}

type Extractor struct {
	client  tracker.Client
	cache   *cache.Cache
	workers int
	log     utils.Logger
	onDone  func(string, []worklog.TimeEntry, error)
	group   singleflight.Group
}

func New(cfg Config) (*Extractor, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("extract: nil client")
	}
	c := cfg.Cache
	if c == nil {
		var err error
		if c, err = cache.New(cache.Options{Disabled: true}); err != nil {
			return nil, err
		}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DEFAULT_WORKERS
	}
	return &Extractor{
		client:  cfg.Client,
		cache:   c,
		workers: workers,
		log:     utils.OrNop(cfg.Log),
		onDone:  cfg.OnItemDone,
	}, nil
}

func (e *Extractor) Workers() int { return e.workers }

// Extract fetches metadata and worklogs for every key using a fixed pool of
// workers. A key that fails, or panics, contributes no entries and is
// reported in Result.Failures; the other keys are unaffected.
func (e *Extractor) Extract(ctx context.Context, keys []string) *Result {
	result := &Result{}
	if len(keys) == 0 {
		return result
	}

	keyChan := make(chan string, len(keys))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range keyChan {
				entries, err := e.processKey(ctx, key)
				if err != nil {
					e.log.Warnf("Failed to extract worklogs for %s: %v", key, err)
					mu.Lock()
					result.Failures = append(result.Failures, KeyError{Key: key, Err: err})
					mu.Unlock()
				} else {
					e.log.Debugf("Extracted %d worklogs from %s", len(entries), key)
					mu.Lock()
					result.Entries = append(result.Entries, entries...)
					mu.Unlock()
				}

				if e.onDone != nil {
					e.onDone(key, entries, err)
				}
			}
		}()
	}

	for _, k := range keys {
		keyChan <- k
	}
	close(keyChan)
	wg.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Key < result.Failures[j].Key
	})
	return result
}

func (e *Extractor) processKey(ctx context.Context, key string) (entries []worklog.TimeEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	md, err := fetch(e, ctx, NamespaceMetadata, key, e.client.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	wls, err := fetch(e, ctx, NamespaceEntries, key, e.client.Worklogs)
	if err != nil {
		return nil, fmt.Errorf("worklogs: %w", err)
	}

	entries = make([]worklog.TimeEntry, 0, len(wls))
	for _, wl := range wls {
		entries = append(entries, worklog.NewTimeEntry(key, md, wl))
	}
	return entries, nil
}

// fetch returns the cached value for (ns, key) or loads and caches it.
// Concurrent loads of the same value share a single call.
func fetch[T any](e *Extractor, ctx context.Context, ns, key string, load func(context.Context, string) (T, error)) (T, error) {
	var v T
	if e.cache.GetJSON(ns, key, &v) {
		return v, nil
	}
	res, err, shared := e.group.Do(ns+"\x00"+key, func() (any, error) {
		v, err := load(ctx, key)
		if err != nil {
			return v, err
		}
		e.cache.PutJSON(ns, key, v)
		return v, nil
	})
	if shared {
		e.log.Debugf("Shared %s fetch for %s", ns, key)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
