/*
Package cache holds loaded (config, frame) pairs so repeated requests for the
same scheme skip the datastore.

TIERS:
  L1  in-process expirable LRU keyed by content hash, with a scheme-id index
  L2  optional redis snapshot of the frame, loads guarded by a redis lock

LOADING:
  GetOrLoad collapses concurrent misses for one scheme into a single load.
  The load runs detached from the caller's context: a caller that times out
  gets ErrTimeout, and the load still completes and populates the cache.

EVICTION:
  Entries expire after the TTL; the LRU tail goes first at the size cap.
  Readers keep whatever *Entry they already hold; eviction only drops the
  cache's reference.
*/
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

const (
	DefaultTTL        = 15 * time.Minute
	DefaultMaxEntries = 32
)

// Entry is one loaded scheme. Both fields are read-only once cached.
type Entry struct {
	Key      Key
	Config   *scheme.Config
	Frame    *frame.Frame
	LoadedAt time.Time
}

// Source performs the two loads behind a miss. *loader.Loader satisfies it.
type Source interface {
	LoadConfig(ctx context.Context, schemeID string) (*scheme.Config, error)
	LoadFrame(ctx context.Context, cfg *scheme.Config) (*frame.Frame, error)
}

// Options configure a FrameCache. Zero values take the defaults.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	Redis      *RedisTier
	Log        *logrus.Entry
}

// Stats are cumulative counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Loads  int64 `json:"loads"`
	L2Hits int64 `json:"l2_hits"`
}

// FrameCache is safe for concurrent use.
type FrameCache struct {
	src   Source
	lru   *expirable.LRU[Key, *Entry]
	l2    *RedisTier
	log   *logrus.Entry
	group singleflight.Group

	// mu guards index and gen. Never hold it while calling into lru: the
	// eviction callback takes mu under the lru's own lock.
	mu    sync.Mutex
	index map[string]Key
	// gen counts invalidations per scheme. A load started before the latest
	// invalidation must not cache what it read.
	gen map[string]uint64

	hits, misses, loads, l2Hits atomic.Int64
}

// New creates a cache over src.
func New(src Source, opts Options) *FrameCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &FrameCache{
		src:   src,
		l2:    opts.Redis,
		log:   opts.Log.WithField("component", "cache"),
		index: make(map[string]Key),
		gen:   make(map[string]uint64),
	}
	c.lru = expirable.NewLRU[Key, *Entry](opts.MaxEntries, c.evicted, opts.TTL)
	return c
}

func (c *FrameCache) evicted(k Key, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.index[e.Config.SchemeID]; ok && cur == k {
		delete(c.index, e.Config.SchemeID)
	}
}

// Get returns the cached entry for schemeID.
func (c *FrameCache) Get(schemeID string) (*Entry, bool) {
	c.mu.Lock()
	k, ok := c.index[schemeID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.lru.Get(k)
}

// Put caches e and points its scheme id at it.
func (c *FrameCache) Put(e *Entry) {
	c.lru.Add(e.Key, e)
	c.mu.Lock()
	c.index[e.Config.SchemeID] = e.Key
	c.mu.Unlock()
}

// Invalidate drops the entry for schemeID, if any. A load already in flight
// still answers its waiters but leaves the cache alone, and the next
// GetOrLoad starts a fresh load.
func (c *FrameCache) Invalidate(schemeID string) {
	c.mu.Lock()
	k, ok := c.index[schemeID]
	delete(c.index, schemeID)
	c.gen[schemeID]++
	c.mu.Unlock()
	c.group.Forget(schemeID)
	if ok {
		c.lru.Remove(k)
	}
}

func (c *FrameCache) generation(schemeID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[schemeID]
}

// putIfCurrent caches e unless schemeID was invalidated since gen was read.
// The generation is checked again after the add, since Invalidate may land
// between the check and the index update.
func (c *FrameCache) putIfCurrent(e *Entry, gen uint64) bool {
	id := e.Config.SchemeID
	if c.generation(id) != gen {
		return false
	}
	c.lru.Add(e.Key, e)
	c.mu.Lock()
	if c.gen[id] != gen {
		c.mu.Unlock()
		c.lru.Remove(e.Key)
		return false
	}
	c.index[id] = e.Key
	c.mu.Unlock()
	return true
}

// Len returns the number of live L1 entries.
func (c *FrameCache) Len() int { return c.lru.Len() }

func (c *FrameCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loads.Load(),
		L2Hits: c.l2Hits.Load(),
	}
}

// GetOrLoad returns the entry for schemeID, loading it on a miss.
func (c *FrameCache) GetOrLoad(ctx context.Context, schemeID string) (*Entry, error) {
	if e, ok := c.Get(schemeID); ok {
		c.hits.Add(1)
		return e, nil
	}
	c.misses.Add(1)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(schemeID, func() (any, error) {
		return c.load(detached, schemeID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: loading %s: %w", scheme.ErrTimeout, schemeID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

func (c *FrameCache) load(ctx context.Context, schemeID string) (*Entry, error) {
	gen := c.generation(schemeID)

	cfg, err := c.src.LoadConfig(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	key := KeyOf(cfg)
	if cached, ok := c.lru.Get(key); ok {
		e := &Entry{Key: key, Config: cfg, Frame: cached.Frame, LoadedAt: cached.LoadedAt}
		c.putIfCurrent(e, gen)
		return e, nil
	}

	fr, err := c.frame(ctx, cfg, key)
	if err != nil {
		return nil, err
	}
	e := &Entry{Key: key, Config: cfg, Frame: fr, LoadedAt: time.Now()}
	if !c.putIfCurrent(e, gen) {
		c.log.WithField("scheme_id", schemeID).Debug("scheme invalidated during load, result not cached")
	}
	return e, nil
}

// frame consults L2 before the datastore. With L2 configured, only the lock
// holder loads; everyone else finds its snapshot afterwards.
func (c *FrameCache) frame(ctx context.Context, cfg *scheme.Config, key Key) (*frame.Frame, error) {
	log := c.log.WithFields(logrus.Fields{"scheme_id": cfg.SchemeID, "key": key.String()})

	if fr, ok := c.fromL2(ctx, key, log); ok {
		return fr, nil
	}

	unlock, err := c.l2.Lock(ctx, key)
	if err != nil {
		log.WithError(err).Warn("cache lock unavailable, loading without it")
	} else {
		defer unlock()
		if fr, ok := c.fromL2(ctx, key, log); ok {
			return fr, nil
		}
	}

	c.loads.Add(1)
	fr, err := c.src.LoadFrame(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.l2.Put(ctx, key, fr); err != nil {
		log.WithError(err).Warn("cache snapshot write failed")
	}
	return fr, nil
}

func (c *FrameCache) fromL2(ctx context.Context, key Key, log *logrus.Entry) (*frame.Frame, bool) {
	fr, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("cache snapshot read failed")
		return nil, false
	}
	if ok {
		c.l2Hits.Add(1)
	}
	return fr, ok
}
