/*
scheduler.go - Frame cache warmer

PURPOSE:
  Periodically loads a configured list of schemes into the frame cache so
  the first costing request after a TTL expiry does not pay for the load.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips schemes whose frame is already cached
  - Failures are logged and retried on the next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 10 minutes)
  - Enabled: Whether warmer is active (default: true when schemes are listed)

USAGE:
  warmer := NewCacheWarmer(runner.Cache(), schemeIDs, log)
  warmer.Start()
  // ... later
  warmer.Stop()

SEE ALSO:
  - cache/cache.go: GetOrLoad
  - handlers.go: InvalidateCache endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/scheme-engine/cache"
)

// DefaultWarmInterval is the warmer's check interval.
const DefaultWarmInterval = 10 * time.Minute

// CacheWarmer keeps a fixed list of schemes resident in the frame cache.
type CacheWarmer struct {
	Cache         *cache.FrameCache
	SchemeIDs     []string
	CheckInterval time.Duration
	// LoadTimeout bounds each scheme load.
	LoadTimeout time.Duration
	Enabled     bool
	Log         *logrus.Entry

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCacheWarmer creates a warmer. It is disabled when schemeIDs is empty.
func NewCacheWarmer(c *cache.FrameCache, schemeIDs []string, log *logrus.Entry) *CacheWarmer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CacheWarmer{
		Cache:         c,
		SchemeIDs:     schemeIDs,
		CheckInterval: DefaultWarmInterval,
		LoadTimeout:   2 * time.Minute,
		Enabled:       len(schemeIDs) > 0,
		Log:           log.WithField("component", "warmer"),
	}
}

// Start begins the warmer.
func (cw *CacheWarmer) Start() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.Enabled {
		cw.Log.Debug("warmer disabled, not starting")
		return
	}
	if cw.ticker != nil {
		return
	}

	cw.ticker = time.NewTicker(cw.CheckInterval)
	cw.stop = make(chan struct{})
	cw.wg.Add(1)

	go cw.run(cw.ticker, cw.stop)

	cw.Log.WithField("interval", cw.CheckInterval.String()).Info("warmer started")
}

// Stop stops the warmer and waits for an in-flight pass.
func (cw *CacheWarmer) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.ticker != nil {
		cw.ticker.Stop()
		close(cw.stop)
		cw.wg.Wait()
		cw.ticker = nil
		cw.Log.Info("warmer stopped")
	}
}

func (cw *CacheWarmer) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cw.wg.Done()

	// Run immediately on start
	cw.RunNow()

	for {
		select {
		case <-ticker.C:
			cw.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one pass and returns how many schemes it loaded.
func (cw *CacheWarmer) RunNow() int {
	loaded, skipped := 0, 0

	for _, id := range cw.SchemeIDs {
		if _, ok := cw.Cache.Get(id); ok {
			skipped++
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), cw.LoadTimeout)
		_, err := cw.Cache.GetOrLoad(ctx, id)
		cancel()
		if err != nil {
			cw.Log.WithError(err).WithField("scheme_id", id).Warn("warm load failed")
			continue
		}
		loaded++
	}

	if loaded > 0 {
		cw.Log.WithFields(logrus.Fields{"loaded": loaded, "skipped": skipped}).Info("warm pass complete")
	}
	return loaded
}
