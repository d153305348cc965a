/*
Package batch runs many costing requests at once.

SCHEDULING:
  Requests are grouped by scheme id. A group runs sequentially so every
  request after the first hits the cached frame; groups run in parallel on a
  bounded pool. Responses come back in request order.

ISOLATION:
  Nothing crosses the batch boundary as an error. Every failure, panics
  included, becomes a Response with Success false, the request echoed back
  and a stable error kind. EmptyScheme is a success with empty data.

SEE ALSO:
  - cache/cache.go: frame loading and sharing
  - costing/engine.go: the per-scheme pipeline
*/
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/warp/scheme-engine/cache"
	"github.com/warp/scheme-engine/config"
	"github.com/warp/scheme-engine/costing"
	"github.com/warp/scheme-engine/loader"
	"github.com/warp/scheme-engine/scheme"
)

const (
	DefaultWorkers = 8
	DefaultTimeout = 120 * time.Second
)

// Options configure a Runner. Zero values take the defaults.
type Options struct {
	Workers int
	Timeout time.Duration
	Log     *logrus.Entry
}

// Runner executes requests against a frame cache.
type Runner struct {
	cache   *cache.FrameCache
	store   scheme.Datastore
	workers int
	timeout time.Duration
	log     *logrus.Entry
}

// NewRunner creates a runner. store serves strata growth lookups.
func NewRunner(c *cache.FrameCache, store scheme.Datastore, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		cache:   c,
		store:   store,
		workers: opts.Workers,
		timeout: opts.Timeout,
		log:     opts.Log.WithField("component", "batch"),
	}
}

// Cache returns the runner's frame cache.
func (r *Runner) Cache() *cache.FrameCache { return r.cache }

// RunBatch executes reqs and returns one response per request, in order.
func (r *Runner) RunBatch(ctx context.Context, reqs []Request) []Response {
	responses := make([]Response, len(reqs))

	// One strata loader per batch: accounts shared across schemes are
	// looked up once.
	engine := costing.NewEngine(loader.NewStrataLoader(r.store), r.log)

	var order []string
	groups := make(map[string][]int)
	for i, req := range reqs {
		if _, ok := groups[req.SchemeID]; !ok {
			order = append(order, req.SchemeID)
		}
		groups[req.SchemeID] = append(groups[req.SchemeID], i)
	}

	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, id := range order {
		idx := groups[id]
		g.Go(func() error {
			for _, i := range idx {
				responses[i] = r.run(ctx, engine, reqs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return responses
}

// Run executes a single request.
func (r *Runner) Run(ctx context.Context, req Request) Response {
	return r.RunBatch(ctx, []Request{req})[0]
}

func (r *Runner) run(ctx context.Context, engine *costing.Engine, req Request) Response {
	start := time.Now()
	resp := Response{RequestID: uuid.NewString(), Request: req}
	log := r.log.WithFields(logrus.Fields{
		"request_id":       resp.RequestID,
		"scheme_id":        req.SchemeID,
		"calculation_type": req.CalculationType,
	})

	tbl, err := r.compute(ctx, engine, req)
	resp.ExecutionTimeS = time.Since(start).Seconds()

	switch {
	case err == nil:
		resp.Success = true
		resp.Table = tbl
		resp.Data = tbl
		resp.RecordCount = tbl.AccountRows()
		resp.Message = fmt.Sprintf("computed %d account rows", resp.RecordCount)
	case errors.Is(err, scheme.ErrEmptyScheme):
		resp.Success = true
		resp.Data = []any{}
		resp.Message = "no sales match the scheme filters"
	default:
		resp.ErrorKind = scheme.KindOf(err)
		resp.Detail = err.Error()
		resp.Message = "costing failed"
		config.LogError(log, "Run", "compute", req, err)
	}

	log.WithFields(logrus.Fields{
		"elapsed_ms": time.Since(start).Milliseconds(),
		"success":    resp.Success,
		"error_kind": resp.ErrorKind,
		"rows":       resp.RecordCount,
	}).Info("costing request finished")
	return resp
}

func (r *Runner) compute(ctx context.Context, engine *costing.Engine, req Request) (tbl *costing.Table, err error) {
	defer func() {
		if p := recover(); p != nil {
			tbl, err = nil, fmt.Errorf("%w: %v", scheme.ErrInternalArithmetic, p)
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	timeout := r.timeout
	if req.TimeoutS > 0 {
		if d := time.Duration(req.TimeoutS * float64(time.Second)); d < timeout {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entry, err := r.cache.GetOrLoad(ctx, req.SchemeID)
	if err != nil {
		return nil, err
	}

	cfg := entry.Config
	if req.CalculationType.IsAdditional() {
		add, ok := cfg.AdditionalScheme(req.Index())
		if !ok {
			return nil, fmt.Errorf("%w: scheme %s has %d additional schemes, index %d requested",
				scheme.ErrInvalidRequest, cfg.SchemeID, len(cfg.Additional), req.Index())
		}
		cfg = add
	}

	tbl, err = engine.Compute(ctx, cfg, entry.Frame, costing.Options{Mode: req.CalculationType.Mode()})
	if err != nil {
		return nil, err
	}
	if req.CalculationType.IsSummary() {
		tbl = tbl.Summary()
	}
	return tbl, nil
}
