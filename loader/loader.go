/*
Package loader fetches what a costing request needs from a Datastore.

PURPOSE:
  Two loads per scheme: the stored document (parsed by the factory) and one
  broad sales fetch covering every window of the main scheme and all its
  additional schemes. Everything after that works in memory on the frame.

RETRIES:
  A transient transport failure (bad connection, network error) is retried
  once with a fresh frame builder. Anything else surfaces as a LoadError.

SEE ALSO:
  - strata.go: batched strata-growth lookups
  - cache/cache.go: amortises both loads across requests
*/
package loader

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/warp/scheme-engine/factory"
	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

// Loader reads scheme documents and sales frames.
type Loader struct {
	store   scheme.Datastore
	factory *factory.SchemeFactory
	log     *logrus.Entry
}

// New creates a loader over store.
func New(store scheme.Datastore, log *logrus.Entry) *Loader {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loader{
		store:   store,
		factory: factory.NewSchemeFactory(),
		log:     log.WithField("component", "loader"),
	}
}

// Store returns the underlying datastore.
func (l *Loader) Store() scheme.Datastore { return l.store }

// LoadConfig fetches and parses the scheme document.
func (l *Loader) LoadConfig(ctx context.Context, schemeID string) (*scheme.Config, error) {
	doc, err := l.store.GetScheme(ctx, schemeID)
	if err != nil {
		if errors.Is(err, scheme.ErrConfigNotFound) {
			return nil, err
		}
		return nil, scheme.NewLoadError("get scheme "+schemeID, err)
	}
	return l.factory.Parse(schemeID, doc)
}

// LoadFrame issues the one broad sales fetch for cfg.
func (l *Loader) LoadFrame(ctx context.Context, cfg *scheme.Config) (*frame.Frame, error) {
	q := scheme.SalesQuery{Window: cfg.DateRange(), Applicable: cfg.Applicable}

	fr, err := l.fetch(ctx, q)
	if err != nil && scheme.IsTransient(err) && ctx.Err() == nil {
		l.log.WithError(err).WithField("scheme_id", cfg.SchemeID).Warn("transient sales load failure, retrying once")
		fr, err = l.fetch(ctx, q)
	}
	if err != nil {
		var le *scheme.LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, scheme.NewLoadError("get sales "+cfg.SchemeID, err)
	}

	l.log.WithFields(logrus.Fields{
		"scheme_id": cfg.SchemeID,
		"window":    q.Window.String(),
		"rows":      fr.Rows(),
		"accounts":  fr.NumAccounts(),
	}).Debug("sales frame loaded")
	return fr, nil
}

func (l *Loader) fetch(ctx context.Context, q scheme.SalesQuery) (*frame.Frame, error) {
	b := frame.NewBuilder(q.Window)
	if err := l.store.GetSales(ctx, q, b.Add); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// Load is LoadConfig followed by LoadFrame.
func (l *Loader) Load(ctx context.Context, schemeID string) (*scheme.Config, *frame.Frame, error) {
	cfg, err := l.LoadConfig(ctx, schemeID)
	if err != nil {
		return nil, nil, err
	}
	fr, err := l.LoadFrame(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, fr, nil
}
