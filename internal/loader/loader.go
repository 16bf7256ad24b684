// Package loader turns a TransactionReader into a dataset that is read once
// and then served from cache until it expires or is invalidated.
package loader

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"txnstats/internal/cache"
	"txnstats/internal/core"
	"txnstats/internal/log"
	"txnstats/internal/sources"
)

// readTimeout bounds a shared read once it no longer follows any caller's
// context.
const readTimeout = 2 * time.Minute

// Loader caches the dataset of a single source and collapses concurrent cold
// loads into one read.
type Loader struct {
	source string
	reader sources.TransactionReader
	cache  *cache.LRUCache[string, []core.Transaction]
	group  singleflight.Group
	logger *log.Logger
}

// New creates a loader for one source. A zero ttl keeps the dataset until
// Invalidate is called.
func New(source string, reader sources.TransactionReader, ttl time.Duration, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Discard()
	}
	return &Loader{
		source: source,
		reader: reader,
		cache:  cache.NewLRUCache[string, []core.Transaction](1, ttl),
		logger: logger.WithComponent(log.ComponentLoader),
	}
}

// Source returns the name the dataset is cached and logged under.
func (l *Loader) Source() string { return l.source }

// Cache exposes the dataset cache so a cache.Manager can clean it.
func (l *Loader) Cache() cache.Cleaner { return l.cache }

// Load returns the dataset. It never fails: when the reader errors the
// problem is logged and an empty, uncached dataset is returned. Concurrent
// cold loads share a single read. Callers own the returned slice.
func (l *Loader) Load(ctx context.Context) []core.Transaction {
	if txns, ok := l.cache.Get(l.source); ok {
		l.logger.DebugContext(ctx, "Dataset served from cache",
			log.FieldSource, l.source,
			log.FieldCacheHit, true)
		return slices.Clone(txns)
	}

	// The read is shared, so it runs detached from the caller that happened
	// to start it. Each caller still stops waiting when its own ctx ends.
	ch := l.group.DoChan(l.source, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()

		start := time.Now()
		txns, err := l.reader.ReadTransactions(readCtx)
		if err != nil {
			return nil, err
		}
		if txns == nil {
			txns = []core.Transaction{}
		}
		l.cache.Set(l.source, txns)
		l.logger.InfoContext(ctx, "Dataset loaded",
			log.FieldSource, l.source,
			log.FieldRecords, len(txns),
			log.FieldCacheHit, false,
			log.FieldDuration, time.Since(start).Milliseconds())
		return txns, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	if res.Err != nil {
		l.logger.LogError(ctx, "Failed to load dataset, continuing with empty collection", res.Err, log.OpLoad,
			log.NewFields().WithSource(l.source, 0))
		return []core.Transaction{}
	}
	if res.Shared {
		l.logger.DebugContext(ctx, "Dataset load shared with concurrent caller", log.FieldSource, l.source)
	}
	return slices.Clone(res.Val.([]core.Transaction))
}

// Invalidate drops the cached dataset; the next Load reads the source again.
func (l *Loader) Invalidate() {
	l.cache.Delete(l.source)
	l.group.Forget(l.source)
	l.logger.Info("Dataset cache invalidated", log.FieldSource, l.source)
}

// Cached reports whether a dataset is currently cached.
func (l *Loader) Cached() bool {
	_, ok := l.cache.Get(l.source)
	return ok
}
