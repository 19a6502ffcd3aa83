package main

import (
	"context"
	"sync"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

type runFunc func(ctx context.Context, jobsCfg model.JobsConfig, cache clients.CachingFactory)

// reloader owns the background scrape loop and the client cache it uses.
type reloader struct {
	mu     sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	cache  clients.CachingFactory
	run    runFunc
}

func newReloader(parent context.Context, run runFunc) *reloader {
	return &reloader{parent: parent, run: run}
}

// Reload stops the running loop, clears its cache and starts a new loop with
// the given config and cache.
func (r *reloader) Reload(jobsCfg model.JobsConfig, cache clients.CachingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	if r.cache != nil {
		r.cache.Clear()
	}

	ctx, cancel := context.WithCancel(r.parent)
	r.cancel = cancel
	r.cache = cache
	go r.run(ctx, jobsCfg, cache)
}
