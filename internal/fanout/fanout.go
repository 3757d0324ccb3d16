// Package fanout implements the bounded, closeable parallel-task pattern
// the job runners use: a fixed number of permits, and the first failure
// cancels every pending and in-flight acquire so sibling work stops early.
package fanout

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Group bounds concurrent work to n permits and fails fast: once any task
// returns an error, the group's context is cancelled, so goroutines still
// waiting on a permit return immediately instead of starting new work.
type Group struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// New builds a Group bounded to n concurrent tasks, derived from parent.
func New(parent context.Context, n int64) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{
		sem:    semaphore.NewWeighted(n),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go schedules fn to run once a permit is available. fn receives the
// group's context, which is cancelled as soon as any scheduled fn returns
// an error.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			return
		}
		defer g.sem.Release(1)

		if err := fn(g.ctx); err != nil {
			g.mu.Lock()
			if g.err == nil {
				g.err = err
				g.cancel()
			}
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every scheduled task has returned, then returns the
// first error seen (if any). It always releases the group's context.
func (g *Group) Wait() error {
	g.wg.Wait()
	defer g.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
