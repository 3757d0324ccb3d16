package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGroupRunsAllOnSuccess(t *testing.T) {
	g := New(context.Background(), 2)
	var n int32
	for i := 0; i < 5; i++ {
		g.Go(func(ctx context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 tasks to run, got %d", n)
	}
}

func TestGroupCancelsOnFirstError(t *testing.T) {
	g := New(context.Background(), 1)
	boom := errors.New("boom")
	started := make(chan struct{})

	g.Go(func(ctx context.Context) error {
		close(started)
		return boom
	})

	<-started
	g.Go(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			t.Error("context was not cancelled after sibling failure")
		}
		return nil
	})

	err := g.Wait()
	if !errors.Is(err, boom) {
		t.Fatalf("expected first error to be returned, got %v", err)
	}
}
