// Package worker runs the claim-and-advance loop that pulls records out of
// the store and drives them through the pipeline.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/osobot/oso/internal/models"
	"github.com/osobot/oso/internal/store"
	"golang.org/x/sync/errgroup"
)

// Advancer processes one claimed record. A returned error is fatal to the
// worker; per-record failures are handled inside the pipeline.
type Advancer interface {
	Advance(ctx context.Context, msg *models.Msg) error
}

// Worker claims batches of records and advances them.
type Worker struct {
	store    *store.Store
	pipe     Advancer
	batch    int
	idleWait time.Duration
}

// Options configures a Worker.
type Options struct {
	Store *store.Store
	Pipe  Advancer
	Batch int
	// IdleWait is how long to sleep when a claim finds nothing.
	IdleWait time.Duration
}

// New creates a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Store == nil || opts.Pipe == nil {
		return nil, fmt.Errorf("worker: store and pipeline are required")
	}
	if opts.Batch <= 0 {
		opts.Batch = 10
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = 5 * time.Second
	}
	return &Worker{
		store:    opts.Store,
		pipe:     opts.Pipe,
		batch:    opts.Batch,
		idleWait: opts.IdleWait,
	}, nil
}

// Run loops until the context is cancelled. Claim or advance errors from
// the store are fatal; a sick database should stop the process rather than
// spin.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		claimed, err := w.store.ClaimNext(w.batch)
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}

		for i := range claimed {
			if err := w.pipe.Advance(ctx, &claimed[i]); err != nil {
				return fmt.Errorf("worker: advance %s: %w", claimed[i].ID, err)
			}
		}

		if len(claimed) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.idleWait):
			}
		}
	}
}

// RunPool runs n copies of the worker loop until the context is cancelled
// or one of them dies. Mutual exclusion between the copies comes from the
// store's claim discipline, not from anything here.
func RunPool(ctx context.Context, w *Worker, n int) error {
	if n < 1 {
		n = 1
	}
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := i
		eg.Go(func() error {
			log.Printf("worker %d: started", id)
			err := w.Run(ctx)
			log.Printf("worker %d: stopped: %v", id, err)
			return err
		})
	}
	return eg.Wait()
}
