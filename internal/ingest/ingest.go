// Package ingest polls a message source on a cron schedule and files new
// messages into the store. Delivery is at-least-once on the source side;
// the store's idempotent insert makes re-delivery a no-op.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/osobot/oso/internal/models"
	"github.com/osobot/oso/internal/store"
	"github.com/robfig/cron/v3"
)

// Source is a platform inbox. Fetch returns unseen messages; Ack tells the
// platform they were captured so they stop appearing. A message is only
// acked after its record is durably stored.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]models.Msg, error)
	Ack(ctx context.Context, ids []string) error
}

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Ingestor drives one Source on a schedule.
type Ingestor struct {
	source   Source
	store    *store.Store
	schedule cron.Schedule
	limit    int
}

// New creates an Ingestor. schedule is a 5-field cron expression.
func New(source Source, st *store.Store, schedule string, limit int) (*Ingestor, error) {
	if source == nil || st == nil {
		return nil, fmt.Errorf("ingest: source and store are required")
	}
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse schedule %q: %w", schedule, err)
	}
	if limit <= 0 {
		limit = 100
	}
	return &Ingestor{source: source, store: st, schedule: sched, limit: limit}, nil
}

// Run polls the source until the context is cancelled. One failed poll is
// logged and absorbed; the next tick tries again.
func (in *Ingestor) Run(ctx context.Context) error {
	// Poll once at startup so a restart doesn't wait out a sparse schedule.
	if n, err := in.Poll(ctx); err != nil {
		log.Printf("ingest: initial poll: %v", err)
	} else if n > 0 {
		log.Printf("ingest: stored %d new messages", n)
	}

	for {
		next := in.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		n, err := in.Poll(ctx)
		if err != nil {
			log.Printf("ingest: poll: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("ingest: stored %d new messages", n)
		}
	}
}

// Poll fetches once, stores what is new, and acks everything fetched.
// Returns how many records were newly inserted.
func (in *Ingestor) Poll(ctx context.Context) (int, error) {
	msgs, err := in.source.Fetch(ctx, in.limit)
	if err != nil {
		return 0, fmt.Errorf("ingest: fetch: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	inserted := 0
	acked := make([]string, 0, len(msgs))
	for i := range msgs {
		fresh, err := in.store.InsertIfAbsent(&msgs[i])
		if err != nil {
			// Ack only what was stored; the rest comes back next poll.
			log.Printf("ingest: store %s: %v", msgs[i].ID, err)
			continue
		}
		if fresh {
			inserted++
		}
		acked = append(acked, msgs[i].ID)
	}

	if err := in.source.Ack(ctx, acked); err != nil {
		// Unacked messages reappear next poll and dedupe on insert.
		log.Printf("ingest: ack %d messages: %v", len(acked), err)
	}
	return inserted, nil
}
