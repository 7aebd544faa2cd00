// Package notify delivers operator alerts for pipeline milestones and
// failures. Channels are pluggable; the pipeline only sees the Notifier
// interface.
package notify

import "context"

// Severity grades an event for channel-side formatting.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Event describes one notable pipeline occurrence.
type Event struct {
	MsgID    string
	Stage    string
	Reason   string
	Severity Severity
}

// Notifier delivers an event to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi fans an event out to several channels. Delivery is best effort per
// channel; the first error is returned after all channels were tried.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
