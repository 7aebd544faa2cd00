package pipeline

import (
	"fmt"

	"github.com/osobot/oso/internal/models"
)

// shouldPublish decides whether a summarized story goes out as a public
// post. The decision is deterministic from durable state: publishing must
// be enabled, and the sender must not already have a published post within
// the minimum gap window. One post per sender per window keeps a single
// prolific correspondent from flooding the feed.
func (p *Pipeline) shouldPublish(msg *models.Msg) (bool, error) {
	if !p.publishEnabled {
		return false, nil
	}

	since := nowFunc().Add(-p.publishMinGap)
	recent, err := p.store.BySender(msg.Sender, since)
	if err != nil {
		return false, fmt.Errorf("pipeline: publish policy for %s: %w", msg.ID, err)
	}
	for i := range recent {
		if recent[i].ID == msg.ID {
			continue
		}
		if recent[i].PostID != nil {
			return false, nil
		}
	}
	return true, nil
}
