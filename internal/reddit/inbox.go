package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/osobot/oso/internal/models"
)

// SourceName tags records ingested from Reddit.
const SourceName = "reddit"

// listing is the generic Reddit listing envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data messageData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type messageData struct {
	Name       string  `json:"name"` // fullname, e.g. t4_abc123
	Author     string  `json:"author"`
	Dest       string  `json:"dest"`
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
}

type account struct {
	Name string `json:"name"`
}

// Me returns the authenticated account's username. Used at startup and by
// the login command to verify credentials.
func (c *Client) Me(ctx context.Context) (string, error) {
	var acct account
	if err := c.get(ctx, "/api/v1/me", nil, &acct); err != nil {
		return "", err
	}
	if acct.Name == "" {
		return "", fmt.Errorf("reddit: me: empty account name")
	}
	return acct.Name, nil
}

// Inbox fetches up to limit unread private messages, mapped to store
// records. Fullnames become record ids, so re-fetching the same message is
// absorbed by the store's idempotent insert.
func (c *Client) Inbox(ctx context.Context, limit int) ([]models.Msg, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var l listing
	if err := c.get(ctx, "/message/unread", q, &l); err != nil {
		return nil, err
	}

	msgs := make([]models.Msg, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		d := child.Data
		if d.Name == "" {
			continue
		}
		msgs = append(msgs, models.Msg{
			ID:           d.Name,
			CreatedAt:    int64(d.CreatedUTC),
			Source:       SourceName,
			Sender:       d.Author,
			Receiver:     d.Dest,
			IsReceiverMe: true,
			Subject:      d.Subject,
			Body:         d.Body,
		})
	}
	return msgs, nil
}

// Fetch implements the ingest source on top of the unread inbox.
func (c *Client) Fetch(ctx context.Context, limit int) ([]models.Msg, error) {
	return c.Inbox(ctx, limit)
}

// Ack implements the ingest source acknowledgment.
func (c *Client) Ack(ctx context.Context, ids []string) error {
	return c.MarkRead(ctx, ids)
}

// MarkRead acknowledges messages so they drop out of the unread listing.
func (c *Client) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	form := url.Values{"id": {strings.Join(ids, ",")}}
	return c.postForm(ctx, "/api/read_message", form, nil)
}
