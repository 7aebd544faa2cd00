package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// maxTitleChars is Reddit's hard limit on post titles, with room kept for
// the truncation marker.
const maxTitleChars = 128

// thingResponse is the envelope returned by write endpoints.
type thingResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			Name   string `json:"name"`
			Things []struct {
				Data struct {
					Name string `json:"name"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func (r *thingResponse) err(op string) error {
	if len(r.JSON.Errors) > 0 {
		return fmt.Errorf("reddit: %s: api error: %v", op, r.JSON.Errors[0])
	}
	return nil
}

func (r *thingResponse) name() string {
	if r.JSON.Data.Name != "" {
		return r.JSON.Data.Name
	}
	if len(r.JSON.Data.Things) > 0 {
		return r.JSON.Data.Things[0].Data.Name
	}
	return ""
}

// SendReply answers a private message. inReplyTo is the fullname of the
// message being answered; the returned fullname identifies the sent reply.
func (c *Client) SendReply(ctx context.Context, recipient, inReplyTo, text string) (string, error) {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {inReplyTo},
		"text":     {text},
	}
	var resp thingResponse
	if err := c.postForm(ctx, "/api/comment", form, &resp); err != nil {
		return "", err
	}
	if err := resp.err("send reply"); err != nil {
		return "", err
	}
	name := resp.name()
	if name == "" {
		return "", fmt.Errorf("reddit: send reply: no fullname in response")
	}
	return name, nil
}

// Publish submits content as a self post to the configured subreddit and
// returns the post's fullname. Image attachments are dropped; self posts
// carry text only.
func (c *Client) Publish(ctx context.Context, content string, images [][]byte) (string, error) {
	form := url.Values{
		"api_type": {"json"},
		"kind":     {"self"},
		"sr":       {c.subreddit},
		"title":    {postTitle(content)},
		"text":     {content},
	}
	var resp thingResponse
	if err := c.postForm(ctx, "/api/submit", form, &resp); err != nil {
		return "", err
	}
	if err := resp.err("submit"); err != nil {
		return "", err
	}
	name := resp.name()
	if name == "" {
		return "", fmt.Errorf("reddit: submit: no fullname in response")
	}
	return name, nil
}

// postTitle derives a post title from the first sentence of the content,
// truncated to Reddit's title limit.
func postTitle(content string) string {
	title := strings.TrimSpace(content)
	if i := strings.IndexAny(title, "\n"); i > 0 {
		title = title[:i]
	}
	for _, end := range []string{". ", "! ", "? "} {
		if i := strings.Index(title, end); i > 0 {
			title = title[:i+1]
			break
		}
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleChars {
		runes := []rune(title)
		title = string(runes[:maxTitleChars-4]) + " ..."
	}
	return title
}
