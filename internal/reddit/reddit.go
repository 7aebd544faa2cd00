// Package reddit is a minimal Reddit API client covering what the bot
// needs: the private message inbox, message replies, and self posts.
// Authentication uses the OAuth2 password grant for script apps.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://oauth.reddit.com"
	tokenURL       = "https://www.reddit.com/api/v1/access_token"
)

// doer abstracts the HTTP round trip, enabling test mocks.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Reddit API as one bot account.
type Client struct {
	http      doer
	baseURL   string
	userAgent string
	subreddit string
}

// Opts holds parameters for creating a Client.
type Opts struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Subreddit    string
	// For testing: inject a mock doer and base URL instead of real Reddit.
	Doer    doer
	BaseURL string
}

// New creates a Client. The OAuth2 token is fetched lazily on first use and
// re-fetched when it expires; script-app tokens carry no refresh token, so
// expiry means running the password grant again.
func New(ctx context.Context, opts Opts) (*Client, error) {
	if opts.Doer == nil && (opts.ClientID == "" || opts.Username == "" || opts.Password == "") {
		return nil, fmt.Errorf("reddit: client id, username and password are required")
	}

	c := &Client{
		http:      opts.Doer,
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		subreddit: opts.Subreddit,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = "oso/1.0 (by /u/" + opts.Username + ")"
	}

	if c.http == nil {
		conf := &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		}
		// Token requests must carry the bot's user agent or Reddit rate
		// limits them aggressively.
		tokenClient := &http.Client{
			Transport: &uaTransport{base: http.DefaultTransport, agent: c.userAgent},
			Timeout:   30 * time.Second,
		}
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, tokenClient)
		src := oauth2.ReuseTokenSource(nil, &passwordSource{
			ctx:      tokenCtx,
			conf:     conf,
			username: opts.Username,
			password: opts.Password,
		})
		c.http = &http.Client{
			Transport: &oauth2.Transport{
				Base:   &uaTransport{base: http.DefaultTransport, agent: c.userAgent},
				Source: src,
			},
			Timeout: 30 * time.Second,
		}
	}
	return c, nil
}

// passwordSource runs the OAuth2 password grant on demand.
type passwordSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	tok, err := s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("reddit: password grant: %w", err)
	}
	return tok, nil
}

// uaTransport stamps every request with the configured user agent.
type uaTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

// get performs a GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("reddit: build request: %w", err)
	}
	return c.do(req, out)
}

// postForm performs a form POST and decodes the JSON response into out.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("reddit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reddit: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reddit: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reddit: %s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, truncate(string(body), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("reddit: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
