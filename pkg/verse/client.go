package verse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// NotFoundMessage is returned by Lookup when a reference cannot be resolved.
const NotFoundMessage = "Verse not found. Please try another reference."

type ClientConfig struct {
	BaseURL   string
	RateLimit float64 // requests per second
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Verse is a passage returned by the lookup service.
type Verse struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
}

func (v *Verse) String() string {
	return fmt.Sprintf("%s (%s)", v.Text, v.Reference)
}

// Client looks up passages by reference, such as "John 3:16", on a
// bible-api.com compatible service.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://bible-api.com/"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("verse base url %q must be absolute", config.BaseURL)
	}

	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func New() *Client {
	c, _ := NewWithConfig(ClientConfig{})
	return c
}

// Fetch resolves reference. The reference is path-escaped and appended to
// the base URL.
func (c *Client) Fetch(ctx context.Context, reference string) (*Verse, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, errors.New("empty reference")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for reference %q", resp.StatusCode, reference)
	}

	var v Verse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode verse: %w", err)
	}
	v.Text = strings.TrimSpace(v.Text)
	if v.Text == "" {
		return nil, fmt.Errorf("no text for reference %q", reference)
	}
	return &v, nil
}

// Lookup is Fetch formatted for display. Failures return NotFoundMessage.
func (c *Client) Lookup(ctx context.Context, reference string) string {
	v, err := c.Fetch(ctx, reference)
	if err != nil {
		c.config.Logger.Info("verse lookup failed", "reference", reference, "error", err)
		return NotFoundMessage
	}
	return v.String()
}
