// Package remote talks to the forecasting platform's HTTP API and exposes
// its paginated collections as feed sources.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acbmarket/feedctl/internal/verify"
)

const maxResponseBytes = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client communicates with the platform API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. A zero Timeout means 15 seconds.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
}

// IsAuthenticated reports whether requests carry a session token.
func (c *Client) IsAuthenticated() bool { return c.token != "" }

// APIError is a non-success answer from the API.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Detail)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500 || e.Status == 0
}

// Describe returns the message shown to the user and whether a retry
// makes sense.
func (e *APIError) Describe() (string, bool) {
	msg := e.Detail
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if msg == "" {
		msg = "request failed"
	}
	return msg, e.Temporary()
}

// envelope is the wrapper around every API response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"errors"`
	Message string `json:"message"`
	Detail  any    `json:"detail"`
}

func (e envelope) firstError() string {
	for _, item := range e.Errors {
		if item.Detail != "" {
			return item.Detail
		}
		if item.Message != "" {
			return item.Message
		}
	}
	if s, ok := e.Detail.(string); ok && s != "" {
		return s
	}
	return e.Message
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	var env envelope
	decodeErr := json.Unmarshal(payload, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Detail = env.firstError()
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding response: %w", decodeErr)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Detail: env.firstError()}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

// Market returns one market with its outcomes.
func (c *Client) Market(ctx context.Context, id string) (Market, error) {
	var data struct {
		Market *Market `json:"market"`
	}
	var raw json.RawMessage
	if err := c.get(ctx, "/api/v1/markets/"+url.PathEscape(id), nil, &raw); err != nil {
		return Market{}, fmt.Errorf("fetching market %s: %w", id, err)
	}
	// The detail endpoint answers either {market: {...}} or the market itself.
	if err := json.Unmarshal(raw, &data); err == nil && data.Market != nil {
		return *data.Market, nil
	}
	var m Market
	if err := json.Unmarshal(raw, &m); err != nil {
		return Market{}, fmt.Errorf("decoding market %s: %w", id, err)
	}
	return m, nil
}

// CommentCount returns the number of comments on a market.
func (c *Client) CommentCount(ctx context.Context, marketID string) (int, error) {
	var data struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/api/v1/markets/"+url.PathEscape(marketID)+"/comments/count", nil, &data); err != nil {
		return 0, fmt.Errorf("fetching comment count: %w", err)
	}
	return data.Count, nil
}

// ErrEmptyComment is returned by PostComment for blank content.
var ErrEmptyComment = errors.New("comment is empty")

// PostComment posts a comment, or a reply when parentID is set.
func (c *Client) PostComment(ctx context.Context, marketID, content, parentID string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, ErrEmptyComment
	}
	body := struct {
		Content  string `json:"content"`
		ParentID string `json:"parent_id,omitempty"`
	}{content, parentID}

	var data struct {
		Comment Comment `json:"comment"`
	}
	if err := c.post(ctx, "/api/v1/markets/"+url.PathEscape(marketID)+"/comments", body, &data); err != nil {
		return Comment{}, fmt.Errorf("posting comment: %w", err)
	}
	return data.Comment, nil
}

// ConfirmSecret re-checks the user's password for step-up verification.
// A rejection wraps verify.ErrWrongSecret.
func (c *Client) ConfirmSecret(ctx context.Context, secret string) error {
	body := struct {
		Password string `json:"password"`
	}{secret}
	err := c.post(ctx, "/api/v1/admin/verify-password", body, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden || apiErr.Status < 300) {
		if apiErr.Detail != "" {
			return fmt.Errorf("%s: %w", apiErr.Detail, verify.ErrWrongSecret)
		}
		return verify.ErrWrongSecret
	}
	return fmt.Errorf("verifying password: %w", err)
}
