package comments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clipstream/internal/models"
)

// ErrUnavailable is reported when the comment service cannot be reached at
// all. Upstream responses with error status codes are surfaced as
// UpstreamError instead so they can be relayed verbatim.
var ErrUnavailable = errors.New("comment service unavailable")

// UpstreamError carries a non-2xx response from the comment service. The
// gateway relays status and body to the caller untouched.
type UpstreamError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("comment service returned status %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// RemoteComment is the comment service's wire representation. User identity is
// carried as a bare ID; enrichment happens in the gateway.
type RemoteComment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type createCommentRequest struct {
	VideoID string                `json:"videoId"`
	UserID  string                `json:"userId"`
	Content string                `json:"content"`
	User    models.UserProjection `json:"user"`
}

// ClientConfig configures the comment service client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Client talks to the remote comment service over REST.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a comment service client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("comment service base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, token: strings.TrimSpace(cfg.Token), httpClient: httpClient}, nil
}

// Create posts a new comment and returns the stored record.
func (c *Client) Create(ctx context.Context, params createCommentRequest) (RemoteComment, error) {
	var created RemoteComment
	err := c.do(ctx, http.MethodPost, "/api/comments", params, &created)
	if err != nil {
		return RemoteComment{}, err
	}
	return created, nil
}

// List fetches all comments for the given video.
func (c *Client) List(ctx context.Context, videoID string) ([]RemoteComment, error) {
	var listed []RemoteComment
	path := "/api/comments?videoId=" + url.QueryEscape(videoID)
	if err := c.do(ctx, http.MethodGet, path, nil, &listed); err != nil {
		return nil, err
	}
	return listed, nil
}

// Delete removes a comment on behalf of userID.
func (c *Client) Delete(ctx context.Context, commentID, userID string) error {
	path := fmt.Sprintf("/api/comments/%s?userId=%s", url.PathEscape(commentID), url.QueryEscape(userID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode comment request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build comment request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode comment response: %w", err)
	}
	return nil
}
