package esstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"elasticrag/internal/domain"
)

// Client is a thin HTTP client for an Elasticsearch-compatible store. Every
// repository in this package shares one Client so connections are pooled.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func NewClient(baseURL, username, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     httpClient,
	}
}

// Ping checks the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	status, data, err := c.send(ctx, "ping", http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return unexpectedStatus("ping", status, data)
	}
	return nil
}

// send issues one request and returns the status code and raw response body.
// Network failures and 5xx responses come back as *domain.TransientError;
// other statuses are returned to the caller to interpret.
func (c *Client) send(ctx context.Context, op, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &domain.TransientError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &domain.TransientError{Op: op, Err: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, data, &domain.TransientError{
			Op:  op,
			Err: fmt.Errorf("store returned status %d: %s", resp.StatusCode, truncate(data, 200)),
		}
	}
	return resp.StatusCode, data, nil
}

func decode(op string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// errorType extracts the error type of a non-2xx store response, e.g.
// "resource_already_exists_exception".
func errorType(data []byte) string {
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Error.Type
}

func alreadyExists(data []byte) bool {
	return errorType(data) == "resource_already_exists_exception"
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

func pathEscape(segment string) string {
	return url.PathEscape(segment)
}
