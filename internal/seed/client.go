package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ErrStatus reports an unexpected HTTP status.
var ErrStatus = errors.New("unexpected status")

// client wraps http.Client with the service's base URL and prefix.
type client struct {
	http   *http.Client
	base   string
	prefix string
}

func newClient(baseURL, prefix string, timeout time.Duration) *client {
	return &client{
		http:   &http.Client{Timeout: timeout},
		base:   strings.TrimRight(baseURL, "/"),
		prefix: "/" + strings.Trim(prefix, "/"),
	}
}

// api builds a URL under the API prefix.
func (c *client) api(format string, args ...any) string {
	p := c.prefix
	if p == "/" {
		p = ""
	}
	return c.base + p + fmt.Sprintf(format, args...)
}

// root builds a URL outside the API prefix.
func (c *client) root(path string) string {
	return c.base + path
}

// postJSON posts body and expects want.
func (c *client) postJSON(ctx context.Context, url string, body any, want int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, want, nil)
	return err
}

// getJSON decodes the response into dst when the status is want. The
// status is returned either way.
func (c *client) getJSON(ctx context.Context, url string, want int, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, want, dst)
}

func (c *client) do(req *http.Request, want int, dst any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return resp.StatusCode, fmt.Errorf("%w %d from %s %s: %s", ErrStatus, resp.StatusCode, req.Method, req.URL.Path, bytes.TrimSpace(body))
	}
	if dst != nil {
		if err := json.Unmarshal(body, dst); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
