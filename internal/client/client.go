// Package client calls a running visit counter.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tckz/visit-counter/internal/apikey"
	"github.com/tckz/visit-counter/internal/server"
)

var countBody = regexp.MustCompile(`^[0-9]+$`)

// StatusError is returned for any reply other than 200.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, strings.TrimSpace(e.Body))
}

type Client struct {
	endpoint string
	http     *http.Client
}

// New targets baseURL+/visits with the given key. An empty key sends no
// key parameter.
func New(baseURL, key string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + server.VisitsPath)
	if err != nil {
		return nil, fmt.Errorf("url.Parse: %w", err)
	}
	if key != "" {
		q := u.Query()
		q.Set(apikey.Param, key)
		u.RawQuery = q.Encode()
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{endpoint: u.String(), http: hc}, nil
}

// Hit posts one visit and returns the value the server assigned to it.
func (c *Client) Hit(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("http.NewRequest: %w", err)
	}
	req.Header.Set(server.RequestIDHeader, uuid.New().String())

	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http.Do: %w", err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("io.ReadAll: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: res.StatusCode, Body: string(b)}
	}
	if !countBody.Match(b) {
		return 0, fmt.Errorf("body is not a decimal count: %q", b)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("strconv.ParseInt: %w", err)
	}
	return n, nil
}
