// Package client talks to a running tactics server: it reads levels over
// the public API and edits them through the admin endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name         string  `json:"name"`
	Levels       int     `json:"levels"`
	CurrentLevel string  `json:"current_level"`
	Orientation  string  `json:"orientation"`
	CellRadius   float64 `json:"cell_radius"`
	Watchers     int     `json:"watchers"`
	Uptime       string  `json:"uptime"`
	Store        string  `json:"store"` // none, ok, or unreachable
}

// LevelInfo mirrors items from GET /api/v1/levels.
type LevelInfo struct {
	Name      string `json:"name"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
	MaxHeight uint32 `json:"max_height"`
	Current   bool   `json:"current"`
}

// CellInfo mirrors GET /api/v1/levels/{name}/cells/{row}/{col}.
type CellInfo struct {
	Level  string `json:"level"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Height uint32 `json:"height"`
	Coord  struct {
		Q int `json:"q"`
		R int `json:"r"`
	} `json:"coord"`
	Position struct {
		X float32 `json:"x"`
		Y float32 `json:"y"`
		Z float32 `json:"z"`
	} `json:"position"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client is a tactics API client. AdminKey is only needed for edits.
type Client struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// New creates a Client targeting the given API base URL.
func New(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches server status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Levels lists the server's level catalog.
func (c *Client) Levels(ctx context.Context) ([]LevelInfo, error) {
	var out []LevelInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/levels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Cell fetches one cell of a level.
func (c *Client) Cell(ctx context.Context, level string, row, col int) (*CellInfo, error) {
	var cell CellInfo
	if err := c.do(ctx, http.MethodGet, cellPath(level, row, col), nil, &cell); err != nil {
		return nil, err
	}
	return &cell, nil
}

// SetHeight changes one cell's height and returns the updated cell.
func (c *Client) SetHeight(ctx context.Context, level string, row, col int, height uint32) (*CellInfo, error) {
	body := map[string]uint32{"height": height}
	var cell CellInfo
	if err := c.do(ctx, http.MethodPut, cellPath(level, row, col), body, &cell); err != nil {
		return nil, err
	}
	return &cell, nil
}

// Select makes the named level current.
func (c *Client) Select(ctx context.Context, level string) (string, error) {
	return c.selectLevel(ctx, map[string]string{"name": level})
}

// Step cycles the current level; step is "next" or "prev".
func (c *Client) Step(ctx context.Context, step string) (string, error) {
	return c.selectLevel(ctx, map[string]string{"step": step})
}

func (c *Client) selectLevel(ctx context.Context, body map[string]string) (string, error) {
	var out struct {
		Current string `json:"current_level"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/levels/current", body, &out); err != nil {
		return "", err
	}
	return out.Current, nil
}

// WaitReady polls the status endpoint with exponential backoff until it
// responds or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	backoff := 250 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		_, err := c.Status(ctx)
		if err == nil {
			return nil
		}
		slog.Debug("server not ready, retrying", "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func cellPath(level string, row, col int) string {
	return fmt.Sprintf("/api/v1/levels/%s/cells/%d/%d", url.PathEscape(level), row, col)
}

// do sends a JSON request and decodes the JSON response into target.
func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.AdminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
