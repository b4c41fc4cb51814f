package iiif

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/essayist/internal/stats"
)

// DefaultEndpoint is the public manifest service.
const DefaultEndpoint = "https://iiif-v2.visual-essays.app/manifest/"

// Request is the image metadata sent to the manifest service.
type Request map[string]any

// Manifest is the subset of a IIIF presentation manifest the essay uses.
type Manifest struct {
	ID        string          `json:"@id"`
	Label     any             `json:"label,omitempty"`
	Thumbnail json.RawMessage `json:"thumbnail,omitempty"`
	Sequences json.RawMessage `json:"sequences,omitempty"`
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("manifest service: status %d: %s", e.Code, e.Body)
}

// Client creates manifests through the manifest service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	stats      *stats.Tracker
}

func NewClient(endpoint string, timeout time.Duration, tracker *stats.Tracker) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		stats:      tracker,
	}
}

// Create posts req and returns the manifest the service built.
func (c *Client) Create(ctx context.Context, req Request) (m *Manifest, err error) {
	start := time.Now()
	defer func() { c.stats.Observe(stats.Manifest, start, err) }()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out Manifest
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("manifest response has no @id")
	}
	return &out, nil
}
