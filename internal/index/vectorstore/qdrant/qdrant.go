// Package qdrant is a minimal REST client for the parts of Qdrant the index
// facade needs: collection lifecycle, alias swaps, upserts and vector search.
// It assumes cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Point is one stored vector with its document payload.
type Point struct {
	ID      int64
	Vector  []float64
	Payload Payload
}

type Payload struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Hit is a search result ordered by descending score.
type Hit struct {
	Score   float64
	Payload Payload
}

// StatusError carries the HTTP status of a failed Qdrant call so callers can
// distinguish a missing collection from a transport failure.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant: status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a Qdrant 404.
func IsNotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == http.StatusNotFound
}

// CreateCollection creates a cosine-distance collection with the given
// vector dimension.
func (c *Client) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), body, nil)
}

// DropCollection deletes a collection. Missing collections are not an error.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", name), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Upsert writes points into a collection, waiting for them to be persisted.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": payload}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", collection), body, nil)
}

// Search runs a vector search through a collection or alias, returning hits
// in descending score order.
func (c *Client) Search(ctx context.Context, collection string, vector []float64, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", collection), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, Hit{Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// SwapAlias atomically points alias at collection, dropping any previous
// binding. Readers resolving through the alias never observe an intermediate
// state.
func (c *Client) SwapAlias(ctx context.Context, alias, collection string) error {
	body := map[string]any{
		"actions": []map[string]any{
			{"delete_alias": map[string]any{"alias_name": alias}},
			{"create_alias": map[string]any{"alias_name": alias, "collection_name": collection}},
		},
	}
	err := c.do(ctx, http.MethodPost, "/collections/aliases", body, nil)
	if err == nil {
		return nil
	}
	// First swap: there is no alias to delete yet.
	body["actions"] = body["actions"].([]map[string]any)[1:]
	return c.do(ctx, http.MethodPost, "/collections/aliases", body, nil)
}

// ResolveAlias returns the collection an alias currently points at, or a
// not-found StatusError when the alias has never been created.
func (c *Client) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/aliases", nil, &resp); err != nil {
		return "", err
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == alias {
			return a.CollectionName, nil
		}
	}
	return "", &StatusError{StatusCode: http.StatusNotFound, Body: fmt.Sprintf("alias %q not found", alias)}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
