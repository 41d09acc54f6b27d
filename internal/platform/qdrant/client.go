package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdfchat/internal/platform/logger"
)

// ErrCollectionNotFound is returned when the target collection does not
// exist yet. Callers distinguish this from "collection exists but zero
// matches".
var ErrCollectionNotFound = errors.New("qdrant collection not found")

// Qdrant point ids must be UUIDs or integers, so logical chunk ids are
// mapped to deterministic UUIDs and kept in the payload under "chunk_id".
var pointIDNamespace = uuid.MustParse("9c0f44de-58a1-4a0c-9b32-7b1f6c2d8e41")

type Config struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
	Distance   string
}

// Client is a minimal REST client to Qdrant scoped to one collection.
type Client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

// Point is one embedded chunk record. ID is the logical chunk id; Payload
// carries the provenance metadata used for filtering and formatting.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is one search hit in store rank order.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("qdrant vector dim must be positive")
	}
	if strings.TrimSpace(cfg.Distance) == "" {
		cfg.Distance = "Cosine"
	}
	return &Client{
		log:     log.With("component", "qdrant"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// EnsureCollection creates the collection if it does not exist. Calling it
// on an existing collection is a no-op.
func (c *Client) EnsureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.cfg.VectorDim,
			"distance": c.cfg.Distance,
		},
	}
	err := c.doJSON(ctx, http.MethodPut, c.collectionPath(""), body, nil)
	if err == nil {
		return nil
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.alreadyExists() {
		return nil
	}
	return fmt.Errorf("ensure collection failed: %w", err)
}

// Upsert writes points with wait=true, so a nil return means the points are
// durably stored and searchable.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	items := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("point id is required")
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("point %q has an empty vector", p.ID)
		}
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload["chunk_id"] = p.ID
		items = append(items, map[string]any{
			"id":      pointID(p.ID),
			"vector":  p.Vector,
			"payload": payload,
		})
	}
	req := map[string]any{"points": items}
	if err := c.doJSON(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), req, nil); err != nil {
		return fmt.Errorf("upsert points failed: %w", err)
	}
	return nil
}

// Search returns up to limit nearest points matching the filter, in the
// store's rank order.
func (c *Client) Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if limit <= 0 {
		limit = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if body := filter.body(); body != nil {
		req["filter"] = body
	}

	var raw []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/search"), req, &raw)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("search points failed: %w", err)
	}

	out := make([]ScoredPoint, 0, len(raw))
	for _, item := range raw {
		id, _ := item.Payload["chunk_id"].(string)
		out = append(out, ScoredPoint{
			ID:      id,
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return out, nil
}

// DeleteByFilter removes every point whose payload matches the filter. An
// empty filter is rejected so a bug cannot wipe the shared collection.
func (c *Client) DeleteByFilter(ctx context.Context, filter Filter) error {
	body := filter.body()
	if body == nil {
		return fmt.Errorf("delete filter must not be empty")
	}
	req := map[string]any{"filter": body}
	err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/delete?wait=true"), req, nil)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return ErrCollectionNotFound
		}
		return fmt.Errorf("delete points failed: %w", err)
	}
	return nil
}

// Ping checks the collection endpoint is reachable. Used by the health
// handler; a missing collection still counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodGet, c.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return nil
	}
	return err
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant status %d: %s", e.Code, e.Body)
}

func (e *statusError) alreadyExists() bool {
	if e.Code == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(e.Body), "already exists")
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("encode qdrant request failed: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build qdrant request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read qdrant response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{Code: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode qdrant envelope failed: %w", err)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode qdrant result failed: %w", err)
	}
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + c.cfg.Collection + suffix
}

func pointID(chunkID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(chunkID)).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
