// Package vector talks to Qdrant over its REST API: collection setup, point
// upserts with server-side embedding inference, and hybrid dense+sparse
// search fused with reciprocal rank fusion.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Vector names inside the collection. The dense vector is embedded by the
// configured dense model, the sparse one by BM25.
const (
	DenseVectorName  = "jina-small"
	SparseVectorName = "bm25"
)

// Config controls the Qdrant client behaviour.
type Config struct {
	Host            string
	Port            string
	Collection      string
	DenseModel      string
	SparseModel     string
	DenseDimensions int
	TopK            int
	Threshold       float64
	Timeout         time.Duration
}

type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
}

// Payload is the stored document payload, matching what ingestion writes.
type Payload struct {
	Metadata Metadata `json:"metadata"`
}

// Metadata carries the corpus record attached to each point.
type Metadata struct {
	Title     string `json:"title"`
	Context   string `json:"context"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	HasAnswer bool   `json:"has_answer"`
}

// ScoredPoint is a ranked search hit.
type ScoredPoint struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// PointStruct is a single point to upsert. Vector texts are embedded
// server-side by Qdrant's inference using the named models.
type PointStruct struct {
	ID      string                  `json:"id"`
	Vector  map[string]documentSpec `json:"vector"`
	Payload Payload                 `json:"payload"`
}

type documentSpec struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		baseURL:    fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Collection returns the configured collection name.
func (c *Client) Collection() string { return c.cfg.Collection }

// Healthy reports whether Qdrant answers on the collections endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/collections", nil, &out)
}

// CollectionExists checks whether the configured collection is present.
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	var out struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/exists", c.cfg.Collection)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Result.Exists, nil
}

// EnsureCollection creates the collection with a cosine dense vector and an
// IDF-modified sparse vector unless it already exists.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.CollectionExists(ctx)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			DenseVectorName: map[string]interface{}{
				"size":     c.cfg.DenseDimensions,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]interface{}{
			SparseVectorName: map[string]interface{}{
				"modifier": "idf",
			},
		},
	}
	path := fmt.Sprintf("/collections/%s", c.cfg.Collection)
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// NewPoint builds an upsert point whose dense and sparse vectors are inferred
// from the given text.
func (c *Client) NewPoint(id, text string, meta Metadata) PointStruct {
	return PointStruct{
		ID: id,
		Vector: map[string]documentSpec{
			DenseVectorName:  {Text: text, Model: c.cfg.DenseModel},
			SparseVectorName: {Text: text, Model: c.cfg.SparseModel},
		},
		Payload: Payload{Metadata: meta},
	}
}

// Upsert writes points to the collection, waiting for them to be indexed.
func (c *Client) Upsert(ctx context.Context, points []PointStruct) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]interface{}{"points": points}
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.cfg.Collection)
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search runs a hybrid query: dense and sparse prefetch over 3x the limit,
// fused with reciprocal rank fusion, returning the top limit hits with
// payloads.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = c.cfg.TopK
	}
	if limit <= 0 {
		limit = 1
	}
	body := map[string]interface{}{
		"prefetch": []map[string]interface{}{
			{
				"query": documentSpec{Text: query, Model: c.cfg.DenseModel},
				"using": DenseVectorName,
				"limit": 3 * limit,
			},
			{
				"query": documentSpec{Text: query, Model: c.cfg.SparseModel},
				"using": SparseVectorName,
				"limit": 3 * limit,
			},
		},
		"query":        map[string]interface{}{"fusion": "rrf"},
		"limit":        limit,
		"with_payload": true,
	}
	var out struct {
		Result struct {
			Points []ScoredPoint `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", c.cfg.Collection)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	return out.Result.Points, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewBuffer(data)
	} else {
		reader = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Status.Error != "" {
			return fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, apiErr.Status.Error)
		}
		return fmt.Errorf("qdrant returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
