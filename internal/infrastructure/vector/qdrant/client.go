package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

// Client searches the master plan article collection. Every query runs a
// dense leg and a lexical (sparse) leg; the two result lists are fused by
// reciprocal rank before they reach the scorer.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(ctx context.Context, queryText string, queryVector []float32, limit int) ([]domain.RawMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	dense, err := c.searchDense(ctx, queryVector, limit)
	if err != nil {
		return nil, err
	}

	// The lexical leg is best-effort: article citations and zone codes that
	// embeddings miss, nothing more. A failed leg degrades to dense-only.
	lexical, lexErr := c.searchLexical(ctx, queryText, limit)
	if lexErr != nil {
		lexical = nil
	}

	return fuseByReciprocalRank(dense, lexical, limit), nil
}

func (c *Client) searchDense(ctx context.Context, queryVector []float32, limit int) ([]domain.RawMatch, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	return c.searchPoints(ctx, reqBody, "dense")
}

func (c *Client) searchLexical(ctx context.Context, queryText string, limit int) ([]domain.RawMatch, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   "lexical",
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
	}
	return c.searchPoints(ctx, reqBody, "lexical")
}

func (c *Client) searchPoints(ctx context.Context, reqBody map[string]any, leg string) ([]domain.RawMatch, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal %s search body: %w", leg, err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s search request: %w", leg, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant %s search request: %w", leg, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return nil, fmt.Errorf("qdrant %s search status: %s: %s", leg, resp.Status, msg)
		}
		return nil, fmt.Errorf("qdrant %s search status: %s", leg, resp.Status)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode %s search response: %w", leg, err)
	}

	out := make([]domain.RawMatch, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RawMatch{
			DocumentID: getStringPayload(r.Payload, "document_id"),
			Content:    getStringPayload(r.Payload, "content"),
			Similarity: r.Score,
		})
	}
	return out, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
