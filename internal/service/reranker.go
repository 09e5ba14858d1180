package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Reranker scores documents for relevance to a query. The returned slice is
// aligned with docs; values are provider scores and may be unbounded.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)
}

// HTTPReranker calls a rerank endpoint speaking the common
// {model, query, documents} → {results: [{index, relevance_score}]} format
// (text-embeddings-inference, Jina, Cohere and compatible servers).
type HTTPReranker struct {
	url    string
	model  string
	apiKey string
	client *http.Client
	cb     *breaker
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int      `json:"index"`
		RelevanceScore *float64 `json:"relevance_score"`
		Score          *float64 `json:"score"`
	} `json:"results"`
}

// NewHTTPReranker creates a reranker client for the given endpoint URL.
func NewHTTPReranker(url, model, apiKey string, timeout time.Duration) *HTTPReranker {
	return &HTTPReranker{
		url:    url,
		model:  model,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		cb:     newBreaker(),
	}
}

// Rerank scores docs against query.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}

	var scores []float64

	err := r.cb.do(func() error {
		var err error
		scores, err = r.doRerank(ctx, query, docs)

		return err
	})
	if err != nil {
		return nil, err
	}

	return scores, nil
}

// Available reports whether the breaker currently lets requests through.
func (r *HTTPReranker) Available() bool {
	return !r.cb.isOpen()
}

func (r *HTTPReranker) doRerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: docs, TopN: len(docs)})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling rerank API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("rerank API returned status %d", resp.StatusCode)
	}

	var result rerankResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	if len(result.Results) != len(docs) {
		return nil, fmt.Errorf("rerank API scored %d of %d documents", len(result.Results), len(docs))
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))

	for _, res := range result.Results {
		if res.Index < 0 || res.Index >= len(docs) || seen[res.Index] {
			return nil, fmt.Errorf("rerank API returned invalid index %d", res.Index)
		}

		switch {
		case res.RelevanceScore != nil:
			scores[res.Index] = *res.RelevanceScore
		case res.Score != nil:
			scores[res.Index] = *res.Score
		default:
			return nil, fmt.Errorf("rerank API returned no score for index %d", res.Index)
		}

		seen[res.Index] = true
	}

	return scores, nil
}
