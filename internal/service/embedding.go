package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
	"unicode/utf8"
)

const embeddingTimeout = 30 * time.Second

// Embedder generates vector embeddings from text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingOptions are shared by every embedding provider.
type EmbeddingOptions struct {
	Model      string
	Dimensions int
	MaxChars   int
}

// OllamaEmbedder generates vector embeddings via the Ollama API.
type OllamaEmbedder struct {
	ollamaURL string
	opts      EmbeddingOptions
	client    *http.Client
	cb        *breaker
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder for the given Ollama endpoint. Unless
// allowRemote is set, connections are restricted to loopback addresses.
func NewOllamaEmbedder(ollamaURL string, opts EmbeddingOptions, allowRemote bool) *OllamaEmbedder {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default.

	if !allowRemote {
		transport.DialContext = loopbackDialer
	}

	return &OllamaEmbedder{
		ollamaURL: ollamaURL,
		opts:      opts,
		client:    &http.Client{Timeout: embeddingTimeout, Transport: transport},
		cb:        newBreaker(),
	}
}

func loopbackDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	// Resolve hostname to IPs and verify all are loopback.
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving embedding host: %w", err)
	}

	for _, ip := range ips {
		if !ip.IP.IsLoopback() {
			return nil, fmt.Errorf("embedding service connections restricted to localhost")
		}
	}

	return (&net.Dialer{}).DialContext(ctx, network, addr)
}

// Generate produces a vector embedding for the given text.
// It uses a circuit breaker to fail fast when the embedding service is down.
func (s *OllamaEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	var result []float32

	err := s.cb.do(func() error {
		var err error
		result, err = s.doGenerate(ctx, truncateRunes(text, s.opts.MaxChars))

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *OllamaEmbedder) doGenerate(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: s.opts.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ollamaURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama embed API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain body so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("ollama embed API returned status %d", resp.StatusCode)
	}

	var result embeddingResponse

	limited := io.LimitReader(resp.Body, 10<<20) // 10 MB
	if err := json.NewDecoder(limited).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned empty embeddings")
	}

	return checkDimensions(result.Embeddings[0], s.opts.Dimensions)
}

func checkDimensions(emb []float32, want int) ([]float32, error) {
	if want > 0 && len(emb) != want {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(emb), want)
	}

	return emb, nil
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}

	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}

	return s
}
