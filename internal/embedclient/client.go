// Package embedclient calls the external embedding worker (spec §2
// "Embedding client", §6 "Embedding worker"): HTTP/JSON, local loopback,
// one text string in, one fixed-dimension vector out. Grounded on the
// teacher's internal/llm.CreateLLM (local OpenAI-compatible base URL,
// token auth) but the worker here speaks a small bespoke JSON contract
// rather than the chat-completions shape, so it is a plain net/http
// client instead of a langchaingo model.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"queryorch/internal/config"
	"queryorch/internal/obslog"
	"queryorch/internal/orcherr"
)

// Client calls the embedding worker over HTTP. Safe for concurrent use —
// it holds no per-call state beyond the shared http.Client (spec §5
// "the generator/embedding clients must be safe for concurrent use").
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	dimension  int
	log        *obslog.Logger
}

// New builds a client from the workers section of Config.
func New(cfg config.WorkersConfig, log *obslog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.EmbedBaseURL,
		token:      cfg.EmbedToken,
		dimension:  cfg.EmbedDimension,
		log:        log,
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

// Embed returns the embedding vector for text. Per spec §6 "Errors
// surface as retryable-once": the call is attempted, and on failure
// retried exactly once before surfacing EmbeddingUnavailable — this is
// the single retry the schema retriever relies on before it falls back
// to BM25-only (spec §4.3).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 1)
	err := backoff.Retry(func() error {
		v, err := c.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		return nil, orcherr.New(orcherr.KindEmbeddingUnavailable, "embedding worker unreachable", err)
	}
	return vec, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.Warnw("embed request failed", "error", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding worker status %d: %s", resp.StatusCode, string(raw))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if c.dimension > 0 && len(out.Vector) != c.dimension {
		return nil, fmt.Errorf("embedding worker returned dimension %d, want %d", len(out.Vector), c.dimension)
	}
	return out.Vector, nil
}
