// Package genclient calls the external generative worker (spec §2
// "Generator client", §6 "Generator worker"): a prompt and a candidate
// count K in, K SQL strings out, with a single-string "repair" variant
// for the delta prompt. Grounded on the teacher's
// internal/inference/react.go oneShotGeneration (retry loop around the
// LLM call, markdown-fence stripping in extractSQL) and
// internal/llm.CreateLLM (local OpenAI-compatible base URL), but talking
// to a worker that natively returns K candidates per call instead of one
// response per call.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"queryorch/internal/config"
	"queryorch/internal/obslog"
	"queryorch/internal/orcherr"
)

// Client calls the generative worker over HTTP. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
	log        *obslog.Logger
}

// New builds a client from the workers section of Config.
func New(cfg config.WorkersConfig, log *obslog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.GenBaseURL,
		token:      cfg.GenToken,
		model:      cfg.GenModel,
		log:        log,
	}
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	K           int     `json:"k"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []string `json:"candidates"`
}

type repairRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Delta       string  `json:"delta"`
	Temperature float64 `json:"temperature"`
}

type repairResponse struct {
	SQL string `json:"sql"`
}

type proofreadRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	SQL    string `json:"sql"`
}

type proofreadResponse struct {
	// Proposal carries a raw JSON object (possibly markdown-fenced) the
	// caller hands to grounder.ParseProofreadUpdate; empty when the
	// worker had nothing to flag.
	Proposal string `json:"proposal"`
}

// Generate requests K SQL candidates for prompt at the given temperature.
// Every returned string has markdown fencing stripped (spec §6 "possibly
// with markdown fencing that the client strips"). On transport failure
// or a malformed response, returns GeneratorUnavailable — per spec §7 this
// is fatal, no retry inside the current query. A response with no usable
// candidate yields an empty slice and a nil error.
func (c *Client) Generate(ctx context.Context, prompt string, k int, temperature float64) ([]string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, K: k, Temperature: temperature})
	if err != nil {
		return nil, orcherr.New(orcherr.KindGeneratorUnavailable, "failed to encode generate request", err)
	}

	raw, err := c.post(ctx, "/generate", body)
	if err != nil {
		return nil, orcherr.New(orcherr.KindGeneratorUnavailable, "generator worker unreachable", err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, orcherr.New(orcherr.KindGeneratorUnavailable, "malformed generator response", err)
	}

	candidates := make([]string, 0, len(out.Candidates))
	for _, c := range out.Candidates {
		if sql := ExtractSQL(c); sql != "" {
			candidates = append(candidates, sql)
		}
	}
	return candidates, nil
}

// Repair requests a single focused rewrite given a base prompt and a
// delta section (surgical whitelist, cross-table hint, phantom-column
// removal — spec §4.9).
func (c *Client) Repair(ctx context.Context, prompt, delta string, temperature float64) (string, error) {
	body, err := json.Marshal(repairRequest{Model: c.model, Prompt: prompt, Delta: delta, Temperature: temperature})
	if err != nil {
		return "", orcherr.New(orcherr.KindGeneratorUnavailable, "failed to encode repair request", err)
	}

	raw, err := c.post(ctx, "/repair", body)
	if err != nil {
		return "", orcherr.New(orcherr.KindGeneratorUnavailable, "generator worker unreachable", err)
	}

	var out repairResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", orcherr.New(orcherr.KindGeneratorUnavailable, "malformed repair response", err)
	}
	return ExtractSQL(out.SQL), nil
}

// Proofread asks the worker to flag a stale schema gloss it noticed
// while producing sql for prompt, per SPEC_FULL.md's supplemented Rich
// Context proofreading loop (config.Features.EnableProofread gates
// whether callers invoke this at all). Returns an empty string when the
// worker has nothing to propose; callers should treat both a transport
// failure and an empty proposal as "no suggestion" rather than a fatal
// error, since proofreading is advisory and never blocks the answer.
func (c *Client) Proofread(ctx context.Context, prompt, sql string) (string, error) {
	body, err := json.Marshal(proofreadRequest{Model: c.model, Prompt: prompt, SQL: sql})
	if err != nil {
		return "", fmt.Errorf("encode proofread request: %w", err)
	}

	raw, err := c.post(ctx, "/proofread", body)
	if err != nil {
		return "", err
	}

	var out proofreadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("malformed proofread response: %w", err)
	}
	return out.Proposal, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
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
			c.log.Warnw("generate request failed", "path", path, "error", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator worker status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

// ExtractSQL strips markdown fencing and surrounding prose from a raw
// generator response, adapted from the teacher's extractSQL.
func ExtractSQL(response string) string {
	if idx := strings.Index(response, "Final Answer:"); idx >= 0 {
		response = response[idx+len("Final Answer:"):]
	}
	response = strings.TrimSpace(response)

	response = strings.TrimPrefix(response, "```sql")
	response = strings.TrimPrefix(response, "```SQL")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if strings.Contains(response, "`SELECT") || strings.Contains(response, "`select") ||
		strings.Contains(response, "`WITH") || strings.Contains(response, "`with") {
		if start := strings.Index(response, "`"); start >= 0 {
			if end := strings.Index(response[start+1:], "`"); end >= 0 {
				response = response[start+1 : start+1+end]
			}
		}
	}

	lines := strings.Split(response, "\n")
	if len(lines) > 1 {
		first := strings.ToUpper(strings.TrimSpace(lines[0]))
		if strings.HasPrefix(first, "SELECT") || strings.HasPrefix(first, "WITH") {
			var sb strings.Builder
			for _, l := range lines {
				trimmed := strings.TrimSpace(l)
				if trimmed == "" || strings.HasPrefix(trimmed, "--") {
					continue
				}
				if sb.Len() > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(trimmed)
			}
			response = sb.String()
		}
	}

	return strings.TrimSpace(response)
}
