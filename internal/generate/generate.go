// Package generate implements Candidate Generation (spec §4.7): an
// adaptive K chosen by a cheap regex difficulty classifier, a call
// (or fan-out of calls) to the generator worker, and normalisation plus
// dedup-by-normalised-form over the returned candidates. Grounded on the
// teacher's retry/backoff shape in internal/inference/react.go's
// oneShotGeneration (bounded attempts around a single LLM call),
// generalized from "one candidate with retries" to "K candidates,
// optionally fanned out", using golang.org/x/sync/errgroup for the
// parallel-mode fan-out the same way internal/retrieval does for its
// cosine/BM25 pair.
package generate

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"queryorch/internal/config"
	"queryorch/internal/genclient"
)

// Difficulty is the coarse bucket the regex classifier assigns a
// question to (spec §4.7: "a cheap regex classifier on the question
// maps to {easy, default, hard}").
type Difficulty string

const (
	Easy    Difficulty = "easy"
	Default Difficulty = "default"
	Hard    Difficulty = "hard"
)

// hardSignals are constructs that make a question likely to need a more
// complex query: aggregation-over-aggregation, windowing, multi-hop
// comparisons.
var hardSignals = regexp.MustCompile(`(?i)\b(top \d+ (each|per)|running (total|average)|percentile|rank|window|year[- ]over[- ]year|compared to|for each .* and)\b`)

// easySignals are simple single-entity lookups and counts.
var easySignals = regexp.MustCompile(`(?i)^\s*(how many|count|list|show)\b.{0,40}$`)

// Classify buckets a question by the cheap regex classifier.
func Classify(question string) Difficulty {
	if hardSignals.MatchString(question) {
		return Hard
	}
	if easySignals.MatchString(question) {
		return Easy
	}
	return Default
}

// K returns the adaptive candidate count for a difficulty bucket.
func K(d Difficulty, cfg config.GenerateConfig) int {
	switch d {
	case Easy:
		return cfg.KEasy
	case Hard:
		return cfg.KHard
	default:
		return cfg.KDefault
	}
}

// Candidate is one normalised, deduplicated SQL candidate string,
// carrying its first raw index for traceability.
type Candidate struct {
	SQL          string
	NormalizedSQL string
	FirstIndex   int
}

// Generate runs the full algorithm of spec §4.7: classify, call the
// generator client for K candidates (in parallel or via one batched
// call depending on cfg.ParallelMode), normalise, and dedup by
// normalised form preserving earliest occurrence.
func Generate(ctx context.Context, client *genclient.Client, question, prompt string, cfg config.GenerateConfig) ([]Candidate, error) {
	difficulty := Classify(question)
	k := K(difficulty, cfg)

	var raw []string
	var err error
	if cfg.ParallelMode {
		raw, err = generateParallel(ctx, client, prompt, k, cfg.Temperature)
	} else {
		raw, err = client.Generate(ctx, prompt, k, cfg.Temperature)
	}
	if err != nil {
		return nil, err
	}

	return dedupe(raw), nil
}

// generateParallel fans out k single-candidate requests concurrently,
// the "parallel mode" resource hint of spec §4.7. A failed request only
// leaves its slot empty; if every request fails, the result is an empty
// slice and a nil error. Candidates keep their slot order, so the output
// does not depend on which request finished first.
func generateParallel(ctx context.Context, client *genclient.Client, prompt string, k int, temperature float64) ([]string, error) {
	results := make([]string, k)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < k; i++ {
		i := i
		g.Go(func() error {
			one, err := client.Generate(gctx, prompt, 1, temperature)
			if err != nil {
				return nil // tolerate a single slot failing; caller sees fewer candidates
			}
			if len(one) > 0 {
				results[i] = one[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, k)
	for _, r := range results {
		if r != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

var keywordPattern = regexp.MustCompile(`(?i)\b(select|from|where|join|left|right|inner|outer|on|group by|order by|having|limit|offset|as|and|or|not|in|exists|distinct|union|all|case|when|then|else|end|with)\b`)

// normalize collapses whitespace and uppercases SQL keywords, per spec
// §4.7 "normalised (whitespace, case of keywords)".
func normalize(sql string) string {
	collapsed := strings.Join(strings.Fields(sql), " ")
	return keywordPattern.ReplaceAllStringFunc(collapsed, strings.ToUpper)
}

// dedupe keeps the earliest occurrence of each normalised form.
func dedupe(raw []string) []Candidate {
	seen := make(map[string]bool, len(raw))
	out := make([]Candidate, 0, len(raw))
	for i, sql := range raw {
		if strings.TrimSpace(sql) == "" {
			continue
		}
		norm := normalize(sql)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, Candidate{SQL: sql, NormalizedSQL: norm, FirstIndex: i})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FirstIndex < out[j].FirstIndex })
	return out
}
