// Package router implements the Module Router (spec §4.2): narrowing a
// catalog of potentially thousands of tables to one to three module
// partitions before dense retrieval, combining a deterministic keyword
// pass with an embedding-similarity pass. Grounded on the teacher's
// two-pass reasoning in internal/inference/schema_linker.go (a cheap
// deterministic pass before the expensive one), generalized here to
// keyword-matching plus cosine similarity instead of an LLM call.
package router

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"queryorch/internal/catalog"
	"queryorch/internal/embedclient"
	"queryorch/internal/obslog"
)

// Result is the router's output: the module filter (empty means "no
// filter, operate over the entire catalog") plus per-module confidence
// for tracing.
type Result struct {
	Modules    []string
	Confidence map[string]float64
	Degraded   bool // true if the embedding pass was skipped (deadline or embed failure)
}

// Router reduces the table universe to a small module set.
type Router struct {
	modules []catalog.ModuleDescriptor
	embed   *embedclient.Client
	log     *obslog.Logger

	similarityFloor float64
	topGap          float64
	maxModules      int
	keywordRules    map[string][]string // module -> keywords
}

// New builds a router over a fixed module set (typically loaded once at
// startup from catalog.Store.Modules).
func New(modules []catalog.ModuleDescriptor, embed *embedclient.Client, keywordRules map[string][]string, similarityFloor, topGap float64, maxModules int, log *obslog.Logger) *Router {
	return &Router{
		modules:         modules,
		embed:           embed,
		log:             log,
		similarityFloor: similarityFloor,
		topGap:          topGap,
		maxModules:      maxModules,
		keywordRules:    keywordRules,
	}
}

var wordSplitter = regexp.MustCompile(`[a-z0-9]+`)

// Route runs the keyword pass and, unless the context is already past
// its deadline, the embedding pass, then unions and caps the result
// (spec §4.2 steps 1-3).
func (r *Router) Route(ctx context.Context, question string) Result {
	normalized := normalize(question)
	confidence := make(map[string]float64)

	for module, keywords := range r.keywordRules {
		if containsAnyWholeWord(normalized, keywords) {
			confidence[module] = math.Max(confidence[module], 1.0)
		}
	}

	degraded := false
	if ctx.Err() == nil && r.embed != nil && len(r.modules) > 0 {
		qvec, err := r.embed.Embed(ctx, question)
		if err != nil {
			degraded = true
			if r.log != nil {
				r.log.Warnw("module router embedding pass degraded to keyword-only", "error", err)
			}
		} else {
			for _, m := range r.embedPass(qvec) {
				if m.score > confidence[m.name] {
					confidence[m.name] = m.score
				}
			}
		}
	} else if r.embed != nil && len(r.modules) > 0 {
		degraded = true
	}

	var modules []string
	for m := range confidence {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if confidence[modules[i]] != confidence[modules[j]] {
			return confidence[modules[i]] > confidence[modules[j]]
		}
		return modules[i] < modules[j]
	})
	if len(modules) > r.maxModules {
		modules = modules[:r.maxModules]
	}

	return Result{Modules: modules, Confidence: confidence, Degraded: degraded}
}

type moduleScore struct {
	name  string
	score float64
}

// embedPass computes cosine similarity against every module embedding
// and keeps modules above the absolute floor AND within topGap of the
// best score (spec §4.2 step 2). In-process cosine similarity over a
// handful of module vectors has no dedicated library anywhere in the
// pack — pgvector's `<=>` operator only runs inside Postgres, never
// in-process — so this stays a short stdlib math loop.
func (r *Router) embedPass(qvec []float32) []moduleScore {
	var scores []moduleScore
	best := 0.0
	for _, m := range r.modules {
		sim := cosineSimilarity(qvec, m.Embedding.Slice())
		scores = append(scores, moduleScore{name: m.Name, score: sim})
		if sim > best {
			best = sim
		}
	}

	var out []moduleScore
	for _, s := range scores {
		if s.score >= r.similarityFloor && (best-s.score) <= r.topGap {
			out = append(out, s)
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAnyWholeWord(normalized string, keywords []string) bool {
	words := make(map[string]bool)
	for _, w := range wordSplitter.FindAllString(normalized, -1) {
		words[w] = true
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			if strings.Contains(normalized, kw) {
				return true
			}
			continue
		}
		if words[kw] {
			return true
		}
	}
	return false
}
