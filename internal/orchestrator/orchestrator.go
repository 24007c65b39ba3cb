// Package orchestrator wires the Module Router, Schema Retriever, Schema
// Grounder/Linker, Join Planner, Prompt Builder, Candidate Generator,
// Candidate Evaluator, Repair Loop, and Executor into the single
// `answer(question, database_id, options)` entry point described by
// spec §6's Caller interface. Grounded on the teacher's
// internal/inference/pipeline.go Pipeline.Execute, which strings schema
// loading, its own ReAct loop and SQL extraction together behind one
// call and notifies a StepCallback at each stage instead of returning a
// step-by-step trace value directly.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"queryorch/internal/adapter"
	"queryorch/internal/catalog"
	"queryorch/internal/config"
	"queryorch/internal/embedclient"
	"queryorch/internal/evaluate"
	"queryorch/internal/executor"
	"queryorch/internal/genclient"
	"queryorch/internal/generate"
	"queryorch/internal/grounder"
	"queryorch/internal/joinplan"
	"queryorch/internal/obslog"
	"queryorch/internal/orcherr"
	"queryorch/internal/prompt"
	"queryorch/internal/repair"
	"queryorch/internal/retrieval"
	"queryorch/internal/router"
)

// Options carries per-call overrides of the process-wide config (spec
// §6 "options"). The zero value means "use the configured default".
type Options struct {
	Dialect          string
	MaxRows          int
	StatementTimeout time.Duration
}

// Answer is the caller-visible result of spec §6:
// `{sql, rows, trace, confidence}`.
type Answer struct {
	SQL        string
	Rows       []map[string]interface{}
	Columns    []string
	RowCount   int
	Trace      executor.Trace
	Confidence float64
	// ProofreadSuggestions holds any generator-proposed gloss corrections
	// raised while answering (config.Features.EnableProofread). Empty
	// unless that feature is on and the generator had something to flag.
	ProofreadSuggestions []grounder.ProofreadUpdate
}

// Orchestrator holds the long-lived, shared dependencies (catalog store,
// database adapter, worker clients) that every request reuses; it is
// safe for concurrent use across many simultaneous Answer calls, since
// every stage it drives either reads shared state (catalog.Store) or
// builds request-scoped values.
type Orchestrator struct {
	db        adapter.DBAdapter
	gen       *genclient.Client
	router    *router.Router
	retriever *retrieval.Retriever
	cfg       *config.Config
	log       *obslog.Logger
}

// New assembles an Orchestrator from its already-constructed
// dependencies. modules and keywordRules seed the module router;
// typically modules comes from one startup call to
// catalog.Store.Modules.
func New(store catalog.Store, db adapter.DBAdapter, embed *embedclient.Client, gen *genclient.Client, modules []catalog.ModuleDescriptor, keywordRules map[string][]string, cfg *config.Config, log *obslog.Logger) *Orchestrator {
	rt := router.New(modules, embed, keywordRules, cfg.Router.SimilarityFloor, cfg.Router.TopGap, cfg.Router.MaxModules, log)
	rv := retrieval.New(store, embed, gen, cfg.Retrieval, cfg.Features, log)
	return &Orchestrator{db: db, gen: gen, router: rt, retriever: rv, cfg: cfg, log: log}
}

// Answer runs the full pipeline for one question and returns the
// generated SQL, its result rows, a trace of every stage, and a
// confidence score in [0, 1]. databaseID currently only labels the
// trace; a multi-tenant catalog/adapter pair would key off it to pick
// the right Store/DBAdapter pair, which is out of scope for a single
// Orchestrator instance wired at startup.
func (o *Orchestrator) Answer(ctx context.Context, question string, databaseID string, opts Options) (Answer, error) {
	trace := executor.NewTrace(question)

	dialect := o.cfg.Dialect
	if opts.Dialect != "" {
		dialect = opts.Dialect
	}
	statementTimeout := o.cfg.Executor.StatementTimeout
	if opts.StatementTimeout > 0 {
		statementTimeout = opts.StatementTimeout
	}

	idx := trace.StartStep("route", "")
	routeResult := o.router.Route(ctx, question)
	trace.CompleteStep(idx, fmt.Sprintf("modules=%v degraded=%v", routeResult.Modules, routeResult.Degraded))

	idx = trace.StartStep("retrieve", "")
	packet, err := o.retrieveMerged(ctx, question, routeResult.Modules)
	if err != nil {
		trace.FailStep(idx, err.Error())
		return Answer{Trace: trace}, err
	}
	trace.CompleteStep(idx, fmt.Sprintf("%d tables selected", len(packet.Tables)))
	for _, t := range packet.Tables {
		trace.SelectedTables = append(trace.SelectedTables, executor.TableTrace{
			Table: t.Descriptor.Name, Source: string(t.Source), Score: t.Score,
		})
	}
	if len(packet.Tables) == 0 {
		err := orcherr.New(orcherr.KindNoCandidates, "no tables retrieved for this question", nil)
		return Answer{Trace: trace}, err
	}

	glosses := make(map[string][]grounder.ColumnGloss, len(packet.Tables))
	for _, t := range packet.Tables {
		glosses[t.Descriptor.Name] = grounder.GlossTable(t.Descriptor)
	}

	idx = trace.StartStep("link", "")
	var bundle grounder.SchemaLinkBundle
	if o.cfg.Features.EnableLinker {
		bundle = grounder.Link(question, packet, glosses, o.cfg.Grounder)
	} else {
		bundle = grounder.SchemaLinkBundle{RequiredTables: packet.TableNames()}
	}
	trace.CompleteStep(idx, fmt.Sprintf("%d required tables", len(bundle.RequiredTables)))

	var skeletons []joinplan.Skeleton
	if o.cfg.Features.EnableJoinPlanner && len(bundle.RequiredTables) >= 2 {
		idx = trace.StartStep("join_plan", "")
		skeletons = joinplan.Plan(bundle.RequiredTables, packet.Edges, packet.TableNames(), o.cfg.Retrieval.HubDegreeThreshold, o.cfg.JoinPlan)
		trace.CompleteStep(idx, fmt.Sprintf("%d skeletons", len(skeletons)))
	}

	promptBase := prompt.Build(dialect, packet, glosses, bundle, skeletons, question)

	idx = trace.StartStep("generate", fmt.Sprintf("prompt ~%d tokens", prompt.EstimateTokens(promptBase)))
	candidates, err := generate.Generate(ctx, o.gen, question, promptBase, o.cfg.Generate)
	if err != nil {
		trace.FailStep(idx, err.Error())
		return Answer{Trace: trace}, err
	}
	trace.CompleteStep(idx, fmt.Sprintf("%d candidates", len(candidates)))

	idx = trace.StartStep("evaluate", "")
	evalCfg := o.cfg.Evaluate
	if !o.cfg.Features.EnableValueVerification {
		evalCfg.ValueVerifyTopN = 0
	}
	report, err := evaluate.Evaluate(ctx, o.db, question, candidates, packet, skeletons, evalCfg)
	if err != nil {
		trace.FailStep(idx, err.Error())
		return Answer{Trace: trace}, err
	}
	for _, s := range report.Ranked {
		trace.Candidates = append(trace.Candidates, executor.CandidateScore{
			SQL:           s.SQL,
			FinalScore:    s.FinalScore,
			ExplainOK:     s.Explain.Outcome == evaluate.ExplainOK,
			LintErrors:    countSeverity(s.LintFindings, evaluate.LintError),
			LintWarnings:  countSeverity(s.LintFindings, evaluate.LintWarning),
			GenerationIdx: s.GenerationIdx,
		})
	}
	winner, ok := report.Winner()
	if !ok {
		err := orcherr.New(orcherr.KindNoCandidates, "every candidate was rejected during evaluation", nil)
		trace.FailStep(idx, err.Error())
		return Answer{Trace: trace}, err
	}
	trace.CompleteStep(idx, fmt.Sprintf("winner score=%.1f", winner.FinalScore))

	finalSQL := winner.SQL
	confidence := clampConfidence(winner.FinalScore / 100)

	if winner.Explain.Outcome != evaluate.ExplainOK {
		idx = trace.StartStep("repair", "")
		repairResult, rerr := repair.Run(ctx, o.gen, o.db, promptBase, winner.SQL, explainErrText(winner.Explain), packet.Edges, packet, o.cfg.Repair, o.cfg.Evaluate.ExplainTimeout, o.cfg.Evaluate.DeadlineSlack)
		trace.RepairAttempts = append(trace.RepairAttempts, executor.RepairAttemptTrace{
			Attempt:    repairResult.Attempts,
			SQL:        repairResult.SQL,
			Succeeded:  repairResult.Succeeded,
			Confidence: repairResult.Confidence,
			HintKinds:  hintKindNames(repairResult.Hints),
		})
		if rerr != nil {
			trace.FailStep(idx, rerr.Error())
			return Answer{Trace: trace, Confidence: clampConfidence(repairResult.Confidence)}, rerr
		}
		trace.CompleteStep(idx, fmt.Sprintf("repaired after %d attempts", repairResult.Attempts))
		finalSQL = repairResult.SQL
		confidence = clampConfidence(repairResult.Confidence)
	}

	execRes, err := executor.Run(ctx, o.db, finalSQL, statementTimeout, trace)
	if err != nil {
		return Answer{Trace: execRes.Trace, Confidence: confidence}, err
	}

	rows := execRes.Rows
	rowCount := execRes.RowCount
	maxRows := o.cfg.Executor.MaxRows
	if opts.MaxRows > 0 {
		maxRows = opts.MaxRows
	}
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		rowCount = maxRows
	}

	var proofread []grounder.ProofreadUpdate
	if o.cfg.Features.EnableProofread {
		proofread = o.collectProofreadSuggestions(ctx, promptBase, finalSQL)
	}

	return Answer{
		SQL:                 finalSQL,
		Rows:                rows,
		Columns:             execRes.Columns,
		RowCount:            rowCount,
		Trace:               execRes.Trace,
		Confidence:          confidence,
		ProofreadSuggestions: proofread,
	}, nil
}

// collectProofreadSuggestions asks the generator whether anything about
// the winning query's schema glosses looked stale, per SPEC_FULL.md's
// Rich Context proofreading supplement. It never touches the schema
// context packet fed to generation/evaluation — those stay immutable
// for the lifetime of this Answer call, per the repair-loop invariant
// that candidates are judged against one fixed packet. A transport
// failure or an unparsable proposal is logged and dropped rather than
// failing the answer, since proofreading is advisory.
func (o *Orchestrator) collectProofreadSuggestions(ctx context.Context, promptBase, finalSQL string) []grounder.ProofreadUpdate {
	raw, err := o.gen.Proofread(ctx, promptBase, finalSQL)
	if err != nil {
		if o.log != nil {
			o.log.Warnw("proofread request failed", "error", err)
		}
		return nil
	}
	if raw == "" {
		return nil
	}
	hook := grounder.NewProofreadHook()
	if _, ok := hook.Propose(raw, time.Now()); !ok {
		if o.log != nil {
			o.log.Warnw("dropped unparsable proofread proposal")
		}
		return nil
	}
	return hook.Drain()
}

// retrieveMerged runs the Schema Retriever once per routed module and
// merges the resulting packets, since catalog.Store's module filter
// (spec §4.1) accepts only a single module at a time while the router
// may return up to cfg.Router.MaxModules names (spec §4.2). An empty
// module list (no keyword or embedding match cleared the floor, or the
// router degraded) falls back to one unfiltered retrieval pass over the
// whole catalog, matching Result.Modules' documented meaning of "empty
// means no filter".
func (o *Orchestrator) retrieveMerged(ctx context.Context, question string, modules []string) (*catalog.SchemaContextPacket, error) {
	if len(modules) == 0 {
		return o.retriever.Retrieve(ctx, question, "")
	}

	merged := &catalog.SchemaContextPacket{
		Metadata: catalog.RetrievalMetadata{CountsBySource: map[catalog.TableSource]int{}},
	}
	seenTable := make(map[string]int) // table name -> index in merged.Tables
	seenEdge := make(map[string]bool)
	seenModule := make(map[string]bool)

	for _, m := range modules {
		packet, err := o.retriever.Retrieve(ctx, question, m)
		if err != nil {
			return nil, err
		}
		for _, t := range packet.Tables {
			if i, ok := seenTable[t.Descriptor.Name]; ok {
				if t.Score > merged.Tables[i].Score {
					merged.Tables[i].Score = t.Score
				}
				continue
			}
			seenTable[t.Descriptor.Name] = len(merged.Tables)
			merged.Tables = append(merged.Tables, t)
		}
		for _, e := range packet.Edges {
			key := e.FromTable + "." + e.FromColumn + ">" + e.ToTable + "." + e.ToColumn
			if seenEdge[key] {
				continue
			}
			seenEdge[key] = true
			merged.Edges = append(merged.Edges, e)
		}
		for _, mod := range packet.Modules {
			if seenModule[mod] {
				continue
			}
			seenModule[mod] = true
			merged.Modules = append(merged.Modules, mod)
		}
		if packet.Metadata.CosineThresholdUsed > merged.Metadata.CosineThresholdUsed {
			merged.Metadata.CosineThresholdUsed = packet.Metadata.CosineThresholdUsed
		}
		merged.Metadata.HubCapsApplied += packet.Metadata.HubCapsApplied
		merged.Metadata.Latency += packet.Metadata.Latency
		for src, n := range packet.Metadata.CountsBySource {
			merged.Metadata.CountsBySource[src] += n
		}
	}
	sort.Slice(merged.Tables, func(i, j int) bool {
		if merged.Tables[i].Score != merged.Tables[j].Score {
			return merged.Tables[i].Score > merged.Tables[j].Score
		}
		return merged.Tables[i].Descriptor.Name < merged.Tables[j].Descriptor.Name
	})
	return merged, nil
}

func countSeverity(findings []evaluate.LintFinding, sev evaluate.LintSeverity) int {
	n := 0
	for _, f := range findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

func explainErrText(res evaluate.ExplainResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return string(res.Outcome)
}

func hintKindNames(hints []repair.Hint) []string {
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		out = append(out, string(h.Kind))
	}
	return out
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
