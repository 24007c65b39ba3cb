// Package config loads the orchestration core's typed configuration once
// at process start. Defaults are built in (see Default); a TOML file,
// when one is found, is decoded over them, and the few fields wired in
// bindEnvOverrides can then be overridden by environment variable
// (QUERYORCH_<SECTION>_<FIELD>). Other fields have no env override.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the single typed value the orchestrator reads from. It is
// immutable once loaded; nothing in the request path may mutate it.
type Config struct {
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Router    RouterConfig    `mapstructure:"router"`
	Grounder  GrounderConfig  `mapstructure:"grounder"`
	JoinPlan  JoinPlanConfig  `mapstructure:"join_plan"`
	Generate  GenerateConfig  `mapstructure:"generate"`
	Evaluate  EvaluateConfig  `mapstructure:"evaluate"`
	Repair    RepairConfig    `mapstructure:"repair"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Features  FeatureFlags    `mapstructure:"features"`
	Dialect   string          `mapstructure:"dialect"`
}

// WorkersConfig addresses the external generative and embedding workers
// (spec §6 "External interfaces"), modeled on the teacher's
// llm.ModelConfig (base URL + token against an OpenAI-compatible local
// endpoint).
type WorkersConfig struct {
	EmbedBaseURL   string        `mapstructure:"embed_base_url"`
	EmbedToken     string        `mapstructure:"embed_token"`
	EmbedDimension int           `mapstructure:"embed_dimension"`
	GenBaseURL     string        `mapstructure:"gen_base_url"`
	GenToken       string        `mapstructure:"gen_token"`
	GenModel       string        `mapstructure:"gen_model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetrievalConfig configures schema retrieval (spec §4.3).
type RetrievalConfig struct {
	CosineTopK        int     `mapstructure:"cosine_top_k"`
	BM25TopK          int     `mapstructure:"bm25_top_k"`
	MinCosineSim      float64 `mapstructure:"min_cosine_similarity"`
	FusedTopM         int     `mapstructure:"fused_top_m"`
	RRFK              int     `mapstructure:"rrf_k"`
	FKExpansionDepth  int     `mapstructure:"fk_expansion_depth"`
	FKExpansionDecay  float64 `mapstructure:"fk_expansion_decay"`
	HubDegreeThreshold int    `mapstructure:"hub_degree_threshold"`
	HubEdgeCap        int     `mapstructure:"hub_edge_cap"`
}

// RouterConfig configures the module router (spec §4.2).
type RouterConfig struct {
	KeywordRules    map[string][]string `mapstructure:"keyword_rules"`
	SimilarityFloor float64             `mapstructure:"similarity_floor"`
	TopGap          float64             `mapstructure:"top_gap"`
	MaxModules      int                 `mapstructure:"max_modules"`
}

// ConfusableTableWarning is one entry of the grounder's static
// "confusable tables" map (spec §4.4: "a static map {table ->
// (trigger-keyword-set, message)}").
type ConfusableTableWarning struct {
	Keywords []string `mapstructure:"keywords"`
	Message  string   `mapstructure:"message"`
}

// GrounderConfig configures the schema grounder and linker (spec §4.4).
type GrounderConfig struct {
	RelevanceThreshold float64                           `mapstructure:"relevance_threshold"`
	MatchThreshold     float64                           `mapstructure:"match_threshold"`
	ConfusableTables   map[string]ConfusableTableWarning `mapstructure:"confusable_tables"`
}

// JoinPlanConfig configures the join planner (spec §4.5).
type JoinPlanConfig struct {
	KShortestPaths     int     `mapstructure:"k_shortest_paths"`
	MaxSkeletons        int     `mapstructure:"max_skeletons"`
	ChildParentBonus    float64 `mapstructure:"child_parent_bonus"`
	HubTraversalPenalty float64 `mapstructure:"hub_traversal_penalty"`
}

// GenerateConfig configures candidate generation (spec §4.7).
type GenerateConfig struct {
	KEasy        int     `mapstructure:"k_easy"`
	KDefault     int     `mapstructure:"k_default"`
	KHard        int     `mapstructure:"k_hard"`
	Temperature  float64 `mapstructure:"temperature"`
	ParallelMode bool    `mapstructure:"parallel_mode"`
}

// EvaluateConfig configures the candidate evaluator (spec §4.8).
type EvaluateConfig struct {
	MaxLimit        int           `mapstructure:"max_limit"`
	ExplainTimeout  time.Duration `mapstructure:"explain_timeout"`
	ValueVerifyTopN int           `mapstructure:"value_verify_top_n"`
	// DeadlineSlack is the remaining-time threshold below which the
	// evaluator stops submitting EXPLAIN calls and the repair loop stops
	// issuing further attempts (spec §5 cancellation).
	DeadlineSlack time.Duration `mapstructure:"deadline_slack"`
}

// RepairConfig configures the repair loop (spec §4.9).
type RepairConfig struct {
	MaxAttempts           int     `mapstructure:"max_attempts"`
	ConfidencePenalty     float64 `mapstructure:"confidence_penalty_per_attempt"`
	AutocorrectConfidence float64 `mapstructure:"autocorrect_confidence_threshold"`
}

// ExecutorConfig configures final execution (spec §4.10).
type ExecutorConfig struct {
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	MaxRows          int           `mapstructure:"max_rows"`
}

// FeatureFlags gates every optional stage (spec §9).
type FeatureFlags struct {
	EnableLinker         bool `mapstructure:"enable_linker"`
	EnableJoinPlanner     bool `mapstructure:"enable_join_planner"`
	EnablePreSQLRecall    bool `mapstructure:"enable_pre_sql_recall"`
	EnableValueVerification bool `mapstructure:"enable_value_verification"`
	EnableDialectNormalization bool `mapstructure:"enable_dialect_normalization"`
	EnableProofread       bool `mapstructure:"enable_proofread"`
}

// Default returns the built-in defaults, so code that has no config file
// on disk still runs.
func Default() *Config {
	return &Config{
		Dialect: "postgresql",
		Retrieval: RetrievalConfig{
			CosineTopK:         20,
			BM25TopK:           20,
			MinCosineSim:       0.3,
			FusedTopM:          8,
			RRFK:               60,
			FKExpansionDepth:   2,
			FKExpansionDecay:   0.7,
			HubDegreeThreshold: 8,
			HubEdgeCap:         3,
		},
		Router: RouterConfig{
			SimilarityFloor: 0.35,
			TopGap:          0.1,
			MaxModules:      3,
		},
		Grounder: GrounderConfig{
			RelevanceThreshold: 0.5,
			MatchThreshold:     0.5,
			ConfusableTables:   map[string]ConfusableTableWarning{},
		},
		JoinPlan: JoinPlanConfig{
			KShortestPaths:      3,
			MaxSkeletons:        3,
			ChildParentBonus:    -0.1,
			HubTraversalPenalty: 0.5,
		},
		Generate: GenerateConfig{
			KEasy:        2,
			KDefault:     4,
			KHard:        6,
			Temperature:  0.7,
			ParallelMode: true,
		},
		Evaluate: EvaluateConfig{
			MaxLimit:        1000,
			ExplainTimeout:  3 * time.Second,
			ValueVerifyTopN: 2,
			DeadlineSlack:   250 * time.Millisecond,
		},
		Repair: RepairConfig{
			MaxAttempts:           3,
			ConfidencePenalty:     0.15,
			AutocorrectConfidence: 0.75,
		},
		Executor: ExecutorConfig{
			StatementTimeout: 10 * time.Second,
			MaxRows:          5000,
		},
		Workers: WorkersConfig{
			EmbedBaseURL:   "http://127.0.0.1:8081",
			EmbedDimension: 1536,
			GenBaseURL:     "http://127.0.0.1:8082",
			GenModel:       "local-sql-generator",
			RequestTimeout: 20 * time.Second,
		},
		Features: FeatureFlags{
			EnableLinker:               true,
			EnableJoinPlanner:          true,
			EnablePreSQLRecall:         false,
			EnableValueVerification:    false,
			EnableDialectNormalization: true,
			EnableProofread:            false,
		},
	}
}

// Load starts from Default, decodes over it the first TOML file found
// among explicitPath, config.toml, config/config.toml and ../config.toml
// (same multi-path probing style as the teacher's llm config loader),
// then applies the environment overrides wired in bindEnvOverrides.
func Load(explicitPath string) (*Config, error) {
	cfg := Default()

	paths := []string{explicitPath, "config.toml", "config/config.toml", "../config.toml"}
	var loadedFrom string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := toml.DecodeFile(p, cfg); err == nil {
			loadedFrom = p
			break
		}
	}

	v := viper.New()
	v.SetEnvPrefix("QUERYORCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvOverrides(v, cfg)

	_ = loadedFrom // retained for diagnostics by callers that want it
	return cfg, nil
}

// bindEnvOverrides applies any QUERYORCH_*-prefixed env vars viper has
// picked up on top of the TOML-loaded defaults. Only the handful of
// frequently-tuned knobs are wired; everything else stays config-file-only.
func bindEnvOverrides(v *viper.Viper, cfg *Config) {
	overrides := map[string]*int{
		"retrieval.fused_top_m":       &cfg.Retrieval.FusedTopM,
		"retrieval.fk_expansion_depth": &cfg.Retrieval.FKExpansionDepth,
		"repair.max_attempts":          &cfg.Repair.MaxAttempts,
		"executor.max_rows":            &cfg.Executor.MaxRows,
	}
	for key, dst := range overrides {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
}

// Validate reports an error for any nonsensical value rather than letting
// the orchestrator fail deep in a pipeline stage.
func (c *Config) Validate() error {
	if c.Retrieval.FusedTopM <= 0 {
		return fmt.Errorf("config: retrieval.fused_top_m must be positive")
	}
	if c.Repair.MaxAttempts < 0 {
		return fmt.Errorf("config: repair.max_attempts must be non-negative")
	}
	if c.Generate.KEasy <= 0 || c.Generate.KDefault <= 0 || c.Generate.KHard <= 0 {
		return fmt.Errorf("config: generate K values must be positive")
	}
	return nil
}
