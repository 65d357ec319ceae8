// Package config provides configuration for the hypernars core.
//
// Configuration is loaded from (in order of precedence): environment
// variables (HN_* prefix), an optional JSON file, and defaults. Unknown JSON
// keys are rejected so a typoed option never silently falls back to its
// default.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the complete reasoner configuration.
type Config struct {
	// Decay is the activation decay per maintenance cycle.
	Decay float64 `json:"decay"`

	// BudgetDecay is the belief-budget decay per maintenance cycle.
	BudgetDecay float64 `json:"budget_decay"`

	// InferenceThreshold is the minimum activation for a rule to fire.
	InferenceThreshold float64 `json:"inference_threshold"`

	// MaxPathLength caps propagation path length.
	MaxPathLength uint32 `json:"max_path_length"`

	// BeliefCapacity bounds beliefs retained per edge.
	BeliefCapacity int `json:"belief_capacity"`

	// TemporalHorizon limits temporal composition depth.
	TemporalHorizon int `json:"temporal_horizon"`

	// BudgetThreshold is the event enqueue cutoff.
	BudgetThreshold float64 `json:"budget_threshold"`

	// MaxDerivationDepth caps path length for rule application.
	MaxDerivationDepth uint32 `json:"max_derivation_depth"`

	// DerivationCacheSize is the LRU cap for the derivation memo.
	DerivationCacheSize int `json:"derivation_cache_size"`

	// QuestionTimeoutMS is the default ask deadline in milliseconds.
	QuestionTimeoutMS int `json:"question_timeout_ms"`

	// MemoryMaintenanceInterval is the number of steps between maintenance
	// cycles.
	MemoryMaintenanceInterval uint32 `json:"memory_maintenance_interval"`

	// QuestionResolutionInterval is the number of steps between
	// pending-question and contradiction sweeps.
	QuestionResolutionInterval uint32 `json:"question_resolution_interval"`

	// ContradictionThreshold is the frequency gap marking a strong
	// contradiction.
	ContradictionThreshold float64 `json:"contradiction_threshold"`

	// RuleSet selects which default rules are registered: "simple" or
	// "advanced".
	RuleSet string `json:"rule_set"`

	// Seed drives stochastic rule selection; fixed for reproducible runs.
	Seed int64 `json:"seed"`

	// Features toggles the optional subsystems.
	Features FeatureFlags `json:"features"`
}

// FeatureFlags controls optional capabilities.
type FeatureFlags struct {
	SemanticIndex     bool `json:"semantic_index"`
	Neo4jMirror       bool `json:"neo4j_mirror"`
	SourceReliability bool `json:"source_reliability"`
	RecencyBias       bool `json:"recency_bias"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Decay:                      0.1,
		BudgetDecay:                0.8,
		InferenceThreshold:         0.3,
		MaxPathLength:              15,
		BeliefCapacity:             8,
		TemporalHorizon:            3,
		BudgetThreshold:            0.05,
		MaxDerivationDepth:         5,
		DerivationCacheSize:        1000,
		QuestionTimeoutMS:          3000,
		MemoryMaintenanceInterval:  100,
		QuestionResolutionInterval: 10,
		ContradictionThreshold:     0.7,
		RuleSet:                    "advanced",
		Seed:                       1,
		Features: FeatureFlags{
			SemanticIndex:     false,
			Neo4jMirror:       false,
			SourceReliability: true,
			RecencyBias:       true,
		},
	}
}

// Load builds a config from defaults overridden by environment variables.
func Load() (*Config, error) {
	cfg := Default()
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile builds a config from defaults, a JSON file, then environment
// variables. Unknown keys in the file are rejected.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.UnmarshalStrict(data); err != nil {
		return nil, err
	}
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// UnmarshalStrict parses JSON into the config, rejecting unknown keys.
func (c *Config) UnmarshalStrict(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// loadFromEnv applies HN_* environment overrides.
func (c *Config) loadFromEnv() {
	floatVar(&c.Decay, "HN_DECAY")
	floatVar(&c.BudgetDecay, "HN_BUDGET_DECAY")
	floatVar(&c.InferenceThreshold, "HN_INFERENCE_THRESHOLD")
	uint32Var(&c.MaxPathLength, "HN_MAX_PATH_LENGTH")
	intVar(&c.BeliefCapacity, "HN_BELIEF_CAPACITY")
	intVar(&c.TemporalHorizon, "HN_TEMPORAL_HORIZON")
	floatVar(&c.BudgetThreshold, "HN_BUDGET_THRESHOLD")
	uint32Var(&c.MaxDerivationDepth, "HN_MAX_DERIVATION_DEPTH")
	intVar(&c.DerivationCacheSize, "HN_DERIVATION_CACHE_SIZE")
	uint32Var(&c.MemoryMaintenanceInterval, "HN_MEMORY_MAINTENANCE_INTERVAL")
	uint32Var(&c.QuestionResolutionInterval, "HN_QUESTION_RESOLUTION_INTERVAL")
	floatVar(&c.ContradictionThreshold, "HN_CONTRADICTION_THRESHOLD")

	intVar(&c.QuestionTimeoutMS, "HN_QUESTION_TIMEOUT_MS")
	if v := os.Getenv("HN_RULE_SET"); v != "" {
		c.RuleSet = strings.ToLower(v)
	}
	if v := os.Getenv("HN_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
	if v := os.Getenv("HN_FEATURES_SEMANTIC_INDEX"); v != "" {
		c.Features.SemanticIndex = parseBool(v)
	}
	if v := os.Getenv("HN_FEATURES_NEO4J_MIRROR"); v != "" {
		c.Features.Neo4jMirror = parseBool(v)
	}
	if v := os.Getenv("HN_FEATURES_SOURCE_RELIABILITY"); v != "" {
		c.Features.SourceReliability = parseBool(v)
	}
	if v := os.Getenv("HN_FEATURES_RECENCY_BIAS"); v != "" {
		c.Features.RecencyBias = parseBool(v)
	}
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	inUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
		return nil
	}
	for _, check := range []error{
		inUnit("decay", c.Decay),
		inUnit("budget_decay", c.BudgetDecay),
		inUnit("inference_threshold", c.InferenceThreshold),
		inUnit("budget_threshold", c.BudgetThreshold),
		inUnit("contradiction_threshold", c.ContradictionThreshold),
	} {
		if check != nil {
			return check
		}
	}
	if c.MaxPathLength == 0 {
		return fmt.Errorf("max_path_length must be positive")
	}
	if c.BeliefCapacity < 1 {
		return fmt.Errorf("belief_capacity must be >= 1")
	}
	if c.TemporalHorizon < 1 {
		return fmt.Errorf("temporal_horizon must be >= 1")
	}
	if c.DerivationCacheSize < 1 {
		return fmt.Errorf("derivation_cache_size must be >= 1")
	}
	if c.QuestionTimeoutMS <= 0 {
		return fmt.Errorf("question_timeout_ms must be positive")
	}
	if c.MemoryMaintenanceInterval == 0 {
		return fmt.Errorf("memory_maintenance_interval must be positive")
	}
	if c.QuestionResolutionInterval == 0 {
		return fmt.Errorf("question_resolution_interval must be positive")
	}
	if c.RuleSet != "simple" && c.RuleSet != "advanced" {
		return fmt.Errorf("rule_set must be 'simple' or 'advanced'")
	}
	return nil
}

// QuestionTimeout returns the default ask deadline as a duration.
func (c *Config) QuestionTimeout() time.Duration {
	return time.Duration(c.QuestionTimeoutMS) * time.Millisecond
}

// ToJSON serializes the configuration.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func floatVar(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func intVar(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func uint32Var(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = uint32(n)
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on" || s == "enabled"
}
