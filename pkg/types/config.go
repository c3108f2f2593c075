package types

import "time"

// HTTPConfig holds shared HTTP settings for stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with requests
	// (e.g. "regmon-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// StorageConfig holds settings for the knowledge base storage root.
type StorageConfig struct {
	// Dir is the directory holding jurisdiction_profiles.json and
	// learning_sessions.json.
	Dir string `json:"dir" yaml:"dir"`

	// SessionRetention bounds how far back learning sessions are kept;
	// older sessions are pruned on save (default 90 days).
	SessionRetention time.Duration `json:"session_retention" yaml:"session_retention"`
}

// SelectorConfig holds settings for the per-check pattern selection flow.
type SelectorConfig struct {
	// MinConfidence is the confidence floor a learned pattern must meet to
	// be tried before escalating (default 0.6: more likely right than wrong).
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`

	// MaxPatterns is how many top-ranked patterns are tried per check (default 3).
	MaxPatterns int `json:"max_patterns" yaml:"max_patterns"`

	// MaxContentSample bounds the page content sent to the analyzer on
	// escalation, in bytes (default 12288).
	MaxContentSample int `json:"max_content_sample" yaml:"max_content_sample"`
}

// AnalyzerConfig holds settings for the content analyzer backend.
type AnalyzerConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for rate-limited calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Timeout caps one analyzer call. A timed-out call is a failed check;
	// pattern scores are left untouched (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OptimizerConfig holds the heuristic constants of the batch optimization
// pass. The defaults reproduce the tuning the engine was originally trained
// with; they are empirical, not derived, which is why they are configuration
// rather than code.
type OptimizerConfig struct {
	// MinSessions is the number of successful learning sessions a source
	// needs before optimization will run (default 5).
	MinSessions int `json:"min_sessions" yaml:"min_sessions"`

	// Scoring weights: score = success_rate*SuccessRateWeight +
	// min(usage/UsageNorm,1)*UsageWeight + min(avg_items/ItemsNorm,1)*ItemsWeight.
	SuccessRateWeight float64 `json:"success_rate_weight" yaml:"success_rate_weight"`
	UsageWeight       float64 `json:"usage_weight" yaml:"usage_weight"`
	ItemsWeight       float64 `json:"items_weight" yaml:"items_weight"`
	UsageNorm         float64 `json:"usage_norm" yaml:"usage_norm"`
	ItemsNorm         float64 `json:"items_norm" yaml:"items_norm"`

	// Deprecation removes a pattern whose success rate is below
	// DeprecateSuccessRate after more than DeprecateMinUsage attempts.
	DeprecateSuccessRate float64 `json:"deprecate_success_rate" yaml:"deprecate_success_rate"`
	DeprecateMinUsage    int     `json:"deprecate_min_usage" yaml:"deprecate_min_usage"`

	// Reinforcement aggregates the most recent ReinforceWindow successful
	// sessions; each surviving pattern gains min(ReinforceBonusCap,
	// avg_items*ReinforceBonusPerItem) confidence, clamped to 1.0.
	ReinforceWindow       int     `json:"reinforce_window" yaml:"reinforce_window"`
	ReinforceBonusCap     float64 `json:"reinforce_bonus_cap" yaml:"reinforce_bonus_cap"`
	ReinforceBonusPerItem float64 `json:"reinforce_bonus_per_item" yaml:"reinforce_bonus_per_item"`

	// Synthesis looks at the SynthesizeWindow most recent sessions and
	// creates one page_structure pattern when at least one session found
	// SynthesizeMinItems items in under SynthesizeMaxTime seconds.
	SynthesizeWindow     int     `json:"synthesize_window" yaml:"synthesize_window"`
	SynthesizeMinItems   int     `json:"synthesize_min_items" yaml:"synthesize_min_items"`
	SynthesizeMaxTime    float64 `json:"synthesize_max_time" yaml:"synthesize_max_time"`
	SynthesizeConfidence float64 `json:"synthesize_confidence" yaml:"synthesize_confidence"`
}

// DefaultOptimizerConfig returns the original tuning.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MinSessions:           5,
		SuccessRateWeight:     0.6,
		UsageWeight:           0.2,
		ItemsWeight:           0.2,
		UsageNorm:             100,
		ItemsNorm:             10,
		DeprecateSuccessRate:  0.3,
		DeprecateMinUsage:     5,
		ReinforceWindow:       10,
		ReinforceBonusCap:     0.1,
		ReinforceBonusPerItem: 0.01,
		SynthesizeWindow:      5,
		SynthesizeMinItems:    5,
		SynthesizeMaxTime:     30.0,
		SynthesizeConfidence:  0.7,
	}
}

// DefaultSelectorConfig returns the fixed design thresholds of the check flow.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MinConfidence:    0.6,
		MaxPatterns:      3,
		MaxContentSample: 12 * 1024,
	}
}

// SourceConfig identifies one monitored publication source.
type SourceConfig struct {
	SourceID     string `json:"source_id" yaml:"source_id"`
	SourceName   string `json:"source_name" yaml:"source_name"`
	URL          string `json:"url" yaml:"url"`
	Jurisdiction string `json:"jurisdiction" yaml:"jurisdiction"`
}

// MonitorConfig holds settings for a sequential monitoring pass.
type MonitorConfig struct {
	HTTPConfig `yaml:",inline"`

	// InterSourceDelay is the pause between consecutive source checks,
	// the engine's rate limiting (default 2s).
	InterSourceDelay time.Duration `json:"inter_source_delay" yaml:"inter_source_delay"`

	// Sources lists the monitored publication pages.
	Sources []SourceConfig `json:"sources" yaml:"sources"`
}

// DrillConfig bounds category drill-down so link-following always terminates.
type DrillConfig struct {
	// MaxDepth is how many category levels below the starting pages are
	// followed (default 2).
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// MaxPages caps the total pages fetched in one drill (default 10).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// MaxItems caps the total items collected (default 50).
	MaxItems int `json:"max_items" yaml:"max_items"`

	// CategoryMarkers are URL substrings that mark a link as a category
	// page worth expanding rather than a publication item.
	CategoryMarkers []string `json:"category_markers" yaml:"category_markers"`
}

// DefaultDrillConfig returns conservative drill bounds.
func DefaultDrillConfig() DrillConfig {
	return DrillConfig{
		MaxDepth:        2,
		MaxPages:        10,
		MaxItems:        50,
		CategoryMarkers: []string{"/category/", "/categoria/", "/rubrique/", "/themen/"},
	}
}

// EngineConfig groups all stage configurations.
type EngineConfig struct {
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Selector  SelectorConfig  `json:"selector" yaml:"selector"`
	Analyzer  AnalyzerConfig  `json:"analyzer" yaml:"analyzer"`
	Optimizer OptimizerConfig `json:"optimizer" yaml:"optimizer"`
	Monitor   MonitorConfig   `json:"monitor" yaml:"monitor"`
	Drill     DrillConfig     `json:"drill" yaml:"drill"`
}
