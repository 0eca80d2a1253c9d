package model

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete engine configuration
type Config struct {
	LogLevel   string           `yaml:"log_level" mapstructure:"log_level"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Reputation ReputationConfig `yaml:"reputation" mapstructure:"reputation"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle" mapstructure:"lifecycle"`
	Contest    ContestConfig    `yaml:"contest" mapstructure:"contest"`
	Authority  AuthorityConfig  `yaml:"authority" mapstructure:"authority"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Sweep      SweepConfig      `yaml:"sweep" mapstructure:"sweep"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
}

// ScoringConfig holds the evidence scoring table
type ScoringConfig struct {
	PerItem         int              `yaml:"per_item" mapstructure:"per_item"`                 // Base points per item
	BaseCap         int              `yaml:"base_cap" mapstructure:"base_cap"`                 // Cap on base points
	ReputableBonus  int              `yaml:"reputable_bonus" mapstructure:"reputable_bonus"`   // Per reputable link
	SocialBonus     int              `yaml:"social_bonus" mapstructure:"social_bonus"`         // Per social link
	AttachmentBonus int              `yaml:"attachment_bonus" mapstructure:"attachment_bonus"` // Per screenshot/file
	SignalBonus     int              `yaml:"signal_bonus" mapstructure:"signal_bonus"`         // Per linked intelligence signal
	MaxScore        int              `yaml:"max_score" mapstructure:"max_score"`
	Tiers           []TierThreshold  `yaml:"tiers" mapstructure:"tiers"`   // Descending by MinScore
	Grades          []GradeThreshold `yaml:"grades" mapstructure:"grades"` // Descending by MinScore
}

// TierThreshold maps a minimum score to a tier label
type TierThreshold struct {
	Tier     Tier `yaml:"tier" mapstructure:"tier"`
	MinScore int  `yaml:"min_score" mapstructure:"min_score"`
}

// GradeThreshold maps a minimum score to a letter grade and its point multiplier
type GradeThreshold struct {
	Grade      Grade   `yaml:"grade" mapstructure:"grade"`
	MinScore   int     `yaml:"min_score" mapstructure:"min_score"`
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// ReputationConfig holds the point rules
type ReputationConfig struct {
	LockPoints       int         `yaml:"lock_points" mapstructure:"lock_points"`
	CorrectBase      int         `yaml:"correct_base" mapstructure:"correct_base"`           // Multiplied by the grade multiplier
	IncorrectPenalty int         `yaml:"incorrect_penalty" mapstructure:"incorrect_penalty"` // Deducted for incorrect/invalid
	OverrulePenalty  int         `yaml:"overrule_penalty" mapstructure:"overrule_penalty"`
	Milestones       []Milestone `yaml:"milestones" mapstructure:"milestones"` // Ascending by MinPoints
}

// Timeout tie-break rules
const (
	TimeoutRuleNegative  = "negative"  // Overrule at timeout when net < 0
	TimeoutRuleThreshold = "threshold" // Overrule at timeout only when net <= -threshold
)

// LifecycleConfig holds dispute window timings
type LifecycleConfig struct {
	DisputeWindow        time.Duration `yaml:"dispute_window" mapstructure:"dispute_window"`
	FinalizationDeadline time.Duration `yaml:"finalization_deadline" mapstructure:"finalization_deadline"`
	FinalizeThreshold    int           `yaml:"finalize_threshold" mapstructure:"finalize_threshold"`
	TimeoutRule          string        `yaml:"timeout_rule" mapstructure:"timeout_rule"`
}

// ContestConfig holds vote eligibility and throttling
type ContestConfig struct {
	MinSupportReputation int     `yaml:"min_support_reputation" mapstructure:"min_support_reputation"` // For +1 votes
	MinDisputeReputation int     `yaml:"min_dispute_reputation" mapstructure:"min_dispute_reputation"` // For -1 votes
	VotesPerMinute       float64 `yaml:"votes_per_minute" mapstructure:"votes_per_minute"`             // 0 disables the throttle
	VoteBurst            int     `yaml:"vote_burst" mapstructure:"vote_burst"`
	RedisAddr            string  `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"` // Shared throttle when set
	RedisPassword        string  `yaml:"-" mapstructure:"redis_password"`
	RedisDB              int     `yaml:"redis_db" mapstructure:"redis_db"`
}

// AuthorityConfig classifies link domains
type AuthorityConfig struct {
	ReputableDomains []string          `yaml:"reputable_domains" mapstructure:"reputable_domains"`
	SocialDomains    []string          `yaml:"social_domains" mapstructure:"social_domains"`
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty" mapstructure:"path_patterns"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"` // host -> reputable|social|unknown
}

// PathPattern classifies URLs by path regex
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Quality string `yaml:"quality" mapstructure:"quality"`
}

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// CacheConfig controls score memoization
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	Dir             string        `yaml:"dir,omitempty" mapstructure:"dir"` // Persist scores on disk when set
}

// SweepConfig controls batch finalization
type SweepConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
	Limit   int `yaml:"limit" mapstructure:"limit"`
}

// TelemetryConfig toggles OpenTelemetry instruments
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Global  bool `yaml:"global" mapstructure:"global"` // Record on the global meter provider instead of a private one
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Scoring: ScoringConfig{
			PerItem:         20,
			BaseCap:         60,
			ReputableBonus:  10,
			SocialBonus:     5,
			AttachmentBonus: 5,
			SignalBonus:     10,
			MaxScore:        100,
			Tiers: []TierThreshold{
				{Tier: TierStrong, MinScore: 76},
				{Tier: TierSolid, MinScore: 51},
				{Tier: TierBasic, MinScore: 26},
				{Tier: TierUnverified, MinScore: 0},
			},
			Grades: []GradeThreshold{
				{Grade: GradeA, MinScore: 80, Multiplier: 1.6},
				{Grade: GradeB, MinScore: 60, Multiplier: 1.3},
				{Grade: GradeC, MinScore: 30, Multiplier: 0.8},
				{Grade: GradeD, MinScore: 0, Multiplier: 0.3},
			},
		},
		Reputation: ReputationConfig{
			LockPoints:       10,
			CorrectBase:      100,
			IncorrectPenalty: 20,
			OverrulePenalty:  25,
			Milestones: []Milestone{
				{Name: "Novice", MinPoints: 0},
				{Name: "Developing", MinPoints: 100},
				{Name: "Competent", MinPoints: 300},
				{Name: "Trusted", MinPoints: 700},
				{Name: "Expert", MinPoints: 1500},
				{Name: "Master", MinPoints: 3000},
				{Name: "Legend", MinPoints: 6000},
			},
		},
		Lifecycle: LifecycleConfig{
			DisputeWindow:        48 * time.Hour,
			FinalizationDeadline: 7 * 24 * time.Hour,
			FinalizeThreshold:    12,
			TimeoutRule:          TimeoutRuleNegative,
		},
		Contest: ContestConfig{
			MinSupportReputation: 150,
			MinDisputeReputation: 50,
			VotesPerMinute:       0,
			VoteBurst:            5,
		},
		Authority: AuthorityConfig{
			ReputableDomains: []string{
				"reuters.com",
				"apnews.com",
				"bbc.co.uk",
				"bbc.com",
				"nytimes.com",
				"ft.com",
				"bloomberg.com",
				"wsj.com",
				"nature.com",
				"doi.org",
				"arxiv.org",
				"who.int",
				"europa.eu",
			},
			SocialDomains: []string{
				"twitter.com",
				"x.com",
				"facebook.com",
				"instagram.com",
				"reddit.com",
				"tiktok.com",
				"youtube.com",
				"t.me",
				"threads.net",
				"bsky.app",
			},
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             10 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Sweep: SweepConfig{
			Workers: 4,
			Limit:   500,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field invariants of the configuration
func (c *Config) Validate() error {
	var errs []error

	lc := c.Lifecycle
	if lc.DisputeWindow <= 0 {
		errs = append(errs, fmt.Errorf("lifecycle.dispute_window must be positive, got %s", lc.DisputeWindow))
	}
	if lc.DisputeWindow >= lc.FinalizationDeadline {
		errs = append(errs, fmt.Errorf("lifecycle.dispute_window (%s) must be shorter than lifecycle.finalization_deadline (%s)",
			lc.DisputeWindow, lc.FinalizationDeadline))
	}
	if lc.FinalizeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("lifecycle.finalize_threshold must be positive, got %d", lc.FinalizeThreshold))
	}
	if lc.TimeoutRule != TimeoutRuleNegative && lc.TimeoutRule != TimeoutRuleThreshold {
		errs = append(errs, fmt.Errorf("lifecycle.timeout_rule must be %q or %q, got %q",
			TimeoutRuleNegative, TimeoutRuleThreshold, lc.TimeoutRule))
	}

	sc := c.Scoring
	if sc.MaxScore <= 0 {
		errs = append(errs, fmt.Errorf("scoring.max_score must be positive"))
	}
	if err := validateDescending("scoring.tiers", len(sc.Tiers), func(i int) int { return sc.Tiers[i].MinScore }); err != nil {
		errs = append(errs, err)
	}
	if err := validateDescending("scoring.grades", len(sc.Grades), func(i int) int { return sc.Grades[i].MinScore }); err != nil {
		errs = append(errs, err)
	}
	for i, g := range sc.Grades {
		if g.Multiplier < 0 {
			errs = append(errs, fmt.Errorf("scoring.grades[%d].multiplier must not be negative", i))
		}
		if i > 0 && g.Multiplier > sc.Grades[i-1].Multiplier {
			errs = append(errs, fmt.Errorf("scoring.grades[%d].multiplier must not exceed the grade above it", i))
		}
	}

	rc := c.Reputation
	if rc.LockPoints < 0 || rc.CorrectBase < 0 || rc.IncorrectPenalty < 0 || rc.OverrulePenalty < 0 {
		errs = append(errs, fmt.Errorf("reputation points must not be negative"))
	}
	if len(rc.Milestones) == 0 || rc.Milestones[0].MinPoints != 0 {
		errs = append(errs, fmt.Errorf("reputation.milestones must start at 0 points"))
	}
	for i := 1; i < len(rc.Milestones); i++ {
		if rc.Milestones[i].MinPoints <= rc.Milestones[i-1].MinPoints {
			errs = append(errs, fmt.Errorf("reputation.milestones must be strictly ascending at index %d", i))
		}
	}

	if c.Contest.MinSupportReputation < c.Contest.MinDisputeReputation {
		errs = append(errs, fmt.Errorf("contest.min_support_reputation must be at least contest.min_dispute_reputation"))
	}

	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be memory, sqlite or postgres, got %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}

// validateDescending checks a threshold table is strictly descending and ends at 0
func validateDescending(name string, n int, minAt func(int) int) error {
	if n == 0 {
		return fmt.Errorf("%s must not be empty", name)
	}
	for i := 1; i < n; i++ {
		if minAt(i) >= minAt(i-1) {
			return fmt.Errorf("%s must be strictly descending at index %d", name, i)
		}
	}
	if minAt(n-1) != 0 {
		return fmt.Errorf("%s must end at min_score 0", name)
	}
	return nil
}
