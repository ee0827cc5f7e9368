// Package config provides YAML-based configuration loading for trajet.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "90s" or "1h" parse.
// Bare integers are interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level trajet configuration, loaded from config.yaml.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	Backend   BackendConfig   `yaml:"backend"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Server    ServerConfig    `yaml:"server"`
	Agents    []AgentConfig   `yaml:"agents"`
}

// DBConfig selects and configures the storage backend.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// BackendConfig holds settings for the generation and embedding backends.
type BackendConfig struct {
	Provider     string        `yaml:"provider"` // "openai" or "mock"
	BaseURL      string        `yaml:"base_url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Model        string        `yaml:"model"`
	EmbedModel   string        `yaml:"embed_model"`
	Timeout      Duration      `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff Duration      `yaml:"retry_backoff"`
}

// SchedulerConfig tunes turn selection and session lifecycle.
type SchedulerConfig struct {
	Cooldown         int           `yaml:"cooldown"`  // turns an agent waits after speaking
	Seed             int64         `yaml:"seed"`      // tie-break RNG seed, 0 = time-based
	MaxTurns         int           `yaml:"max_turns"` // 0 = unlimited
	HumanParticipant bool          `yaml:"human_participant"`
	SessionTTL       Duration      `yaml:"session_ttl"` // fatal-paused sessions older than this are swept
}

// AnalysisConfig holds the metrics windows and basin calibration thresholds.
// The cutoffs are calibration parameters, not structural invariants, so they
// live here rather than in code.
type AnalysisConfig struct {
	MinTurns        int        `yaml:"min_turns"`        // turns before any basin classification
	MinAlphaWindow  int        `yaml:"min_alpha_window"` // velocities before DFA is attempted
	CoherenceWindow int        `yaml:"coherence_window"`
	LockedShare     float64    `yaml:"locked_share"`
	BreathingShare  float64    `yaml:"breathing_share"`
	Thresholds      Thresholds `yaml:"thresholds"`
}

// Thresholds separates basin labels. Velocity cutoffs are in embedding
// distance units; densities are per-token rates.
type Thresholds struct {
	LowVelocity   float64 `yaml:"low_velocity"`
	HighVelocity  float64 `yaml:"high_velocity"`
	LowCurvature  float64 `yaml:"low_curvature"`
	HighCurvature float64 `yaml:"high_curvature"`
	HighInquiry   float64 `yaml:"high_inquiry"`
	HighAgreement float64 `yaml:"high_agreement"`
	HighOverlap   float64 `yaml:"high_overlap"`
	ModerateVoice float64 `yaml:"moderate_voice"`
	Fragmented    float64 `yaml:"fragmented"` // integrity score below this
	Rigid         float64 `yaml:"rigid"`      // integrity score at or above this
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// AgentConfig describes one synthetic participant in the roster.
type AgentConfig struct {
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name"`
	Archetype string       `yaml:"archetype"`
	Lens      string       `yaml:"lens"`
	Traits    TraitsConfig `yaml:"traits"`
}

// TraitsConfig is the five-dimensional trait vector, each in [0,1].
type TraitsConfig struct {
	Curiosity     float64 `yaml:"curiosity"`
	Agreeableness float64 `yaml:"agreeableness"`
	Assertiveness float64 `yaml:"assertiveness"`
	Abstraction   float64 `yaml:"abstraction"`
	Volatility    float64 `yaml:"volatility"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultThresholds returns the default basin calibration cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowVelocity:   0.15,
		HighVelocity:  0.6,
		LowCurvature:  0.25,
		HighCurvature: 0.8,
		HighInquiry:   0.5,
		HighAgreement: 0.04,
		HighOverlap:   0.5,
		ModerateVoice: 0.3,
		Fragmented:    0.35,
		Rigid:         0.7,
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "trajet.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Database == "" {
		c.DB.Database = "trajet"
	}
	if c.Backend.Provider == "" {
		c.Backend.Provider = "openai"
	}
	if c.Backend.APIKeyEnv == "" {
		c.Backend.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Backend.Model == "" {
		c.Backend.Model = "gpt-4o-mini"
	}
	if c.Backend.EmbedModel == "" {
		c.Backend.EmbedModel = "text-embedding-3-small"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = Duration(60 * time.Second)
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = 3
	}
	if c.Backend.RetryBackoff == 0 {
		c.Backend.RetryBackoff = Duration(2 * time.Second)
	}
	if c.Scheduler.Cooldown == 0 {
		c.Scheduler.Cooldown = 1
	}
	if c.Scheduler.SessionTTL == 0 {
		c.Scheduler.SessionTTL = Duration(30 * time.Minute)
	}
	if c.Analysis.MinTurns == 0 {
		c.Analysis.MinTurns = 3
	}
	if c.Analysis.MinAlphaWindow == 0 {
		c.Analysis.MinAlphaWindow = 16
	}
	if c.Analysis.CoherenceWindow == 0 {
		c.Analysis.CoherenceWindow = 5
	}
	if c.Analysis.LockedShare == 0 {
		c.Analysis.LockedShare = 0.8
	}
	if c.Analysis.BreathingShare == 0 {
		c.Analysis.BreathingShare = 0.6
	}
	zero := Thresholds{}
	if c.Analysis.Thresholds == zero {
		c.Analysis.Thresholds = DefaultThresholds()
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q must be sqlite or mysql", c.DB.Driver))
	}
	if c.Backend.Provider != "openai" && c.Backend.Provider != "mock" {
		errs = append(errs, fmt.Sprintf("backend.provider %q must be openai or mock", c.Backend.Provider))
	}
	if len(c.Agents) == 0 {
		errs = append(errs, "at least one agent is required")
	}
	seen := make(map[string]bool)
	for i, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("agents[%d].id is required", i))
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("agents[%d].id %q is duplicated", i, a.ID))
		}
		seen[a.ID] = true
		if a.ID == "human" || a.ID == "system" {
			errs = append(errs, fmt.Sprintf("agents[%d].id %q is reserved", i, a.ID))
		}
		for name, v := range map[string]float64{
			"curiosity":     a.Traits.Curiosity,
			"agreeableness": a.Traits.Agreeableness,
			"assertiveness": a.Traits.Assertiveness,
			"abstraction":   a.Traits.Abstraction,
			"volatility":    a.Traits.Volatility,
		} {
			if v < 0 || v > 1 {
				errs = append(errs, fmt.Sprintf("agents[%d].traits.%s = %v out of [0,1]", i, name, v))
			}
		}
	}
	if c.Analysis.LockedShare <= c.Analysis.BreathingShare {
		errs = append(errs, "analysis.locked_share must exceed analysis.breathing_share")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
