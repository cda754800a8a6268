package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mossriver/alphacouncil/internal/producer"
)

// PhaseConfig names one orchestrator phase and the producers it runs
// concurrently. Phases execute in list order.
type PhaseConfig struct {
	Name      string   `yaml:"name"`
	Producers []string `yaml:"producers"`
}

// PipelineConfig shapes the workflow orchestrator.
type PipelineConfig struct {
	ProducerTimeout time.Duration `yaml:"producer_timeout"`
	Phases          []PhaseConfig `yaml:"phases"`
	RiskProducer    string        `yaml:"risk_producer"`
}

// SizingConfig holds the Kelly sizer knobs.
type SizingConfig struct {
	PortfolioValue       float64 `yaml:"portfolio_value"`
	KellySafetyFraction  float64 `yaml:"kelly_safety_fraction"`
	MaxPositionPct       float64 `yaml:"max_position_pct"`
	ActionableConfidence float64 `yaml:"actionable_confidence"`
	ApprovalFraction     float64 `yaml:"approval_fraction"`
	ApprovalMinEdge      float64 `yaml:"approval_min_edge"`
	PrimarySymbol        string  `yaml:"primary_symbol"`
	SecondarySymbol      string  `yaml:"secondary_symbol"`
}

// LearningConfig holds the learning loop knobs.
type LearningConfig struct {
	LookbackDays   int     `yaml:"lookback_days"`
	MinPredictions int     `yaml:"min_predictions"`
	AdjustmentRate float64 `yaml:"adjustment_rate"`
	Benchmark      string  `yaml:"benchmark"`
}

// StorageConfig points at the persistence and cache backends. Empty values
// select in-memory fallbacks.
type StorageConfig struct {
	PostgresDSN  string        `yaml:"postgres_dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisDB      int           `yaml:"redis_db"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// MarketConfig points at the market data provider.
type MarketConfig struct {
	QuoteURL     string        `yaml:"quote_url"`
	StreamURL    string        `yaml:"stream_url"`
	Symbols      []string      `yaml:"symbols"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ForecastConfig points at the external forecast service backing the
// remote producers.
type ForecastConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RiskConfig holds the book and tolerances the risk producer assesses.
type RiskConfig struct {
	Limits    producer.RiskLimits        `yaml:"limits"`
	Portfolio producer.PortfolioSnapshot `yaml:"portfolio"`
}

// SynthesisConfig points at the narrative synthesis service.
type SynthesisConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig shapes the read-only status server.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the full application configuration.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Learning  LearningConfig  `yaml:"learning"`
	Storage   StorageConfig   `yaml:"storage"`
	Market    MarketConfig    `yaml:"market"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Risk      RiskConfig      `yaml:"risk"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// Default returns the compiled-in configuration. Every knob here has a
// working value so a missing config file is never an error.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			ProducerTimeout: 90 * time.Second,
			Phases: []PhaseConfig{
				{Name: "data_gathering", Producers: []string{"macro", "geopolitical", "commodities"}},
				{Name: "analysis", Producers: []string{"sentiment", "fundamentals", "technical"}},
				{Name: "alpha_discovery", Producers: []string{"alternative_data", "cross_asset", "event_driven"}},
			},
			RiskProducer: "risk",
		},
		Sizing: SizingConfig{
			PortfolioValue:       100000.0,
			KellySafetyFraction:  0.5,
			MaxPositionPct:       0.25,
			ActionableConfidence: 0.6,
			ApprovalFraction:     0.15,
			ApprovalMinEdge:      0.02,
			PrimarySymbol:        "SPY",
			SecondarySymbol:      "QQQ",
		},
		Learning: LearningConfig{
			LookbackDays:   90,
			MinPredictions: 10,
			AdjustmentRate: 0.1,
			Benchmark:      "SPY",
		},
		Storage: StorageConfig{
			QueryTimeout: 5 * time.Second,
			CacheTTL:     time.Hour,
		},
		Market: MarketConfig{
			Symbols:      []string{"SPY", "QQQ", "IWM", "TLT", "GLD"},
			RateLimitRPS: 5,
			Timeout:      15 * time.Second,
		},
		Forecast: ForecastConfig{
			Timeout: 60 * time.Second,
		},
		Risk: RiskConfig{
			Limits: producer.DefaultRiskLimits(),
		},
		Synthesis: SynthesisConfig{
			Timeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads the YAML config at path, layered over defaults. A missing
// file returns the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.ProducerTimeout <= 0 {
		return fmt.Errorf("pipeline.producer_timeout must be positive")
	}
	if len(c.Pipeline.Phases) == 0 {
		return fmt.Errorf("pipeline.phases must not be empty")
	}
	seen := make(map[string]string)
	for _, phase := range c.Pipeline.Phases {
		if phase.Name == "" {
			return fmt.Errorf("pipeline phase with empty name")
		}
		for _, id := range phase.Producers {
			if prior, ok := seen[id]; ok {
				return fmt.Errorf("producer %q appears in phases %q and %q; a producer may run in at most one phase", id, prior, phase.Name)
			}
			seen[id] = phase.Name
		}
	}
	if c.Pipeline.RiskProducer == "" {
		return fmt.Errorf("pipeline.risk_producer must be set")
	}
	if prior, ok := seen[c.Pipeline.RiskProducer]; ok {
		return fmt.Errorf("risk producer %q also appears in phase %q", c.Pipeline.RiskProducer, prior)
	}
	if c.Sizing.KellySafetyFraction <= 0 || c.Sizing.KellySafetyFraction > 1 {
		return fmt.Errorf("sizing.kelly_safety_fraction must be in (0, 1]")
	}
	if c.Sizing.MaxPositionPct <= 0 || c.Sizing.MaxPositionPct > 1 {
		return fmt.Errorf("sizing.max_position_pct must be in (0, 1]")
	}
	if c.Learning.MinPredictions < 1 {
		return fmt.Errorf("learning.min_predictions must be at least 1")
	}
	return nil
}
