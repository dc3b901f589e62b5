// Package config loads and validates the orchestrator/worker process
// configuration: one YAML document (with $include support) holding the
// server, database, auth, LLM provider, scheduler, and logging sections.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the root configuration for both cmd/orchestrator and cmd/worker.
// Each binary reads only the sections it needs; unused sections are simply
// left at their defaults.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Worker    WorkerConfig    `yaml:"worker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// NotifierConfig configures the human_approval Slack side-channel.
type NotifierConfig struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	// ApprovalChannel is the Slack channel or user ID human_approval
	// notifications post to. Left empty, the Slack client is still built
	// (if SlackBotToken is set) but every notification is routed nowhere
	// and notifyIfWaitingApproval's post call fails harmlessly and is
	// logged.
	ApprovalChannel string `yaml:"approval_channel"`
}

type TelemetryConfig struct {
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	EnableInsecure bool    `yaml:"enable_insecure"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (resolving $include directives and expanding
// ${ENV_VAR} references), applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad calls Load and exits the process on failure, for use in
// cmd/orchestrator and cmd/worker's main() before a logger exists to report
// the error through.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)

	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = 15 * time.Minute
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	applyLLMDefaults(&cfg.LLM)
	applyWorkerDefaults(&cfg.Worker)
	applyRateLimitDefaults(&cfg.RateLimit)
}

func validateConfig(cfg *Config) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if err := validateLLMConfig(&cfg.LLM); err != nil {
		return err
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", cfg.Logging.Format)
	}
	return nil
}
