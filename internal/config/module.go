package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Sequence  SequenceConfig  `yaml:"sequence"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	// DSN empty selects the in-memory stores.
	DSN string `yaml:"dsn"`
}

type SchedulerConfig struct {
	// Standard 5-field cron specs, one cadence per sweep.
	WorkflowSweep string `yaml:"workflow_sweep"`
	SequenceSweep string `yaml:"sequence_sweep"`
	Workers       int    `yaml:"workers"`
}

type NotifyConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type ApprovalConfig struct {
	Rules []ApprovalRule `yaml:"rules"`
}

// ApprovalRule maps a monetary floor to the levels that must sign off.
// The highest floor not exceeding the disputed amount wins.
type ApprovalRule struct {
	Amount      float64  `yaml:"amount"`
	Levels      []string `yaml:"levels"`
	ExpiryHours int      `yaml:"expiry_hours"`
	Parallel    bool     `yaml:"parallel"`
}

type SequenceConfig struct {
	MaxStepAttempts int `yaml:"max_step_attempts"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8120,
		},
		Scheduler: SchedulerConfig{
			WorkflowSweep: "*/5 * * * *",
			SequenceSweep: "0 * * * *",
			Workers:       8,
		},
		Notify: NotifyConfig{
			BaseURL: "http://notification-service:8111",
			Timeout: "5s",
		},
		Approval: ApprovalConfig{
			Rules: []ApprovalRule{
				{Amount: 0, Levels: nil},
				{Amount: 50000, Levels: []string{"L1_MANAGER"}, ExpiryHours: 24},
				{Amount: 100000, Levels: []string{"L1_MANAGER", "L2_DIRECTOR"}, ExpiryHours: 48},
				{Amount: 500000, Levels: []string{"L1_MANAGER", "L2_DIRECTOR", "L3_LEGAL"}, ExpiryHours: 72},
				{Amount: 1000000, Levels: []string{"L1_MANAGER", "L2_DIRECTOR", "L3_LEGAL", "L4_CFO"}, ExpiryHours: 96},
			},
		},
		Sequence: SequenceConfig{
			MaxStepAttempts: 5,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("APP_SERVER_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SERVER_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_NOTIFY_BASE_URL")); v != "" {
		cfg.Notify.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_NOTIFY_TIMEOUT")); v != "" {
		cfg.Notify.Timeout = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_WORKFLOW_SWEEP")); v != "" {
		cfg.Scheduler.WorkflowSweep = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SEQUENCE_SWEEP")); v != "" {
		cfg.Scheduler.SequenceSweep = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SCHEDULER_WORKERS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Scheduler.Workers = parsed
		}
	}

	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 8
	}
	if cfg.Sequence.MaxStepAttempts <= 0 {
		cfg.Sequence.MaxStepAttempts = 5
	}

	return cfg, nil
}

func Module(path string) fx.Option {
	return fx.Provide(func() (Config, error) {
		return Load(path)
	})
}
