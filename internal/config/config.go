package config

import (
	"github.com/lunahq/orbiter/pkg/memory"
	"github.com/lunahq/orbiter/pkg/routing"
)

// Config is the daemon configuration.
type Config struct {
	// DataDir roots all persisted state (history, curated memory,
	// snapshots, job store, logs).
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	ProjectID string `json:"project_id" mapstructure:"project_id"`

	Routing routing.Config `json:"routing" mapstructure:"routing"`

	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	Schedule ScheduleConfig `json:"schedule" mapstructure:"schedule"`

	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// MemoryConfig holds the observation store location, promotion policy and
// compaction bounds.
type MemoryConfig struct {
	Dir         string                    `json:"dir" mapstructure:"dir"`
	Promotion   memory.PromotionPolicy    `json:"promotion" mapstructure:"promotion"`
	Compression memory.CompressionOptions `json:"compression" mapstructure:"compression"`
}

// ScheduleConfig holds the polling registry settings.
type ScheduleConfig struct {
	StorePath       string `json:"store_path" mapstructure:"store_path"`
	CompressionSpec string `json:"compression_spec" mapstructure:"compression_spec"`
}

// AgentConfig describes the opaque agent capability: a command invoked per
// message with the prompt on stdin and the response on stdout.
type AgentConfig struct {
	Command        []string `json:"command" mapstructure:"command"`
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LoggingConfig holds daemon log settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSizeMB int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig controls the prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with defaults applied. Path-valued fields
// that depend on DataDir are resolved by the loader.
func DefaultConfig() *Config {
	return &Config{
		ProjectID: "default",
		Routing: routing.Config{
			CommentChannel: "comments",
		},
		Memory: MemoryConfig{
			Promotion: memory.DefaultPromotionPolicy(),
			Compression: memory.CompressionOptions{
				MaxLines:      2000,
				MaxBytes:      2 << 20,
				MinAgeMinutes: 60,
				KeepLastLines: 500,
			},
		},
		Schedule: ScheduleConfig{
			CompressionSpec: "@every 15m",
		},
		Agent: AgentConfig{
			TimeoutSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
			MaxSizeMB: 100,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9189",
		},
	}
}
