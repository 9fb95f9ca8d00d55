// Package config provides configuration types and loading for shopmux.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Master, Store, Supervisor, Reaper, Limits, Health, Alerts, Events.
type Config struct {
	Master     MasterConfig     `json:"master"`
	Store      StoreConfig      `json:"store"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Reaper     ReaperConfig     `json:"reaper"`
	Limits     LimitsConfig     `json:"limits"`
	Health     HealthConfig     `json:"health"`
	Alerts     AlertsConfig     `json:"alerts"`
	Events     EventsConfig     `json:"events"`
}

// ---------------------------------------------------------------------------
// Master – the shared storefront surface
// ---------------------------------------------------------------------------

// MasterConfig configures the master bot surface.
type MasterConfig struct {
	Token string `json:"token" envconfig:"TOKEN"`
	// AdminIDs are the platform operators allowed to use system-admin
	// commands. Everyone else never sees them.
	AdminIDs []int64 `json:"adminIds" envconfig:"ADMIN_IDS"`
	// APIBase overrides the Bot API endpoint, mainly for tests.
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
	// PollTimeout is the long-poll wait passed to the platform.
	PollTimeout time.Duration `json:"pollTimeout" envconfig:"POLL_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Store – record store location
// ---------------------------------------------------------------------------

// StoreConfig configures the SQLite record store.
type StoreConfig struct {
	Path string `json:"path" envconfig:"PATH"`
}

// ---------------------------------------------------------------------------
// Supervisor – worker lifecycle
// ---------------------------------------------------------------------------

// SupervisorConfig configures the worker supervisor.
type SupervisorConfig struct {
	// StopTimeout bounds how long Stop waits for a worker to exit before
	// reporting a cancellation timeout.
	StopTimeout time.Duration `json:"stopTimeout" envconfig:"STOP_TIMEOUT"`
	// RestartDelay is the pause between stop and start during Restart.
	RestartDelay time.Duration `json:"restartDelay" envconfig:"RESTART_DELAY"`
}

// ---------------------------------------------------------------------------
// Reaper – entitlement expiry sweeps
// ---------------------------------------------------------------------------

// ReaperConfig configures the expiry reaper.
type ReaperConfig struct {
	Enabled  bool          `json:"enabled" envconfig:"ENABLED"`
	Interval time.Duration `json:"interval" envconfig:"INTERVAL"`
}

// ---------------------------------------------------------------------------
// Limits – tier gating
// ---------------------------------------------------------------------------

// LimitsConfig contains tier limits.
type LimitsConfig struct {
	// FreeProducts is the product cap for standard-tier tenants.
	FreeProducts int `json:"freeProducts" envconfig:"FREE_PRODUCTS"`
	// GrantMonth is the entitlement extension unit used by grants and
	// upgrades.
	GrantMonth time.Duration `json:"grantMonth" envconfig:"GRANT_MONTH"`
}

// ---------------------------------------------------------------------------
// Health – liveness endpoint
// ---------------------------------------------------------------------------

// HealthConfig configures the liveness HTTP responder.
type HealthConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Host    string `json:"host" envconfig:"HOST"`
	Port    int    `json:"port" envconfig:"PORT"`
}

// ---------------------------------------------------------------------------
// Alerts – ops notifications via Slack
// ---------------------------------------------------------------------------

// AlertsConfig configures the optional Slack ops notifier.
type AlertsConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"ENABLED"`
	SlackToken   string `json:"slackToken" envconfig:"SLACK_TOKEN"`
	SlackChannel string `json:"slackChannel" envconfig:"SLACK_CHANNEL"`
}

// ---------------------------------------------------------------------------
// Events – lifecycle publishing via Kafka
// ---------------------------------------------------------------------------

// EventsConfig configures the optional Kafka lifecycle publisher.
type EventsConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers string `json:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string `json:"topic" envconfig:"KAFKA_TOPIC"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Master: MasterConfig{
			PollTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: "~/.shopmux/shopmux.db",
		},
		Supervisor: SupervisorConfig{
			StopTimeout:  10 * time.Second,
			RestartDelay: time.Second,
		},
		Reaper: ReaperConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
		},
		Limits: LimitsConfig{
			FreeProducts: 2,
			GrantMonth:   30 * 24 * time.Hour,
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    "127.0.0.1", // Secure default
			Port:    18690,
		},
		Alerts: AlertsConfig{
			Enabled: false,
		},
		Events: EventsConfig{
			Enabled: false,
			Topic:   "shopmux.lifecycle",
		},
	}
}
