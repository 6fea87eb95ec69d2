// Package config loads the session server's YAML configuration, mirroring
// the teacher's internal/config package: a Default* literal overlaid by an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the session server (cmd/server).
type Server struct {
	// Network (spec §6.3).
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	Backlog     int    `yaml:"backlog"`

	// Protocol framing (spec §4.1).
	MaxFrameBytes int `yaml:"max_frame_bytes"`

	// Timeouts (spec §5).
	ReadIdleTimeout time.Duration `yaml:"read_idle_timeout"`
	SilenceTimeout  time.Duration `yaml:"silence_timeout"`

	// Reaper (spec §4.3.4).
	ReaperInterval time.Duration `yaml:"reaper_interval"`
	ReaperDeadline time.Duration `yaml:"reaper_deadline"`

	// Room defaults (spec §3, §4.2.3, §4.2.4).
	DefaultMoveTimeLimit time.Duration `yaml:"default_move_time_limit"`
	DefaultPauseTokens   int           `yaml:"default_pause_tokens"`
	DefaultPauseCap      time.Duration `yaml:"default_pause_cap"`

	// Keepalive (spec §4.4.3), informational on the server side (the server
	// does not itself send pings; this documents the cadence clients use so
	// operators can size ReaperDeadline sensibly against it).
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// Logging (§10.1 of SPEC_FULL.md).
	LogLevel string `yaml:"log_level"`

	// Resource stats logger (§11.5 of SPEC_FULL.md).
	StatsInterval time.Duration `yaml:"stats_interval"`

	// Match-history archive (§11.6 of SPEC_FULL.md). Optional: the archive
	// is off unless Database.Enabled is set, and if the database is
	// unreachable at startup it is disabled and a warning is logged.
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the optional
// match-history archive.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	MaxConns int32 `yaml:"max_conns"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
	if d.MaxConns > 0 {
		base += fmt.Sprintf("&pool_max_conns=%d", d.MaxConns)
	}
	return base
}

// DefaultServer returns Server config with the defaults named throughout
// spec.md.
func DefaultServer() Server {
	return Server{
		BindAddress:          "0.0.0.0",
		Port:                 12345,
		Backlog:              10,
		MaxFrameBytes:        64 * 1024,
		ReadIdleTimeout:      30 * time.Second,
		SilenceTimeout:       60 * time.Second,
		ReaperInterval:       30 * time.Second,
		ReaperDeadline:       90 * time.Second,
		DefaultMoveTimeLimit: 30 * time.Second,
		DefaultPauseTokens:   2,
		DefaultPauseCap:      30 * time.Second,
		KeepaliveInterval:    30 * time.Second,
		LogLevel:             "info",
		StatsInterval:        60 * time.Second,
		Database: DatabaseConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "gomokusrv",
			Password: "gomokusrv",
			DBName:  "gomokusrv",
			SSLMode: "disable",
		},
	}
}

// LoadServer loads the session server config from a YAML file. If the file
// doesn't exist, defaults are returned unchanged.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
