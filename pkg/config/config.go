// Package config loads AppConfig from a JSON file, then overlays
// environment variables on top, mirroring the teacher's ConfigLoader split
// into file and env backends (spec.md §6, §9: config is read once at
// startup, no hot-reload).
package config

import (
	"context"

	"github.com/icecake0141/nwrunner/pkg/logger"
)

// ConfigLoader reads configuration into dst. Implementations are pure I/O;
// neither one validates or defaults the result.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// WorkerMode selects which DeviceWorker implementation the server wires up.
type WorkerMode string

const (
	WorkerModeSSH       WorkerMode = "ssh"
	WorkerModeSimulated WorkerMode = "simulated"
)

// ValidatorMode selects which importer.ConnectionValidator the server uses.
type ValidatorMode string

const (
	ValidatorModeTCP       ValidatorMode = "tcp"
	ValidatorModeSimulated ValidatorMode = "simulated"
)

// AppConfig is the full configuration surface for nwrunnerd, loadable from
// nwrunner.json and overridable by the NWRUNNER_* environment variables
// named in spec.md §6.
type AppConfig struct {
	ListenAddr         string        `json:"listen_addr"`
	HistoryLimit       int           `json:"history_limit"`
	WorkerMode         WorkerMode    `json:"worker_mode"`
	ValidatorMode      ValidatorMode `json:"validator_mode"`
	SimulatedDelayMs   int           `json:"simulated_delay_ms"`
	APIKey             string        `json:"api_key"`
	CORSAllowedOrigins []string      `json:"cors_allowed_origins"`
	NATSURL            string        `json:"nats_url"` // empty disables the mirror
	Logger             logger.Config `json:"logger"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() AppConfig {
	return AppConfig{
		ListenAddr:    ":8088",
		HistoryLimit:  200,
		WorkerMode:    WorkerModeSimulated,
		ValidatorMode: ValidatorModeSimulated,
		Logger:        logger.Config{Level: "info"},
	}
}

// Load reads path (if it exists) with FileConfigLoader, then applies
// NWRUNNER_*-prefixed environment overrides with EnvConfigLoader, mirroring
// the teacher's file-then-env precedence (env wins).
func Load(ctx context.Context, path string, log logger.Logger) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		fileLoader := &FileConfigLoader{logger: log}
		if err := fileLoader.Load(ctx, path, &cfg); err != nil {
			return AppConfig{}, err
		}
	}

	envLoader := NewEnvConfigLoader(log, "NWRUNNER_")
	if err := envLoader.Load(ctx, "", &cfg); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}
