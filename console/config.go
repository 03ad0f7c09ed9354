package main

import (
	"errors"
	"time"

	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/platform/env"
)

type consoleConfig struct {
	SessionTTL             time.Duration
	SessionPruneInterval   time.Duration
	FleetConcurrency       int
	DeploymentPollInterval time.Duration
	StatusPollInterval     time.Duration
	LogTailInterval        time.Duration
	HeartbeatInterval      time.Duration
}

func consoleConfigFromEnv() (consoleConfig, error) {
	var cfg consoleConfig
	var err error
	if cfg.SessionTTL, err = env.Duration("CONSOLE_SESSION_TTL", 30*time.Minute); err != nil {
		return consoleConfig{}, err
	}
	if cfg.SessionPruneInterval, err = env.Duration("CONSOLE_SESSION_PRUNE_INTERVAL", time.Minute); err != nil {
		return consoleConfig{}, err
	}
	if cfg.FleetConcurrency, err = env.Int("CONSOLE_FLEET_CONCURRENCY", 8); err != nil {
		return consoleConfig{}, err
	}
	if cfg.DeploymentPollInterval, err = env.Duration("CONSOLE_DEPLOYMENT_POLL_INTERVAL", orchestration.DeploymentPollInterval); err != nil {
		return consoleConfig{}, err
	}
	if cfg.StatusPollInterval, err = env.Duration("CONSOLE_TRAINING_POLL_INTERVAL", orchestration.DeploymentPollInterval); err != nil {
		return consoleConfig{}, err
	}
	if cfg.LogTailInterval, err = env.Duration("CONSOLE_LOG_TAIL_INTERVAL", orchestration.LogTailInterval); err != nil {
		return consoleConfig{}, err
	}
	if cfg.HeartbeatInterval, err = env.Duration("CONSOLE_SSE_HEARTBEAT", 15*time.Second); err != nil {
		return consoleConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return consoleConfig{}, err
	}
	return cfg, nil
}

func (c consoleConfig) Validate() error {
	if c.SessionTTL <= 0 {
		return errors.New("CONSOLE_SESSION_TTL must be positive")
	}
	if c.SessionPruneInterval <= 0 {
		return errors.New("CONSOLE_SESSION_PRUNE_INTERVAL must be positive")
	}
	if c.FleetConcurrency < 1 {
		return errors.New("CONSOLE_FLEET_CONCURRENCY must be at least 1")
	}
	if c.DeploymentPollInterval <= 0 || c.StatusPollInterval <= 0 || c.LogTailInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("CONSOLE_SSE_HEARTBEAT must be positive")
	}
	return nil
}
