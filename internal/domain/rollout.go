package domain

// DefaultTimeoutSeconds is used whenever the per-component update timeout is
// missing or not a positive integer.
const DefaultTimeoutSeconds = 60

type RolloutConfig struct {
	AutoRollback   bool `json:"auto_rollback" yaml:"auto_rollback"`
	TimeoutSeconds int  `json:"timeout_seconds" yaml:"timeout_seconds" validate:"gt=0"`
}

func DefaultRolloutConfig() RolloutConfig {
	return RolloutConfig{AutoRollback: true, TimeoutSeconds: DefaultTimeoutSeconds}
}
