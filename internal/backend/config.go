package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edgecv/fleet-console/internal/platform/env"
)

type Config struct {
	BaseURL           string        `validate:"required,url"`
	Timeout           time.Duration `validate:"gt=0"`
	RequestsPerSecond float64       `validate:"gt=0"`
	Burst             int           `validate:"gte=1"`
	UserAgent         string
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("BACKEND_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	rps, err := env.Float("BACKEND_RATE_LIMIT_RPS", 10)
	if err != nil {
		return Config{}, err
	}
	burst, err := env.Int("BACKEND_RATE_LIMIT_BURST", 20)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		BaseURL:           strings.TrimRight(strings.TrimSpace(env.String("BACKEND_URL", "http://localhost:8080/api")), "/"),
		Timeout:           timeout,
		RequestsPerSecond: rps,
		Burst:             burst,
		UserAgent:         env.String("BACKEND_USER_AGENT", "fleet-console"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateTargetExclusive, createDeploymentPayload{})
	return v
}

// validateTargetExclusive enforces that exactly one target field is sent.
func validateTargetExclusive(sl validator.StructLevel) {
	p := sl.Current().Interface().(createDeploymentPayload)
	hasDevices := len(p.TargetDevices) > 0
	hasGroup := p.TargetThingGroup != nil && strings.TrimSpace(*p.TargetThingGroup) != ""
	if hasDevices == hasGroup {
		sl.ReportError(p.TargetDevices, "TargetDevices", "target_devices", "exactly_one_target", "")
	}
}
