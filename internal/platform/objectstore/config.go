package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edgecv/fleet-console/internal/platform/env"
)

// Config describes the optional receipts store. An empty endpoint disables it.
type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketReceipts string
	Versioning     bool
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("CONSOLE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	versioning, err := env.Bool("CONSOLE_MINIO_RECEIPTS_VERSIONING", true)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       strings.TrimSpace(env.String("CONSOLE_MINIO_ENDPOINT", "")),
		AccessKey:      env.String("CONSOLE_MINIO_ACCESS_KEY", ""),
		SecretKey:      env.String("CONSOLE_MINIO_SECRET_KEY", ""),
		Region:         env.String("CONSOLE_MINIO_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketReceipts: env.String("CONSOLE_MINIO_BUCKET_RECEIPTS", "deployment-receipts"),
		Versioning:     versioning,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketReceipts) == "" {
		return errors.New("receipts bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
