package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewMinIOClient builds a client for the receipts endpoint. The store must
// be enabled.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("endpoint is required")
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: receiptTransport(),
	})
}

// EnsureBuckets creates the receipts bucket when missing and, when
// configured, turns on versioning so overwritten receipts stay readable.
func EnsureBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.BucketReceipts)
	if err != nil {
		return fmt.Errorf("receipts bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketReceipts, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return fmt.Errorf("make receipts bucket: %w", err)
		}
	}
	if !cfg.Versioning {
		return nil
	}
	versioning, err := client.GetBucketVersioning(ctx, cfg.BucketReceipts)
	if err != nil {
		return fmt.Errorf("receipts bucket versioning: %w", err)
	}
	if versioning.Enabled() {
		return nil
	}
	if err := client.EnableVersioning(ctx, cfg.BucketReceipts); err != nil {
		return fmt.Errorf("enable receipts versioning: %w", err)
	}
	return nil
}

// CheckBuckets is the readiness probe: the bucket must exist.
func CheckBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	exists, err := client.BucketExists(ctx, cfg.BucketReceipts)
	if err != nil {
		return fmt.Errorf("receipts bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("receipts bucket missing: %s", cfg.BucketReceipts)
	}
	return nil
}

// Receipts are a few KB each and written once per deployment, so the pool
// is small and slow responses fail fast.
func receiptTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
