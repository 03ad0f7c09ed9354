// Package receipts archives a JSON receipt for every created deployment so
// operators can see exactly what was sent, independent of backend retention.
package receipts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/objectstore"
)

const contentType = "application/json"

type Target struct {
	Mode       domain.TargetMode `json:"mode"`
	DeviceIDs  []string          `json:"device_ids,omitempty"`
	ThingGroup string            `json:"thing_group,omitempty"`
}

type Receipt struct {
	DeploymentID    string                         `json:"deployment_id"`
	UseCaseID       string                         `json:"usecase_id"`
	DeploymentName  string                         `json:"deployment_name,omitempty"`
	SessionID       string                         `json:"session_id,omitempty"`
	Actor           string                         `json:"actor"`
	RequestID       string                         `json:"request_id,omitempty"`
	Components      []domain.ComponentRef          `json:"components"`
	Target          Target                         `json:"target"`
	Rollout         domain.RolloutConfig           `json:"rollout_config"`
	AutoIncluded    []domain.AutoIncludedComponent `json:"auto_included,omitempty"`
	SubmittedAt     time.Time                      `json:"submitted_at"`
	IntegritySHA256 string                         `json:"integrity_sha256"`
}

// Archive writes receipts to one bucket under "<usecase>/<deployment>.json".
type Archive struct {
	logger  *slog.Logger
	store   objectstore.Store
	bucket  string
	timeout time.Duration
	now     func() time.Time
}

func NewArchive(logger *slog.Logger, store objectstore.Store, bucket string) (*Archive, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Archive{
		logger:  logger,
		store:   store,
		bucket:  bucket,
		timeout: 30 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func Key(useCaseID, deploymentID string) string {
	return fmt.Sprintf("%s/%s.json", strings.TrimSpace(useCaseID), strings.TrimSpace(deploymentID))
}

// SubmissionFinished stores a receipt for successful submissions. Failed
// attempts created nothing and are left to the audit log.
func (a *Archive) SubmissionFinished(ctx context.Context, report domain.SubmissionReport) {
	if report.DeploymentID == "" || report.Error != "" {
		return
	}
	if _, err := a.Put(ctx, report); err != nil && a.logger != nil {
		a.logger.Warn("receipt archive failed", "component", "receipts", "deployment_id", report.DeploymentID, "error", err)
	}
}

func (a *Archive) Put(ctx context.Context, report domain.SubmissionReport) (Receipt, error) {
	rec := Receipt{
		DeploymentID:   report.DeploymentID,
		UseCaseID:      report.Request.UseCaseID,
		DeploymentName: report.Request.DeploymentName,
		SessionID:      report.SessionID,
		Actor:          report.Actor,
		RequestID:      report.RequestID,
		Components:     report.Request.Components,
		Target:         receiptTarget(report.Request.Target),
		Rollout:        report.Request.Rollout,
		AutoIncluded:   report.AutoIncluded,
		SubmittedAt:    a.now(),
	}
	sum, err := integrity(rec)
	if err != nil {
		return Receipt{}, err
	}
	rec.IntegritySHA256 = sum

	blob, err := json.Marshal(rec)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal receipt: %w", err)
	}
	putCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.store.Put(putCtx, a.bucket, Key(rec.UseCaseID, rec.DeploymentID), bytes.NewReader(blob), int64(len(blob)), contentType); err != nil {
		return Receipt{}, fmt.Errorf("put receipt: %w", err)
	}
	return rec, nil
}

// Get reads a stored receipt back. Missing receipts are domain.ErrNotFound.
func (a *Archive) Get(ctx context.Context, useCaseID, deploymentID string) (Receipt, error) {
	body, _, err := a.store.Get(ctx, a.bucket, Key(useCaseID, deploymentID))
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return Receipt{}, fmt.Errorf("receipt %s: %w", deploymentID, domain.ErrNotFound)
		}
		return Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	defer body.Close()

	blob, err := io.ReadAll(body)
	if err != nil {
		return Receipt{}, fmt.Errorf("read receipt: %w", err)
	}
	var rec Receipt
	if err := json.Unmarshal(blob, &rec); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return rec, nil
}

// Verify recomputes the integrity hash of a receipt.
func Verify(rec Receipt) (bool, error) {
	sum, err := integrity(rec)
	if err != nil {
		return false, err
	}
	return sum == rec.IntegritySHA256, nil
}

func integrity(rec Receipt) (string, error) {
	rec.IntegritySHA256 = ""
	rec.SubmittedAt = rec.SubmittedAt.UTC()
	blob, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

func receiptTarget(t domain.Target) Target {
	switch v := t.(type) {
	case domain.DevicesTarget:
		return Target{Mode: domain.TargetModeDevices, DeviceIDs: append([]string(nil), v.DeviceIDs...)}
	case domain.ThingGroupTarget:
		return Target{Mode: domain.TargetModeThingGroup, ThingGroup: v.Name}
	default:
		return Target{}
	}
}
