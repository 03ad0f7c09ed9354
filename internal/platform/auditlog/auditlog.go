package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Event is one row of the deployment audit trail. UseCaseID and SessionID
// are stored in their own columns so a use case's history can be queried
// without opening the payload.
type Event struct {
	OccurredAt   time.Time `validate:"required"`
	Actor        string    `validate:"required"`
	Action       string    `validate:"required,oneof=deployment.submitted deployment.submit_failed"`
	ResourceType string    `validate:"required,oneof=deployment deployment_session"`
	ResourceID   string    `validate:"required"`
	UseCaseID    string
	SessionID    string
	RequestID    string
	Outcome      string `validate:"required"`
	Payload      any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS deployment_audit (
	event_id BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	usecase_id TEXT,
	session_id TEXT,
	request_id TEXT,
	outcome TEXT NOT NULL,
	payload JSONB NOT NULL,
	integrity_sha256 TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS deployment_audit_usecase_idx ON deployment_audit (usecase_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS deployment_audit_resource_idx ON deployment_audit (resource_type, resource_id)`,
}

// EnsureSchema creates the audit table and its indexes when missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	if db == nil {
		return errors.New("execer is required")
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure deployment_audit: %w", err)
		}
	}
	return nil
}

var validate = validator.New()

func (e Event) normalized() Event {
	e.OccurredAt = e.OccurredAt.UTC()
	e.Actor = strings.TrimSpace(e.Actor)
	e.Action = strings.TrimSpace(e.Action)
	e.ResourceType = strings.TrimSpace(e.ResourceType)
	e.ResourceID = strings.TrimSpace(e.ResourceID)
	e.UseCaseID = strings.TrimSpace(e.UseCaseID)
	e.SessionID = strings.TrimSpace(e.SessionID)
	e.RequestID = strings.TrimSpace(e.RequestID)
	e.Outcome = strings.TrimSpace(e.Outcome)
	return e
}

func (e Event) Validate() error {
	if err := validate.Struct(e.normalized()); err != nil {
		return fmt.Errorf("audit event: %w", err)
	}
	return nil
}

// Insert stores event and returns its id. A zero OccurredAt is stamped with
// the current time.
func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event = event.normalized()
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO deployment_audit (
			occurred_at,
			actor,
			action,
			resource_type,
			resource_id,
			usecase_id,
			session_id,
			request_id,
			outcome,
			payload,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING event_id`,
		event.OccurredAt,
		event.Actor,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		nullable(event.UseCaseID),
		nullable(event.SessionID),
		nullable(event.RequestID),
		event.Outcome,
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ComputeIntegritySHA256 hashes the stored columns and the payload so a row
// edited after insert can be detected.
func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	event = event.normalized()
	blob, err := json.Marshal(struct {
		OccurredAt   time.Time       `json:"occurred_at"`
		Actor        string          `json:"actor"`
		Action       string          `json:"action"`
		ResourceType string          `json:"resource_type"`
		ResourceID   string          `json:"resource_id"`
		UseCaseID    string          `json:"usecase_id,omitempty"`
		SessionID    string          `json:"session_id,omitempty"`
		RequestID    string          `json:"request_id,omitempty"`
		Outcome      string          `json:"outcome"`
		Payload      json.RawMessage `json:"payload"`
	}{
		OccurredAt:   event.OccurredAt,
		Actor:        event.Actor,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		UseCaseID:    event.UseCaseID,
		SessionID:    event.SessionID,
		RequestID:    event.RequestID,
		Outcome:      event.Outcome,
		Payload:      payloadJSON,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
