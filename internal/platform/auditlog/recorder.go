package auditlog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
)

const (
	ActionDeploymentSubmitted    = "deployment.submitted"
	ActionDeploymentSubmitFailed = "deployment.submit_failed"
)

// SubmissionRecorder writes one audit event per finished submission.
type SubmissionRecorder struct {
	DB      QueryRower
	Service string
	Logger  *slog.Logger
	Now     func() time.Time
}

func (r SubmissionRecorder) SubmissionFinished(ctx context.Context, report domain.SubmissionReport) {
	if r.DB == nil {
		return
	}
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	if _, err := Insert(ctx, r.DB, SubmissionEvent(report, r.Service, now)); err != nil {
		if r.Logger != nil && !errors.Is(err, context.Canceled) {
			r.Logger.Warn("audit insert failed", "component", "auditlog", "session_id", report.SessionID, "error", err)
		}
	}
}

// SubmissionEvent maps a submission report to an audit event. Failed
// attempts have no deployment yet and are keyed by session.
func SubmissionEvent(report domain.SubmissionReport, service string, at time.Time) Event {
	actor := strings.TrimSpace(report.Actor)
	if actor == "" {
		actor = "console"
	}
	event := Event{
		OccurredAt: at,
		Actor:      actor,
		UseCaseID:  report.Request.UseCaseID,
		SessionID:  report.SessionID,
		RequestID:  report.RequestID,
		Outcome:    report.Outcome,
	}
	components := make([]string, 0, len(report.Request.Components))
	for _, c := range report.Request.Components {
		components = append(components, c.ComponentName+"@"+c.ComponentVersion)
	}
	payload := map[string]any{
		"service":         service,
		"components":      components,
		"target":          domain.DescribeTarget(report.Request.Target),
		"auto_rollback":   report.Request.Rollout.AutoRollback,
		"timeout_seconds": report.Request.Rollout.TimeoutSeconds,
	}

	if report.Error != "" || report.DeploymentID == "" {
		event.Action = ActionDeploymentSubmitFailed
		event.ResourceType = "deployment_session"
		event.ResourceID = report.SessionID
		if event.ResourceID == "" {
			event.ResourceID = "unknown"
		}
		if event.Outcome == "" {
			event.Outcome = "failed"
		}
		payload["error"] = report.Error
	} else {
		event.Action = ActionDeploymentSubmitted
		event.ResourceType = "deployment"
		event.ResourceID = report.DeploymentID
		if event.Outcome == "" {
			event.Outcome = "succeeded"
		}
		if len(report.AutoIncluded) > 0 {
			auto := make([]string, 0, len(report.AutoIncluded))
			for _, c := range report.AutoIncluded {
				auto = append(auto, c.ComponentName+"@"+c.ComponentVersion)
			}
			payload["auto_included"] = auto
		}
	}
	event.Payload = payload
	return event
}
