package orchestration

import (
	"fmt"

	"github.com/edgecv/fleet-console/internal/domain"
)

// Progress counts devices that reported success out of the deployment's
// target devices. NoDevices is set instead of dividing by zero.
type Progress struct {
	Succeeded int  `json:"succeeded" yaml:"succeeded"`
	Total     int  `json:"total" yaml:"total"`
	NoDevices bool `json:"no_devices" yaml:"no_devices"`
}

func (p Progress) Fraction() float64 {
	if p.NoDevices || p.Total == 0 {
		return 0
	}
	return float64(p.Succeeded) / float64(p.Total)
}

func (p Progress) String() string {
	if p.NoDevices {
		return "no devices"
	}
	return fmt.Sprintf("%d/%d", p.Succeeded, p.Total)
}

// ComputeProgress uses the explicit target devices when the record has them
// and otherwise every entity in the outcome map.
func ComputeProgress(rec domain.DeploymentRecord) Progress {
	if len(rec.TargetDevices) > 0 {
		seen := make(map[string]struct{}, len(rec.TargetDevices))
		succeeded := 0
		for _, id := range rec.TargetDevices {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if domain.DeviceSucceeded(rec.Outcomes[id]) {
				succeeded++
			}
		}
		return Progress{Succeeded: succeeded, Total: len(seen)}
	}
	if len(rec.Outcomes) == 0 {
		return Progress{NoDevices: true}
	}
	succeeded := 0
	for _, raw := range rec.Outcomes {
		if domain.DeviceSucceeded(raw) {
			succeeded++
		}
	}
	return Progress{Succeeded: succeeded, Total: len(rec.Outcomes)}
}

// DeriveStatus normalizes the record's overall status. Records without one
// are derived from their outcomes: any failure fails the deployment, all
// successes complete it, and anything else is still in progress.
func DeriveStatus(rec domain.DeploymentRecord) domain.Status {
	if rec.Status != "" {
		return domain.NormalizeStatus(rec.Status)
	}
	if len(rec.Outcomes) == 0 {
		return domain.StatusPending
	}
	completed := 0
	for _, raw := range rec.Outcomes {
		switch domain.NormalizeStatus(raw) {
		case domain.StatusFailed:
			return domain.StatusFailed
		case domain.StatusCompleted:
			completed++
		}
	}
	if completed == len(rec.Outcomes) {
		return domain.StatusCompleted
	}
	return domain.StatusInProgress
}

// Summary is the deployment-level view rendered by the console and CLI.
type Summary struct {
	DeploymentID string                         `json:"deployment_id" yaml:"deployment_id"`
	Status       domain.Status                  `json:"status" yaml:"status"`
	RawStatus    string                         `json:"raw_status,omitempty" yaml:"raw_status,omitempty"`
	Severity     domain.Severity                `json:"severity" yaml:"severity"`
	Progress     Progress                       `json:"progress" yaml:"progress"`
	Terminal     bool                           `json:"terminal" yaml:"terminal"`
	AutoIncluded []domain.AutoIncludedComponent `json:"auto_included,omitempty" yaml:"auto_included,omitempty"`
}

func Summarize(rec domain.DeploymentRecord) Summary {
	status := DeriveStatus(rec)
	return Summary{
		DeploymentID: rec.DeploymentID,
		Status:       status,
		RawStatus:    rec.Status,
		Severity:     status.Severity(),
		Progress:     ComputeProgress(rec),
		Terminal:     status.Terminal(),
		AutoIncluded: rec.AutoIncluded,
	}
}
