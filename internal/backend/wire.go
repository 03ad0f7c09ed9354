package backend

import (
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
)

type useCaseJSON struct {
	UseCaseID string `json:"usecase_id"`
	Name      string `json:"name"`
	AccountID string `json:"account_id"`
}

type listUseCasesResponse struct {
	UseCases []useCaseJSON `json:"usecases"`
	Count    int           `json:"count"`
}

type componentJSON struct {
	ComponentName string `json:"component_name"`
	ARN           string `json:"arn"`
	Description   string `json:"description,omitempty"`
	LatestVersion *struct {
		ComponentVersion string `json:"componentVersion"`
	} `json:"latest_version,omitempty"`
}

type listComponentsResponse struct {
	Components []componentJSON `json:"components"`
}

type deviceJSON struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	Platform string `json:"platform,omitempty"`
}

type listDevicesResponse struct {
	Devices []deviceJSON `json:"devices"`
	Count   int          `json:"count"`
}

type rolloutJSON struct {
	AutoRollback   bool `json:"auto_rollback"`
	TimeoutSeconds int  `json:"timeout_seconds" validate:"gt=0"`
}

// createDeploymentPayload carries exactly one of TargetDevices and
// TargetThingGroup; see validateTargetExclusive.
type createDeploymentPayload struct {
	UseCaseID        string                `json:"usecase_id" validate:"required"`
	DeploymentName   string                `json:"deployment_name,omitempty"`
	Components       []domain.ComponentRef `json:"components" validate:"required,min=1,dive"`
	TargetDevices    []string              `json:"target_devices,omitempty" validate:"omitempty,dive,required"`
	TargetThingGroup *string               `json:"target_thing_group,omitempty"`
	RolloutConfig    rolloutJSON           `json:"rollout_config"`
}

type createDeploymentResponse struct {
	DeploymentID string                         `json:"deployment_id"`
	AutoIncluded []domain.AutoIncludedComponent `json:"auto_included,omitempty"`
}

type deploymentJSON struct {
	DeploymentID     string                         `json:"deployment_id"`
	DeploymentName   string                         `json:"deployment_name,omitempty"`
	UseCaseID        string                         `json:"usecase_id,omitempty"`
	TargetDevices    []string                       `json:"target_devices,omitempty"`
	TargetThingGroup string                         `json:"target_thing_group,omitempty"`
	Outcomes         map[string]string              `json:"outcomes,omitempty"`
	Status           string                         `json:"status"`
	CreatedAt        time.Time                      `json:"created_at"`
	CompletedAt      *time.Time                     `json:"completed_at,omitempty"`
	AutoIncluded     []domain.AutoIncludedComponent `json:"auto_included,omitempty"`
}

type listDeploymentsResponse struct {
	Deployments []deploymentJSON `json:"deployments"`
}

type trainingJobJSON struct {
	JobID       string     `json:"job_id"`
	UseCaseID   string     `json:"usecase_id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Message     string     `json:"message,omitempty"`
}

type trainingLogsResponse struct {
	Events    []domain.TrainingLogEvent `json:"events"`
	NextToken string                    `json:"next_token,omitempty"`
}

func payloadFromRequest(req domain.DeploymentRequest) (createDeploymentPayload, error) {
	p := createDeploymentPayload{
		UseCaseID:      req.UseCaseID,
		DeploymentName: req.DeploymentName,
		Components:     append([]domain.ComponentRef(nil), req.Components...),
		RolloutConfig: rolloutJSON{
			AutoRollback:   req.Rollout.AutoRollback,
			TimeoutSeconds: req.Rollout.TimeoutSeconds,
		},
	}
	switch t := req.Target.(type) {
	case domain.DevicesTarget:
		p.TargetDevices = append([]string(nil), t.DeviceIDs...)
	case domain.ThingGroupTarget:
		name := t.Name
		p.TargetThingGroup = &name
	}
	if err := validate.Struct(p); err != nil {
		return createDeploymentPayload{}, err
	}
	return p, nil
}

func (d deploymentJSON) record() domain.DeploymentRecord {
	outcomes := make(map[string]string, len(d.Outcomes))
	for k, v := range d.Outcomes {
		outcomes[k] = v
	}
	return domain.DeploymentRecord{
		DeploymentID:     d.DeploymentID,
		DeploymentName:   d.DeploymentName,
		UseCaseID:        d.UseCaseID,
		TargetDevices:    d.TargetDevices,
		TargetThingGroup: d.TargetThingGroup,
		Outcomes:         outcomes,
		Status:           d.Status,
		CreatedAt:        d.CreatedAt,
		CompletedAt:      d.CompletedAt,
		AutoIncluded:     d.AutoIncluded,
	}
}

func (j trainingJobJSON) job() domain.TrainingJob {
	return domain.TrainingJob{
		JobID:       j.JobID,
		UseCaseID:   j.UseCaseID,
		Name:        j.Name,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
		Message:     j.Message,
	}
}
