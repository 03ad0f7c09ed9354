package domain

import "time"

// DeploymentRequest is what one submission sends. Build it with
// NewDeploymentRequest; it is not mutated after submission.
type DeploymentRequest struct {
	UseCaseID      string
	DeploymentName string
	Components     []ComponentRef
	Target         Target
	Rollout        RolloutConfig
}

// NewDeploymentRequest copies selections into name+version refs. The scope
// of each selection is not part of the request.
func NewDeploymentRequest(useCaseID, name string, selections []ComponentSelection, target Target, rollout RolloutConfig) DeploymentRequest {
	refs := make([]ComponentRef, 0, len(selections))
	for _, s := range selections {
		refs = append(refs, ComponentRef{
			ComponentName:    s.ComponentName,
			ComponentVersion: s.ComponentVersion,
		})
	}
	return DeploymentRequest{
		UseCaseID:      useCaseID,
		DeploymentName: name,
		Components:     refs,
		Target:         target,
		Rollout:        rollout,
	}
}

// CreateDeploymentResult is the backend's immediate answer to a submission.
type CreateDeploymentResult struct {
	DeploymentID string
	AutoIncluded []AutoIncludedComponent
}

// DeploymentRecord is the backend's view of a deployment. Outcomes maps a
// device id (or component name) to the raw status it reported.
type DeploymentRecord struct {
	DeploymentID     string
	DeploymentName   string
	UseCaseID        string
	TargetDevices    []string
	TargetThingGroup string
	Outcomes         map[string]string
	Status           string
	CreatedAt        time.Time
	CompletedAt      *time.Time
	AutoIncluded     []AutoIncludedComponent
}
