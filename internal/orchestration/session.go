package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
)

// Session is one deployment-creation flow: the form state plus its
// submitter. Sessions share nothing with each other.
type Session struct {
	ID        string
	CreatedAt time.Time

	submitter *Submitter

	mu             sync.Mutex
	useCaseID      string
	deploymentName string
	form           DeploymentForm
	selection      Selection
	target         TargetResolver
	autoRollback   bool
	timeoutText    string
}

// SessionView is a read-only copy of a session for rendering.
type SessionView struct {
	ID             string                      `json:"session_id"`
	UseCaseID      string                      `json:"usecase_id"`
	DeploymentName string                      `json:"deployment_name,omitempty"`
	Components     []domain.ComponentSelection `json:"components"`
	TargetMode     domain.TargetMode           `json:"target_mode"`
	TargetDevices  []string                    `json:"target_devices"`
	ThingGroup     string                      `json:"target_thing_group"`
	Rollout        domain.RolloutConfig        `json:"rollout_config"`
	TimeoutText    string                      `json:"timeout_text"`
	Submission     SubmitSnapshot              `json:"submission"`
	NavigateTo     string                      `json:"navigate_to,omitempty"`
}

func NewSession(id string, logger *slog.Logger, creator DeploymentCreator, observer SubmissionObserver) *Session {
	defaults := domain.DefaultRolloutConfig()
	return &Session{
		ID:           id,
		CreatedAt:    time.Now().UTC(),
		submitter:    NewSubmitter(logger, creator, observer),
		target:       NewTargetResolver(),
		autoRollback: defaults.AutoRollback,
		timeoutText:  fmt.Sprint(defaults.TimeoutSeconds),
	}
}

// LoadForm selects the use case and the options the user picks from. A
// deep-link ARN, when given, seeds the selection from the private options.
func (s *Session) LoadForm(form DeploymentForm, preselectARN string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useCaseID = form.UseCaseID
	s.form = form
	if preselectARN == "" {
		return false
	}
	return s.selection.Preselect(preselectARN, form.Private)
}

func (s *Session) SetDeploymentName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deploymentName = name
}

// AddComponent adds a loaded catalog option by ARN.
func (s *Session) AddComponent(arn string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.form.Lookup(arn)
	if !ok {
		return false, fmt.Errorf("component %s: %w", arn, domain.ErrNotFound)
	}
	return s.selection.Add(entry), nil
}

func (s *Session) RemoveComponent(arn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Remove(arn)
}

// UpdateTarget switches mode and stores values. Nil values leave the stored
// value of that mode untouched.
func (s *Session) UpdateTarget(mode domain.TargetMode, devices []string, thingGroup *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode != "" {
		s.target.SetMode(mode)
	}
	if devices != nil {
		s.target.SetDevices(devices)
	}
	if thingGroup != nil {
		s.target.SetThingGroup(*thingGroup)
	}
}

// UpdateRollout stores the raw form fields; nil leaves a field unchanged.
func (s *Session) UpdateRollout(autoRollback *bool, timeoutText *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if autoRollback != nil {
		s.autoRollback = *autoRollback
	}
	if timeoutText != nil {
		s.timeoutText = strings.TrimSpace(*timeoutText)
	}
}

// Submit sends the current form. The form is copied first so later edits do
// not affect an in-flight request, and it is kept after a failure.
func (s *Session) Submit(ctx context.Context, meta SubmitMeta) (SubmitSnapshot, error) {
	meta.SessionID = s.ID
	return s.submitter.Submit(ctx, meta, s.draft())
}

func (s *Session) ViewDeployment() (string, error) {
	return s.submitter.ViewDeployment()
}

func (s *Session) DismissError() bool {
	return s.submitter.DismissError()
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	view := SessionView{
		ID:             s.ID,
		UseCaseID:      s.useCaseID,
		DeploymentName: s.deploymentName,
		Components:     s.selection.Items(),
		TargetMode:     s.target.Mode(),
		TargetDevices:  s.target.Devices(),
		ThingGroup:     s.target.ThingGroup(),
		Rollout:        BuildRolloutConfig(s.autoRollback, s.timeoutText),
		TimeoutText:    s.timeoutText,
	}
	s.mu.Unlock()
	view.Submission = s.submitter.Snapshot()
	view.NavigateTo, _ = s.submitter.NavigateTo()
	return view
}

func (s *Session) draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.target
	target.devices = s.target.Devices()
	return Draft{
		UseCaseID:      s.useCaseID,
		DeploymentName: s.deploymentName,
		Selections:     s.selection.Items(),
		Target:         target,
		Rollout:        BuildRolloutConfig(s.autoRollback, s.timeoutText),
	}
}
