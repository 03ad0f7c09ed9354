package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/metrics"
)

// SubmitState is the lifecycle of one deployment-creation session.
type SubmitState string

const (
	StateIdle                        SubmitState = "idle"
	StateSubmitting                  SubmitState = "submitting"
	StateSucceeded                   SubmitState = "succeeded"
	StateSucceededWithAutoInclusions SubmitState = "succeeded_with_auto_inclusions"
	StateFailed                      SubmitState = "failed"
)

// FallbackSubmitError is shown when a failure carries no message.
const FallbackSubmitError = "Failed to create deployment"

var submitTransitions = map[SubmitState][]SubmitState{
	StateIdle:                        {StateSubmitting},
	StateSubmitting:                  {StateSucceeded, StateSucceededWithAutoInclusions, StateFailed},
	StateFailed:                      {StateSubmitting, StateIdle},
	StateSucceeded:                   {},
	StateSucceededWithAutoInclusions: {},
}

func canTransition(from, to SubmitState) bool {
	for _, candidate := range submitTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

type DeploymentCreator interface {
	CreateDeployment(ctx context.Context, req domain.DeploymentRequest) (domain.CreateDeploymentResult, error)
}

// SubmissionObserver is told about every finished submission attempt.
// Implementations must not block for long; errors are theirs to log.
type SubmissionObserver interface {
	SubmissionFinished(ctx context.Context, report domain.SubmissionReport)
}

// Observers fans a report out to several observers in order.
type Observers []SubmissionObserver

func (o Observers) SubmissionFinished(ctx context.Context, report domain.SubmissionReport) {
	for _, obs := range o {
		if obs != nil {
			obs.SubmissionFinished(ctx, report)
		}
	}
}

// Draft is the form state a submission is assembled from.
type Draft struct {
	UseCaseID      string
	DeploymentName string
	Selections     []domain.ComponentSelection
	Target         TargetResolver
	Rollout        domain.RolloutConfig
}

// Assemble checks the local preconditions and builds the request. It never
// talks to the backend.
func Assemble(d Draft) (domain.DeploymentRequest, error) {
	useCaseID := strings.TrimSpace(d.UseCaseID)
	if useCaseID == "" {
		return domain.DeploymentRequest{}, invalid("usecase_id", "select a use case")
	}
	if len(d.Selections) == 0 {
		return domain.DeploymentRequest{}, invalid("components", "select at least one component")
	}
	target, err := d.Target.Resolve()
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	rollout := d.Rollout
	if rollout.TimeoutSeconds <= 0 {
		rollout.TimeoutSeconds = domain.DefaultTimeoutSeconds
	}
	return domain.NewDeploymentRequest(useCaseID, strings.TrimSpace(d.DeploymentName), d.Selections, target, rollout), nil
}

// SubmitSnapshot is the externally visible state of a Submitter.
type SubmitSnapshot struct {
	State        SubmitState                    `json:"state"`
	DeploymentID string                         `json:"deployment_id,omitempty"`
	AutoIncluded []domain.AutoIncludedComponent `json:"auto_included,omitempty"`
	Error        string                         `json:"error,omitempty"`
}

// SubmitMeta identifies who submitted, for observers.
type SubmitMeta struct {
	SessionID string
	Actor     string
	RequestID string
}

// Submitter issues at most one create call at a time for its session.
type Submitter struct {
	logger   *slog.Logger
	creator  DeploymentCreator
	observer SubmissionObserver

	mu           sync.Mutex
	state        SubmitState
	deploymentID string
	autoIncluded []domain.AutoIncludedComponent
	errMsg       string
	viewed       bool
}

func NewSubmitter(logger *slog.Logger, creator DeploymentCreator, observer SubmissionObserver) *Submitter {
	if creator == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Submitter{
		logger:   logger,
		creator:  creator,
		observer: observer,
		state:    StateIdle,
	}
}

// Submit validates the draft, creates the deployment and classifies the
// result. Validation failures and re-entrant calls return an error without
// changing state. Backend failures move the submitter to StateFailed and are
// reported through the snapshot, not the error return.
//
// The create call does not observe cancellation of ctx: once submitting has
// begun the caller waits for success or failure.
func (s *Submitter) Submit(ctx context.Context, meta SubmitMeta, draft Draft) (SubmitSnapshot, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return SubmitSnapshot{}, ErrSubmissionInFlight
	case StateSucceeded, StateSucceededWithAutoInclusions:
		s.mu.Unlock()
		return SubmitSnapshot{}, ErrAlreadySubmitted
	}
	req, err := Assemble(draft)
	if err != nil {
		s.mu.Unlock()
		return SubmitSnapshot{}, err
	}
	s.setState(StateSubmitting)
	s.errMsg = ""
	s.mu.Unlock()

	s.logger.Info("submitting deployment",
		"component", "submitter",
		"session_id", meta.SessionID,
		"usecase_id", req.UseCaseID,
		"components", len(req.Components),
		"target", domain.DescribeTarget(req.Target),
		"auto_rollback", req.Rollout.AutoRollback,
		"timeout_seconds", req.Rollout.TimeoutSeconds,
	)

	callCtx := context.WithoutCancel(ctx)
	res, createErr := s.creator.CreateDeployment(callCtx, req)

	s.mu.Lock()
	if createErr != nil {
		s.errMsg = failureMessage(createErr)
		s.setState(StateFailed)
	} else {
		s.deploymentID = res.DeploymentID
		s.autoIncluded = append([]domain.AutoIncludedComponent(nil), res.AutoIncluded...)
		if len(s.autoIncluded) > 0 {
			s.setState(StateSucceededWithAutoInclusions)
		} else {
			s.setState(StateSucceeded)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	metrics.RecordSubmission(string(snap.State))
	if createErr != nil {
		s.logger.Warn("deployment submission failed", "component", "submitter", "session_id", meta.SessionID, "usecase_id", req.UseCaseID, "error", createErr)
	} else {
		s.logger.Info("deployment created", "component", "submitter", "session_id", meta.SessionID, "deployment_id", snap.DeploymentID, "auto_included", len(snap.AutoIncluded))
	}

	if s.observer != nil {
		s.observer.SubmissionFinished(callCtx, domain.SubmissionReport{
			SessionID:    meta.SessionID,
			Actor:        meta.Actor,
			RequestID:    meta.RequestID,
			Request:      req,
			DeploymentID: snap.DeploymentID,
			AutoIncluded: snap.AutoIncluded,
			Outcome:      string(snap.State),
			Error:        snap.Error,
		})
	}
	return snap, nil
}

func (s *Submitter) Snapshot() SubmitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// NavigateTo returns the deployment the caller should open now. After a
// plain success that is immediate; after auto-inclusions the caller must
// first show them and call ViewDeployment.
func (s *Submitter) NavigateTo() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSucceeded:
		return s.deploymentID, true
	case StateSucceededWithAutoInclusions:
		if s.viewed {
			return s.deploymentID, true
		}
	}
	return "", false
}

// ViewDeployment is the explicit "view deployment" action.
func (s *Submitter) ViewDeployment() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSucceeded, StateSucceededWithAutoInclusions:
		s.viewed = true
		return s.deploymentID, nil
	default:
		return "", fmt.Errorf("no deployment to view in state %s", s.state)
	}
}

// DismissError clears a failure so the form shows no error banner. Form
// values are owned by the caller and stay as they were.
func (s *Submitter) DismissError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailed {
		return false
	}
	s.setState(StateIdle)
	s.errMsg = ""
	return true
}

func (s *Submitter) setState(to SubmitState) {
	if !canTransition(s.state, to) {
		panic(fmt.Sprintf("submitter: transition %s -> %s not allowed", s.state, to))
	}
	s.state = to
}

func (s *Submitter) snapshotLocked() SubmitSnapshot {
	return SubmitSnapshot{
		State:        s.state,
		DeploymentID: s.deploymentID,
		AutoIncluded: append([]domain.AutoIncludedComponent(nil), s.autoIncluded...),
		Error:        s.errMsg,
	}
}

// userMessager is implemented by errors that carry text meant for the
// user, such as a backend error body. An empty message means there is none.
type userMessager interface {
	UserMessage() string
}

func failureMessage(err error) string {
	if err == nil {
		return FallbackSubmitError
	}
	var um userMessager
	if errors.As(err, &um) {
		if msg := strings.TrimSpace(um.UserMessage()); msg != "" {
			return msg
		}
		return FallbackSubmitError
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return FallbackSubmitError
}
