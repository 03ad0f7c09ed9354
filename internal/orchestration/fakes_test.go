package orchestration

import (
	"context"
	"errors"
	"sync"

	"github.com/edgecv/fleet-console/internal/domain"
)

type fakeCreator struct {
	mu       sync.Mutex
	calls    []domain.DeploymentRequest
	result   domain.CreateDeploymentResult
	err      error
	release  chan struct{}
	entered  chan struct{}
	ctxAlive bool
}

func (f *fakeCreator) CreateDeployment(ctx context.Context, req domain.DeploymentRequest) (domain.CreateDeploymentResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxAlive = ctx.Err() == nil
	if f.err != nil {
		return domain.CreateDeploymentResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeCreator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingObserver struct {
	mu      sync.Mutex
	reports []domain.SubmissionReport
}

func (o *recordingObserver) SubmissionFinished(_ context.Context, report domain.SubmissionReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, report)
}

type fakeCatalog struct {
	mu         sync.Mutex
	private    []domain.Component
	public     []domain.Component
	devices    map[string]domain.DeviceList
	useCases   []domain.UseCase
	privateErr error
	publicErr  error
	deviceErr  map[string]error
	listUCErr  error
}

func (f *fakeCatalog) ListComponents(_ context.Context, _ string, scope domain.Scope) ([]domain.Component, error) {
	if scope == domain.ScopePublic {
		return f.public, f.publicErr
	}
	return f.private, f.privateErr
}

func (f *fakeCatalog) ListDevices(_ context.Context, useCaseID string) (domain.DeviceList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deviceErr[useCaseID]; err != nil {
		return domain.DeviceList{}, err
	}
	return f.devices[useCaseID], nil
}

func (f *fakeCatalog) ListUseCases(context.Context) ([]domain.UseCase, error) {
	return f.useCases, f.listUCErr
}

var errBackendDown = errors.New("backend unavailable")
