package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgecv/fleet-console/internal/backend"
	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/httpserver"
)

type fakeBackend struct {
	mu          sync.Mutex
	useCases    []domain.UseCase
	private     []domain.Component
	public      []domain.Component
	publicErr   error
	devices     map[string]domain.DeviceList
	deviceErr   map[string]error
	created     []domain.DeploymentRequest
	createRes   domain.CreateDeploymentResult
	createErr   error
	deployments map[string]domain.DeploymentRecord
	jobs        map[string]domain.TrainingJob
	stopped     []string
}

func (f *fakeBackend) ListUseCases(context.Context) ([]domain.UseCase, error) {
	return f.useCases, nil
}

func (f *fakeBackend) ListComponents(_ context.Context, _ string, scope domain.Scope) ([]domain.Component, error) {
	if scope == domain.ScopePublic {
		return f.public, f.publicErr
	}
	return f.private, nil
}

func (f *fakeBackend) ListDevices(_ context.Context, useCaseID string) (domain.DeviceList, error) {
	if err := f.deviceErr[useCaseID]; err != nil {
		return domain.DeviceList{}, err
	}
	return f.devices[useCaseID], nil
}

func (f *fakeBackend) CreateDeployment(_ context.Context, req domain.DeploymentRequest) (domain.CreateDeploymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return domain.CreateDeploymentResult{}, f.createErr
	}
	return f.createRes, nil
}

func (f *fakeBackend) ListDeployments(context.Context, string) ([]domain.DeploymentRecord, error) {
	out := make([]domain.DeploymentRecord, 0, len(f.deployments))
	for _, rec := range f.deployments {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeBackend) GetDeployment(_ context.Context, _, deploymentID string) (domain.DeploymentRecord, error) {
	rec, ok := f.deployments[deploymentID]
	if !ok {
		return domain.DeploymentRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeBackend) GetTrainingJob(_ context.Context, jobID string) (domain.TrainingJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.TrainingJob{}, &backend.APIError{Operation: "get_training_job", Status: http.StatusNotFound}
	}
	return job, nil
}

func (f *fakeBackend) GetTrainingLogs(context.Context, string, string) (domain.TrainingLogPage, error) {
	return domain.TrainingLogPage{Events: []domain.TrainingLogEvent{{Message: "done"}}}, nil
}

func (f *fakeBackend) StopTrainingJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, jobID)
	return nil
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		useCases: []domain.UseCase{{UseCaseID: "uc-1", Name: "Line inspection"}, {UseCaseID: "uc-2"}, {UseCaseID: "uc-3"}},
		private: []domain.Component{
			{ComponentName: "compA", ARN: "arn:a", LatestVersion: "1.0.0"},
			{ComponentName: "compB", ARN: "arn:b"},
		},
		public: []domain.Component{{ComponentName: "pubModel", ARN: "arn:p", LatestVersion: "3"}},
		devices: map[string]domain.DeviceList{
			"uc-1": {Devices: []domain.Device{{DeviceID: "d1", Status: "online"}, {DeviceID: "d2", Status: "offline"}, {DeviceID: "d3", Status: "online"}}},
			"uc-3": {Devices: []domain.Device{{DeviceID: "e1", Status: "healthy"}}},
		},
		deviceErr:   map[string]error{"uc-2": errors.New("timeout")},
		deployments: map[string]domain.DeploymentRecord{},
		jobs:        map[string]domain.TrainingJob{},
	}
}

func testConfig() consoleConfig {
	return consoleConfig{
		SessionTTL:             time.Minute,
		SessionPruneInterval:   time.Minute,
		FleetConcurrency:       2,
		DeploymentPollInterval: time.Millisecond,
		StatusPollInterval:     time.Millisecond,
		LogTailInterval:        time.Millisecond,
		HeartbeatInterval:      time.Hour,
	}
}

func newTestServer(t *testing.T, be *fakeBackend) (*consoleAPI, http.Handler) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	api := newConsoleAPI(logger, testConfig(), be, nil, nil)
	mux := http.NewServeMux()
	api.register(mux)
	return api, httpserver.Wrap(logger, "console", mux)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(blob)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, out
}

func createSession(t *testing.T, h http.Handler, arn string) string {
	t.Helper()
	rec, body := doJSON(t, h, http.MethodPost, "/sessions", map[string]any{"usecase_id": "uc-1", "component_arn": arn})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status=%d body=%s", rec.Code, rec.Body.String())
	}
	session := body["session"].(map[string]any)
	return session["session_id"].(string)
}

func TestSessionFlow_AutoInclusionsRequireViewAction(t *testing.T) {
	be := newFakeBackend()
	be.createRes = domain.CreateDeploymentResult{
		DeploymentID: "dep-1",
		AutoIncluded: []domain.AutoIncludedComponent{{ComponentName: "compX", ComponentVersion: "1.0", Reason: "dependency"}},
	}
	_, h := newTestServer(t, be)

	rec, body := doJSON(t, h, http.MethodPost, "/sessions", map[string]any{"usecase_id": "uc-1", "component_arn": "arn:a"})
	if rec.Code != http.StatusCreated || body["preselected"] != true {
		t.Fatalf("create session status=%d body=%v", rec.Code, body)
	}
	id := body["session"].(map[string]any)["session_id"].(string)

	if rec, _ := doJSON(t, h, http.MethodPost, "/sessions/"+id+"/components", map[string]any{"arn": "arn:b"}); rec.Code != http.StatusOK {
		t.Fatalf("add component status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec, body = doJSON(t, h, http.MethodPatch, "/sessions/"+id, map[string]any{
		"target_mode":     "devices",
		"target_devices":  []string{"d1", "d2", "d3"},
		"timeout_seconds": "abc",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	rollout := body["rollout_config"].(map[string]any)
	if rollout["timeout_seconds"] != float64(60) || rollout["auto_rollback"] != true {
		t.Fatalf("unexpected rollout %v", rollout)
	}

	rec, body = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/submit", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status=%d body=%s", rec.Code, rec.Body.String())
	}
	submission := body["submission"].(map[string]any)
	if submission["state"] != "succeeded_with_auto_inclusions" || submission["deployment_id"] != "dep-1" {
		t.Fatalf("unexpected submission %v", submission)
	}
	if _, ok := body["navigate_to"]; ok {
		t.Fatalf("navigate_to must be empty before the view action: %v", body)
	}

	if len(be.created) != 1 {
		t.Fatalf("create calls=%d, want 1", len(be.created))
	}
	req := be.created[0]
	if len(req.Components) != 2 || req.Components[1].ComponentVersion != "latest" {
		t.Fatalf("unexpected components %+v", req.Components)
	}
	if d, ok := req.Target.(domain.DevicesTarget); !ok || len(d.DeviceIDs) != 3 {
		t.Fatalf("unexpected target %#v", req.Target)
	}

	rec, body = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/view", nil)
	if rec.Code != http.StatusOK || body["deployment_id"] != "dep-1" {
		t.Fatalf("view status=%d body=%v", rec.Code, body)
	}
	_, body = doJSON(t, h, http.MethodGet, "/sessions/"+id, nil)
	if body["navigate_to"] != "dep-1" {
		t.Fatalf("navigate_to=%v after view", body["navigate_to"])
	}

	rec, body = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/submit", nil)
	if rec.Code != http.StatusConflict || body["error"] != "already_submitted" {
		t.Fatalf("resubmit status=%d body=%v", rec.Code, body)
	}
}

func TestSubmit_ValidationFailureMakesNoBackendCall(t *testing.T) {
	be := newFakeBackend()
	_, h := newTestServer(t, be)
	id := createSession(t, h, "arn:a")

	rec, body := doJSON(t, h, http.MethodPost, "/sessions/"+id+"/submit", nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "validation_failed" || body["field"] != "target_devices" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}

	doJSON(t, h, http.MethodPatch, "/sessions/"+id, map[string]any{"target_mode": "thing_group", "target_thing_group": "   "})
	rec, body = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/submit", nil)
	if rec.Code != http.StatusBadRequest || body["field"] != "target_thing_group" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
	if len(be.created) != 0 {
		t.Fatalf("backend must not be called, got %d calls", len(be.created))
	}
}

func TestSubmit_BackendFailureKeepsForm(t *testing.T) {
	be := newFakeBackend()
	be.createErr = &backend.APIError{Operation: "create_deployment", Status: http.StatusConflict, Message: "thing group fleet-9 does not exist"}
	_, h := newTestServer(t, be)
	id := createSession(t, h, "arn:a")
	doJSON(t, h, http.MethodPatch, "/sessions/"+id, map[string]any{"target_mode": "thing_group", "target_thing_group": " fleet-9 "})

	rec, body := doJSON(t, h, http.MethodPost, "/sessions/"+id+"/submit", nil)
	if rec.Code != http.StatusBadGateway || body["message"] != "thing group fleet-9 does not exist" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
	session := body["session"].(map[string]any)
	if session["target_thing_group"] != " fleet-9 " || len(session["components"].([]any)) != 1 {
		t.Fatalf("form should be kept: %v", session)
	}
	if g, ok := be.created[0].Target.(domain.ThingGroupTarget); !ok || g.Name != "fleet-9" {
		t.Fatalf("group name should be trimmed in the request: %#v", be.created[0].Target)
	}

	rec, body = doJSON(t, h, http.MethodPost, "/sessions/"+id+"/dismiss", nil)
	if rec.Code != http.StatusOK || body["submission"].(map[string]any)["state"] != "idle" {
		t.Fatalf("dismiss status=%d body=%v", rec.Code, body)
	}
}

func TestCreateSession_UnknownDeepLinkLeavesSelectionEmpty(t *testing.T) {
	_, h := newTestServer(t, newFakeBackend())
	rec, body := doJSON(t, h, http.MethodPost, "/sessions", map[string]any{"usecase_id": "uc-1", "component_arn": "arn:missing"})
	if rec.Code != http.StatusCreated || body["preselected"] != false {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
	if comps := body["session"].(map[string]any)["components"].([]any); len(comps) != 0 {
		t.Fatalf("components=%v, want none", comps)
	}
}

func TestCreateSession_RequiresUseCase(t *testing.T) {
	_, h := newTestServer(t, newFakeBackend())
	rec, body := doJSON(t, h, http.MethodPost, "/sessions", map[string]any{})
	if rec.Code != http.StatusBadRequest || body["field"] != "usecase_id" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestAddComponent_UnknownARN(t *testing.T) {
	_, h := newTestServer(t, newFakeBackend())
	id := createSession(t, h, "")
	rec, body := doJSON(t, h, http.MethodPost, "/sessions/"+id+"/components", map[string]any{"arn": "arn:zzz"})
	if rec.Code != http.StatusNotFound || body["error"] != "not_found" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestSessionNotFound(t *testing.T) {
	_, h := newTestServer(t, newFakeBackend())
	rec, body := doJSON(t, h, http.MethodGet, "/sessions/nope", nil)
	if rec.Code != http.StatusNotFound || body["error"] != "not_found" || body["request_id"] == "" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestCatalog_PublicFailureIsEmpty(t *testing.T) {
	be := newFakeBackend()
	be.publicErr = errors.New("public catalog unavailable")
	_, h := newTestServer(t, be)
	rec, body := doJSON(t, h, http.MethodGet, "/usecases/uc-1/catalog", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if pub := body["public"].([]any); len(pub) != 0 {
		t.Fatalf("public=%v, want empty", pub)
	}
	if priv := body["private"].([]any); len(priv) != 2 {
		t.Fatalf("private=%v", priv)
	}
}

func TestFleetSummary_PartialFailure(t *testing.T) {
	_, h := newTestServer(t, newFakeBackend())
	rec, body := doJSON(t, h, http.MethodGet, "/fleet/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if body["device_count"] != float64(4) || body["online_devices"] != float64(3) {
		t.Fatalf("unexpected totals %v", body)
	}
	if failed := body["failed"].([]any); len(failed) != 1 || failed[0] != "uc-2" {
		t.Fatalf("failed=%v", failed)
	}
}

func TestGetDeployment_SummaryAndNotFound(t *testing.T) {
	be := newFakeBackend()
	be.deployments["dep-1"] = domain.DeploymentRecord{
		DeploymentID:  "dep-1",
		Status:        "IN_PROGRESS",
		TargetDevices: []string{"d1", "d2", "d3"},
		Outcomes:      map[string]string{"d1": "COMPLETED", "d2": "COMPLETED", "d3": "IN_PROGRESS"},
	}
	_, h := newTestServer(t, be)

	rec, body := doJSON(t, h, http.MethodGet, "/usecases/uc-1/deployments/dep-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	summary := body["summary"].(map[string]any)
	progress := summary["progress"].(map[string]any)
	if summary["status"] != "in_progress" || progress["succeeded"] != float64(2) || progress["total"] != float64(3) {
		t.Fatalf("unexpected summary %v", summary)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/usecases/uc-1/deployments/dep-9", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestWatchDeployment_StreamsUntilTerminal(t *testing.T) {
	be := newFakeBackend()
	be.deployments["dep-1"] = domain.DeploymentRecord{DeploymentID: "dep-1", Status: "COMPLETED", TargetDevices: []string{"d1"}, Outcomes: map[string]string{"d1": "COMPLETED"}}
	_, h := newTestServer(t, be)

	req := httptest.NewRequest(http.MethodGet, "/usecases/uc-1/deployments/dep-1/watch", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := rec.Body.String()
	for _, want := range []string{"event: ready\n", "event: status\nid: 1\n", `"status":"completed"`, "event: done\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stream missing %q:\n%s", want, out)
		}
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
}

func TestTrainingWatchAndStop(t *testing.T) {
	be := newFakeBackend()
	be.jobs["job-1"] = domain.TrainingJob{JobID: "job-1", Status: "Completed"}
	_, h := newTestServer(t, be)

	req := httptest.NewRequest(http.MethodGet, "/training-jobs/job-1/watch", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := rec.Body.String()
	for _, want := range []string{"event: status\n", "event: logs\n", `"message":"done"`, "event: done\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stream missing %q:\n%s", want, out)
		}
	}

	stopRec, body := doJSON(t, h, http.MethodPost, "/training-jobs/job-1/stop", nil)
	if stopRec.Code != http.StatusAccepted || body["status"] != "stopping" {
		t.Fatalf("stop status=%d body=%v", stopRec.Code, body)
	}
	if len(be.stopped) != 1 {
		t.Fatalf("stopped=%v", be.stopped)
	}
}

func TestTimeoutText(t *testing.T) {
	cases := map[string]string{`"90"`: "90", `120`: "120", `"abc"`: "abc", `true`: "true"}
	for raw, want := range cases {
		got := timeoutText(json.RawMessage(raw))
		if got == nil || *got != want {
			t.Fatalf("timeoutText(%s)=%v, want %q", raw, got, want)
		}
	}
	if timeoutText(nil) != nil || timeoutText(json.RawMessage("null")) != nil {
		t.Fatalf("absent timeout should leave the field unchanged")
	}
}
