package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/requestid"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(slog.New(slog.DiscardHandler), Config{
		BaseURL:           srv.URL + "/api",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		UserAgent:         "test",
	}, srv.Client())
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return client
}

func TestCreateDeployment_DevicesPayload(t *testing.T) {
	var (
		mu      sync.Mutex
		payload map[string]any
		rid     string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/usecases/uc-1/deployments", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		rid = r.Header.Get("X-Request-Id")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"deployment_id":"dep-1","auto_included":[{"component_name":"compX","component_version":"1.0.0","reason":"required by compA"}]}`))
	})
	client := newTestClient(t, mux)

	req := domain.NewDeploymentRequest("uc-1", "", []domain.ComponentSelection{
		{ComponentName: "compA", ComponentVersion: "2.0.0", ARN: "arn:a", Scope: domain.ScopePrivate},
	}, domain.DevicesTarget{DeviceIDs: []string{"d1", "d2"}}, domain.RolloutConfig{AutoRollback: true, TimeoutSeconds: 60})

	ctx := requestid.WithContext(context.Background(), "rid-7")
	res, err := client.CreateDeployment(ctx, req)
	if err != nil {
		t.Fatalf("CreateDeployment() err=%v", err)
	}
	if res.DeploymentID != "dep-1" || len(res.AutoIncluded) != 1 || res.AutoIncluded[0].Reason != "required by compA" {
		t.Fatalf("unexpected result %+v", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if rid != "rid-7" {
		t.Fatalf("X-Request-Id=%q, want rid-7", rid)
	}
	if _, ok := payload["target_thing_group"]; ok {
		t.Fatalf("target_thing_group must be absent in devices mode: %v", payload)
	}
	devices, ok := payload["target_devices"].([]any)
	if !ok || len(devices) != 2 {
		t.Fatalf("target_devices=%v", payload["target_devices"])
	}
	if _, ok := payload["deployment_name"]; ok {
		t.Fatalf("deployment_name must be omitted when empty")
	}
	comps := payload["components"].([]any)
	first := comps[0].(map[string]any)
	if _, ok := first["scope"]; ok {
		t.Fatalf("scope must not be sent: %v", first)
	}
	if _, ok := first["arn"]; ok {
		t.Fatalf("arn must not be sent: %v", first)
	}
	rollout := payload["rollout_config"].(map[string]any)
	if rollout["auto_rollback"] != true || rollout["timeout_seconds"] != float64(60) {
		t.Fatalf("rollout_config=%v", rollout)
	}
}

func TestCreateDeployment_ThingGroupPayload(t *testing.T) {
	var payload map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/usecases/uc-1/deployments", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"deployment_id":"dep-2"}`))
	})
	client := newTestClient(t, mux)

	req := domain.NewDeploymentRequest("uc-1", "nightly", []domain.ComponentSelection{
		{ComponentName: "compA", ComponentVersion: "latest", ARN: "arn:a"},
	}, domain.ThingGroupTarget{Name: "fleet-1"}, domain.DefaultRolloutConfig())

	res, err := client.CreateDeployment(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateDeployment() err=%v", err)
	}
	if len(res.AutoIncluded) != 0 {
		t.Fatalf("expected no auto-included components")
	}
	if payload["target_thing_group"] != "fleet-1" {
		t.Fatalf("target_thing_group=%v", payload["target_thing_group"])
	}
	if _, ok := payload["target_devices"]; ok {
		t.Fatalf("target_devices must be absent in thing group mode")
	}
	if payload["deployment_name"] != "nightly" {
		t.Fatalf("deployment_name=%v", payload["deployment_name"])
	}
}

func TestCreateDeployment_RejectsMissingTargetWithoutCall(t *testing.T) {
	called := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := domain.NewDeploymentRequest("uc-1", "", []domain.ComponentSelection{
		{ComponentName: "compA", ComponentVersion: "1.0.0"},
	}, nil, domain.DefaultRolloutConfig())

	_, err := client.CreateDeployment(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err=%v, want ErrInvalidArgument", err)
	}
	if called {
		t.Fatalf("backend must not be called for an invalid payload")
	}
}

func TestAPIError_CarriesBackendMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"component_conflict","message":"component compA is already deployed"}`))
	}))
	req := domain.NewDeploymentRequest("uc-1", "", []domain.ComponentSelection{
		{ComponentName: "compA", ComponentVersion: "1.0.0"},
	}, domain.ThingGroupTarget{Name: "g"}, domain.DefaultRolloutConfig())

	_, err := client.CreateDeployment(context.Background(), req)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%T %v, want *APIError", err, err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "component_conflict" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if err.Error() != "component compA is already deployed" {
		t.Fatalf("Error()=%q", err.Error())
	}
}

func TestAPIError_WithoutBody(t *testing.T) {
	err := &APIError{Operation: "list_devices", Status: 502}
	if err.Error() != "list_devices: backend returned 502" {
		t.Fatalf("Error()=%q", err.Error())
	}
	if IsNotFound(err) {
		t.Fatalf("502 is not a not-found")
	}
	if !IsNotFound(&APIError{Status: http.StatusNotFound}) {
		t.Fatalf("404 should be not-found")
	}
}

func TestListComponents_ReadsLatestVersion(t *testing.T) {
	var scope string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope = r.URL.Query().Get("scope")
		_, _ = w.Write([]byte(`{"components":[{"component_name":"detector","arn":"arn:d","latest_version":{"componentVersion":"1.4.2"}},{"component_name":"bare","arn":"arn:b"}]}`))
	}))
	comps, err := client.ListComponents(context.Background(), "uc-1", domain.ScopePublic)
	if err != nil {
		t.Fatalf("ListComponents() err=%v", err)
	}
	if scope != "PUBLIC" {
		t.Fatalf("scope=%q, want PUBLIC", scope)
	}
	if len(comps) != 2 || comps[0].LatestVersion != "1.4.2" || comps[1].LatestVersion != "" {
		t.Fatalf("unexpected components %+v", comps)
	}
}

func TestGetDeployment_NotInList(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"deployments":[{"deployment_id":"dep-1","status":"ACTIVE","outcomes":{"d1":"SUCCEEDED"}}]}`))
	}))
	rec, err := client.GetDeployment(context.Background(), "uc-1", "dep-1")
	if err != nil {
		t.Fatalf("GetDeployment() err=%v", err)
	}
	if rec.UseCaseID != "uc-1" || rec.Outcomes["d1"] != "SUCCEEDED" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := client.GetDeployment(context.Background(), "uc-1", "dep-404"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestTrainingLogs_PassesNextToken(t *testing.T) {
	var token string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.URL.Query().Get("next_token")
		_, _ = w.Write([]byte(`{"events":[{"timestamp":"2026-01-02T03:04:05Z","message":"epoch 1"}],"next_token":"t2"}`))
	}))
	page, err := client.GetTrainingLogs(context.Background(), "job-1", "t1")
	if err != nil {
		t.Fatalf("GetTrainingLogs() err=%v", err)
	}
	if token != "t1" || page.NextToken != "t2" || len(page.Events) != 1 {
		t.Fatalf("unexpected page %+v (token %q)", page, token)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{BaseURL: "http://backend:8080", Timeout: time.Second, RequestsPerSecond: 1, Burst: 1}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	bad := valid
	bad.BaseURL = "not a url"
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate() expected error for bad url")
	}
	bad = valid
	bad.RequestsPerSecond = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate() expected error for zero rate")
	}
}
