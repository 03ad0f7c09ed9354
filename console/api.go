package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edgecv/fleet-console/internal/backend"
	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/platform/httpserver"
	"github.com/edgecv/fleet-console/internal/platform/requestid"
	"github.com/edgecv/fleet-console/internal/receipts"
	"github.com/edgecv/fleet-console/internal/training"
)

// consoleBackend is the part of the backend client the console calls.
type consoleBackend interface {
	orchestration.CatalogBackend
	orchestration.FleetBackend
	orchestration.DeploymentCreator
	orchestration.DeploymentGetter
	training.Backend
	ListDeployments(ctx context.Context, useCaseID string) ([]domain.DeploymentRecord, error)
}

type receiptReader interface {
	Get(ctx context.Context, useCaseID, deploymentID string) (receipts.Receipt, error)
}

type consoleAPI struct {
	logger   *slog.Logger
	cfg      consoleConfig
	backend  consoleBackend
	observer orchestration.SubmissionObserver
	receipts receiptReader
	sessions *sessionRegistry
	fleet    orchestration.FleetAggregator
}

func newConsoleAPI(logger *slog.Logger, cfg consoleConfig, be consoleBackend, observer orchestration.SubmissionObserver, receiptStore receiptReader) *consoleAPI {
	return &consoleAPI{
		logger:   logger,
		cfg:      cfg,
		backend:  be,
		observer: observer,
		receipts: receiptStore,
		sessions: newSessionRegistry(cfg.SessionTTL),
		fleet: orchestration.FleetAggregator{
			Logger:      logger,
			Backend:     be,
			Concurrency: cfg.FleetConcurrency,
		},
	}
}

func (api *consoleAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /usecases", api.handleListUseCases)
	mux.HandleFunc("GET /usecases/{usecase_id}/catalog", api.handleGetCatalog)
	mux.HandleFunc("GET /usecases/{usecase_id}/deployments", api.handleListDeployments)
	mux.HandleFunc("GET /usecases/{usecase_id}/deployments/{deployment_id}", api.handleGetDeployment)
	mux.HandleFunc("GET /usecases/{usecase_id}/deployments/{deployment_id}/watch", api.handleWatchDeployment)
	mux.HandleFunc("GET /usecases/{usecase_id}/deployments/{deployment_id}/receipt", api.handleGetReceipt)

	mux.HandleFunc("POST /sessions", api.handleCreateSession)
	mux.HandleFunc("GET /sessions/{session_id}", api.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{session_id}", api.handleUpdateSession)
	mux.HandleFunc("DELETE /sessions/{session_id}", api.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{session_id}/components", api.handleAddComponent)
	mux.HandleFunc("DELETE /sessions/{session_id}/components/{arn...}", api.handleRemoveComponent)
	mux.HandleFunc("POST /sessions/{session_id}/submit", api.handleSubmit)
	mux.HandleFunc("POST /sessions/{session_id}/view", api.handleViewDeployment)
	mux.HandleFunc("POST /sessions/{session_id}/dismiss", api.handleDismissError)

	mux.HandleFunc("GET /fleet/summary", api.handleFleetSummary)

	mux.HandleFunc("GET /training-jobs/{job_id}/watch", api.handleWatchTrainingJob)
	mux.HandleFunc("POST /training-jobs/{job_id}/stop", api.handleStopTrainingJob)
}

type useCaseResponse struct {
	UseCaseID string `json:"usecase_id"`
	Name      string `json:"name"`
	AccountID string `json:"account_id,omitempty"`
}

type catalogOption struct {
	ARN         string       `json:"arn"`
	Label       string       `json:"label"`
	Scope       domain.Scope `json:"scope"`
	Description string       `json:"description,omitempty"`
}

type deviceResponse struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	Platform string `json:"platform,omitempty"`
	Online   bool   `json:"online"`
}

type catalogResponse struct {
	UseCaseID string           `json:"usecase_id"`
	Private   []catalogOption  `json:"private"`
	Public    []catalogOption  `json:"public"`
	Devices   []deviceResponse `json:"devices"`
}

func catalogFromForm(form orchestration.DeploymentForm) catalogResponse {
	out := catalogResponse{
		UseCaseID: form.UseCaseID,
		Private:   catalogOptions(form.Private),
		Public:    catalogOptions(form.Public),
		Devices:   make([]deviceResponse, 0, len(form.Devices)),
	}
	for _, d := range form.Devices {
		out.Devices = append(out.Devices, deviceResponse{DeviceID: d.DeviceID, Status: d.Status, Platform: d.Platform, Online: d.Online()})
	}
	return out
}

func catalogOptions(entries []domain.CatalogEntry) []catalogOption {
	out := make([]catalogOption, 0, len(entries))
	for _, e := range entries {
		out = append(out, catalogOption{ARN: e.ARN, Label: e.Label, Scope: e.Scope, Description: e.Description})
	}
	return out
}

type deploymentResponse struct {
	DeploymentID     string                `json:"deployment_id"`
	DeploymentName   string                `json:"deployment_name,omitempty"`
	UseCaseID        string                `json:"usecase_id"`
	TargetDevices    []string              `json:"target_devices,omitempty"`
	TargetThingGroup string                `json:"target_thing_group,omitempty"`
	Outcomes         map[string]string     `json:"outcomes,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	CompletedAt      *time.Time            `json:"completed_at,omitempty"`
	Summary          orchestration.Summary `json:"summary"`
}

func deploymentFromRecord(useCaseID string, rec domain.DeploymentRecord) deploymentResponse {
	if rec.UseCaseID != "" {
		useCaseID = rec.UseCaseID
	}
	return deploymentResponse{
		DeploymentID:     rec.DeploymentID,
		DeploymentName:   rec.DeploymentName,
		UseCaseID:        useCaseID,
		TargetDevices:    rec.TargetDevices,
		TargetThingGroup: rec.TargetThingGroup,
		Outcomes:         rec.Outcomes,
		CreatedAt:        rec.CreatedAt,
		CompletedAt:      rec.CompletedAt,
		Summary:          orchestration.Summarize(rec),
	}
}

func (api *consoleAPI) handleListUseCases(w http.ResponseWriter, r *http.Request) {
	useCases, err := api.backend.ListUseCases(r.Context())
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	out := make([]useCaseResponse, 0, len(useCases))
	for _, uc := range useCases {
		out = append(out, useCaseResponse{UseCaseID: uc.UseCaseID, Name: uc.Name, AccountID: uc.AccountID})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"usecases": out})
}

func (api *consoleAPI) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	useCaseID := strings.TrimSpace(r.PathValue("usecase_id"))
	form, err := orchestration.LoadDeploymentForm(r.Context(), api.logger, api.backend, useCaseID)
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, catalogFromForm(form))
}

func (api *consoleAPI) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	useCaseID := strings.TrimSpace(r.PathValue("usecase_id"))
	records, err := api.backend.ListDeployments(r.Context(), useCaseID)
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	out := make([]deploymentResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, deploymentFromRecord(useCaseID, rec))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"deployments": out})
}

func (api *consoleAPI) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	useCaseID := strings.TrimSpace(r.PathValue("usecase_id"))
	rec, err := api.backend.GetDeployment(r.Context(), useCaseID, strings.TrimSpace(r.PathValue("deployment_id")))
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, deploymentFromRecord(useCaseID, rec))
}

func (api *consoleAPI) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	if api.receipts == nil {
		api.writeError(w, r, http.StatusNotFound, "receipts_disabled")
		return
	}
	rec, err := api.receipts.Get(r.Context(), strings.TrimSpace(r.PathValue("usecase_id")), strings.TrimSpace(r.PathValue("deployment_id")))
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	valid, err := receipts.Verify(rec)
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"receipt": rec, "integrity_ok": valid})
}

func (api *consoleAPI) handleFleetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := api.fleet.Summary(r.Context(), r.URL.Query().Get("usecase_id"))
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, summary)
}

func (api *consoleAPI) handleStopTrainingJob(w http.ResponseWriter, r *http.Request) {
	watcher := training.NewWatcher(api.logger, api.backend)
	if err := watcher.Stop(r.Context(), r.PathValue("job_id")); err != nil {
		api.writeFailure(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusAccepted, map[string]any{"job_id": r.PathValue("job_id"), "status": "stopping"})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *consoleAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeErrorBody(w, r, status, map[string]any{"error": code})
}

func (api *consoleAPI) writeErrorBody(w http.ResponseWriter, r *http.Request, status int, body map[string]any) {
	if id, ok := requestid.FromContext(r.Context()); ok {
		body["request_id"] = id
	} else {
		body["request_id"] = r.Header.Get(requestid.Header)
	}
	httpserver.WriteJSON(w, status, body)
}

// writeFailure maps an error from the core or the backend to a response.
func (api *consoleAPI) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var verr *orchestration.ValidationError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &verr):
		api.writeErrorBody(w, r, http.StatusBadRequest, map[string]any{
			"error":   "validation_failed",
			"field":   verr.Field,
			"message": verr.Message,
		})
	case errors.Is(err, orchestration.ErrSubmissionInFlight):
		api.writeError(w, r, http.StatusConflict, "submission_in_flight")
	case errors.Is(err, orchestration.ErrAlreadySubmitted):
		api.writeError(w, r, http.StatusConflict, "already_submitted")
	case errors.Is(err, domain.ErrNotFound), backend.IsNotFound(err):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, domain.ErrInvalidArgument):
		api.writeErrorBody(w, r, http.StatusBadRequest, map[string]any{
			"error":   "invalid_argument",
			"message": err.Error(),
		})
	case errors.As(err, &apiErr):
		api.writeErrorBody(w, r, http.StatusBadGateway, map[string]any{
			"error":   "backend_error",
			"message": apiErr.Error(),
		})
	case errors.Is(err, context.Canceled):
		return
	default:
		api.logger.Error("request failed", "component", "console_api", "path", r.URL.Path, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "backend_error")
	}
}
