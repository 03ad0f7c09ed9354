package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/platform/auth"
	"github.com/edgecv/fleet-console/internal/platform/httpserver"
	"github.com/edgecv/fleet-console/internal/platform/requestid"
)

type createSessionRequest struct {
	UseCaseID    string `json:"usecase_id"`
	ComponentARN string `json:"component_arn,omitempty"`
}

type updateSessionRequest struct {
	DeploymentName   *string         `json:"deployment_name,omitempty"`
	TargetMode       *string         `json:"target_mode,omitempty"`
	TargetDevices    []string        `json:"target_devices,omitempty"`
	TargetThingGroup *string         `json:"target_thing_group,omitempty"`
	AutoRollback     *bool           `json:"auto_rollback,omitempty"`
	TimeoutSeconds   json.RawMessage `json:"timeout_seconds,omitempty"`
}

type addComponentRequest struct {
	ARN string `json:"arn"`
}

func (api *consoleAPI) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	useCaseID := strings.TrimSpace(req.UseCaseID)
	if useCaseID == "" {
		api.writeFailure(w, r, &orchestration.ValidationError{Field: "usecase_id", Message: "select a use case"})
		return
	}

	form, err := orchestration.LoadDeploymentForm(r.Context(), api.logger, api.backend, useCaseID)
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	session := api.sessions.create(func(id string) *orchestration.Session {
		return orchestration.NewSession(id, api.logger, api.backend, api.observer)
	})
	preselected := session.LoadForm(form, req.ComponentARN)

	api.logger.Info("session created", "component", "console_api", "session_id", session.ID, "usecase_id", useCaseID, "preselected", preselected)
	httpserver.WriteJSON(w, http.StatusCreated, map[string]any{
		"session":     session.View(),
		"catalog":     catalogFromForm(form),
		"preselected": preselected,
	})
}

func (api *consoleAPI) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, session.View())
}

func (api *consoleAPI) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !api.sessions.remove(r.PathValue("session_id")) {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *consoleAPI) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}
	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	var mode domain.TargetMode
	if req.TargetMode != nil {
		parsed, err := domain.ParseTargetMode(*req.TargetMode)
		if err != nil {
			api.writeFailure(w, r, err)
			return
		}
		mode = parsed
	}
	if req.DeploymentName != nil {
		session.SetDeploymentName(*req.DeploymentName)
	}
	session.UpdateTarget(mode, req.TargetDevices, req.TargetThingGroup)
	session.UpdateRollout(req.AutoRollback, timeoutText(req.TimeoutSeconds))

	httpserver.WriteJSON(w, http.StatusOK, session.View())
}

// timeoutText accepts the timeout as a JSON number or string. Anything else
// is passed through as text and falls back to the default when parsed.
func timeoutText(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		text := n.String()
		return &text
	}
	text := string(raw)
	return &text
}

func (api *consoleAPI) handleAddComponent(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}
	var req addComponentRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if _, err := session.AddComponent(strings.TrimSpace(req.ARN)); err != nil {
		api.writeFailure(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, session.View())
}

func (api *consoleAPI) handleRemoveComponent(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}
	session.RemoveComponent(r.PathValue("arn"))
	httpserver.WriteJSON(w, http.StatusOK, session.View())
}

func (api *consoleAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}
	reqID, _ := requestid.FromContext(r.Context())
	snap, err := session.Submit(r.Context(), orchestration.SubmitMeta{
		Actor:     auth.ActorFromRequest(r),
		RequestID: reqID,
	})
	if err != nil {
		api.writeFailure(w, r, err)
		return
	}
	if snap.State == orchestration.StateFailed {
		api.writeErrorBody(w, r, http.StatusBadGateway, map[string]any{
			"error":   "backend_error",
			"message": snap.Error,
			"session": session.View(),
		})
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, session.View())
}

func (api *consoleAPI) handleViewDeployment(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}
	deploymentID, err := session.ViewDeployment()
	if err != nil {
		api.writeError(w, r, http.StatusConflict, "no_deployment")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"deployment_id": deploymentID,
		"usecase_id":    session.View().UseCaseID,
	})
}

func (api *consoleAPI) handleDismissError(w http.ResponseWriter, r *http.Request) {
	session, ok := api.session(w, r)
	if !ok {
		return
	}
	session.DismissError()
	httpserver.WriteJSON(w, http.StatusOK, session.View())
}

func (api *consoleAPI) session(w http.ResponseWriter, r *http.Request) (*orchestration.Session, bool) {
	session, ok := api.sessions.get(strings.TrimSpace(r.PathValue("session_id")))
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return nil, false
	}
	return session, true
}
