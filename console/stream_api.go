package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/platform/httpserver"
	"github.com/edgecv/fleet-console/internal/platform/requestid"
	"github.com/edgecv/fleet-console/internal/training"
)

// eventStream serializes writes to one SSE response and keeps the
// connection alive with comment pings.
type eventStream struct {
	mu sync.Mutex
	w  http.ResponseWriter
}

func (s *eventStream) send(event, id string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = httpserver.WriteSSE(s.w, event, id, payload)
}

func (s *eventStream) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			_, _ = fmt.Fprintf(s.w, ": ping\n\n")
			if flusher, ok := s.w.(http.Flusher); ok {
				flusher.Flush()
			}
			s.mu.Unlock()
		}
	}
}

// openStream starts an SSE response. The returned stop func ends the
// heartbeat and waits for it, so nothing writes after the handler returns.
func (api *consoleAPI) openStream(w http.ResponseWriter, r *http.Request, subject map[string]any) (*eventStream, func(), bool) {
	if !httpserver.PrepareSSE(w) {
		api.writeError(w, r, http.StatusInternalServerError, "streaming_not_supported")
		return nil, nil, false
	}
	stream := &eventStream{w: w}
	subject["server_ts"] = time.Now().UTC().Unix()
	if id, ok := requestid.FromContext(r.Context()); ok {
		subject["request_id"] = id
	}
	stream.send("ready", "", subject)

	hbCtx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		stream.heartbeat(hbCtx, api.cfg.HeartbeatInterval)
	}()
	return stream, func() {
		cancel()
		<-done
	}, true
}

func (api *consoleAPI) handleWatchDeployment(w http.ResponseWriter, r *http.Request) {
	useCaseID := strings.TrimSpace(r.PathValue("usecase_id"))
	deploymentID := strings.TrimSpace(r.PathValue("deployment_id"))
	if useCaseID == "" || deploymentID == "" {
		api.writeError(w, r, http.StatusBadRequest, "deployment_required")
		return
	}

	stream, stop, ok := api.openStream(w, r, map[string]any{"usecase_id": useCaseID, "deployment_id": deploymentID})
	if !ok {
		return
	}
	defer stop()

	watcher := orchestration.DeploymentWatcher{
		Logger:   api.logger,
		Getter:   api.backend,
		Interval: api.cfg.DeploymentPollInterval,
	}
	err := watcher.Watch(r.Context(), useCaseID, deploymentID, func(o orchestration.Observation[orchestration.Summary]) {
		id := strconv.Itoa(o.Seq)
		if o.Err != nil {
			stream.send("error", id, map[string]any{"error": "backend_error", "message": o.Err.Error(), "observed_at": o.ObservedAt})
			return
		}
		stream.send("status", id, map[string]any{"summary": o.Value, "observed_at": o.ObservedAt})
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			stream.send("error", "", map[string]any{"error": err.Error()})
		}
		return
	}
	stream.send("done", "", map[string]any{"deployment_id": deploymentID})
}

func (api *consoleAPI) handleWatchTrainingJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("job_id"))
	if jobID == "" {
		api.writeError(w, r, http.StatusBadRequest, "job_id_required")
		return
	}

	stream, stop, ok := api.openStream(w, r, map[string]any{"job_id": jobID})
	if !ok {
		return
	}
	defer stop()

	watcher := training.NewWatcher(api.logger, api.backend).WithIntervals(api.cfg.StatusPollInterval, api.cfg.LogTailInterval)
	err := watcher.Watch(r.Context(), jobID, func(u training.Update) {
		stream.send(string(u.Kind), string(u.Kind)+"-"+strconv.Itoa(u.Seq), u)
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			stream.send("error", "", map[string]any{"error": err.Error()})
		}
		return
	}
	stream.send("done", "", map[string]any{"job_id": jobID})
}
