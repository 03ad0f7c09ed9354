package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/platform/metrics"
)

type Backend interface {
	GetTrainingJob(ctx context.Context, jobID string) (domain.TrainingJob, error)
	GetTrainingLogs(ctx context.Context, jobID, nextToken string) (domain.TrainingLogPage, error)
	StopTrainingJob(ctx context.Context, jobID string) error
}

type UpdateKind string

const (
	UpdateStatus UpdateKind = "status"
	UpdateLogs   UpdateKind = "logs"
)

// Update is one observation of a watched job. Status updates carry Job,
// log updates carry the events fetched since the previous page.
type Update struct {
	Kind       UpdateKind                `json:"kind"`
	Seq        int                       `json:"seq"`
	Job        *domain.TrainingJob       `json:"job,omitempty"`
	Status     domain.Status             `json:"status"`
	Events     []domain.TrainingLogEvent `json:"events,omitempty"`
	Error      string                    `json:"error,omitempty"`
	ObservedAt time.Time                 `json:"observed_at"`
}

// Watcher follows a training job: its status on one interval and its log
// stream on a shorter one. Both stop once the job settles.
type Watcher struct {
	logger         *slog.Logger
	backend        Backend
	statusInterval time.Duration
	logInterval    time.Duration
}

func NewWatcher(logger *slog.Logger, backend Backend) *Watcher {
	return &Watcher{
		logger:         logger,
		backend:        backend,
		statusInterval: orchestration.DeploymentPollInterval,
		logInterval:    orchestration.LogTailInterval,
	}
}

// WithIntervals overrides the polling intervals. Non-positive values keep
// the current ones.
func (w *Watcher) WithIntervals(status, logs time.Duration) *Watcher {
	if status > 0 {
		w.statusInterval = status
	}
	if logs > 0 {
		w.logInterval = logs
	}
	return w
}

// Watch emits status and log updates until the job settles or ctx is done.
// emit is never called concurrently. The log tail makes one last fetch
// after the job settles so trailing lines are not lost.
func (w *Watcher) Watch(ctx context.Context, jobID string, emit func(Update)) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidArgument)
	}
	done := metrics.WatcherStarted("training")
	defer done()

	var emitMu sync.Mutex
	send := func(u Update) {
		if emit == nil {
			return
		}
		emitMu.Lock()
		defer emitMu.Unlock()
		emit(u)
	}

	var current atomic.Value
	current.Store(domain.StatusPending)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetch := func(ctx context.Context) (domain.TrainingJob, domain.Status, error) {
			job, err := w.backend.GetTrainingJob(ctx, jobID)
			metrics.RecordPollFetch("training_status", err)
			if err != nil {
				w.log("training job fetch failed", "job_id", jobID, "error", err)
				return domain.TrainingJob{}, domain.StatusUnknown, err
			}
			status := domain.NormalizeStatus(job.Status)
			current.Store(status)
			return job, status, nil
		}
		return orchestration.Poll(gctx, w.statusInterval, fetch, func(o orchestration.Observation[domain.TrainingJob]) {
			u := Update{Kind: UpdateStatus, Seq: o.Seq, Status: o.Status, ObservedAt: o.ObservedAt}
			if o.Err != nil {
				u.Error = o.Err.Error()
			} else {
				job := o.Value
				u.Job = &job
			}
			send(u)
		})
	})
	g.Go(func() error {
		nextToken := ""
		attempt := 0
		fetch := func(ctx context.Context) ([]domain.TrainingLogEvent, domain.Status, error) {
			attempt++
			status := current.Load().(domain.Status)
			page, err := w.backend.GetTrainingLogs(ctx, jobID, nextToken)
			metrics.RecordPollFetch("training_logs", err)
			if err != nil {
				w.log("training log fetch failed", "job_id", jobID, "error", err)
				if status.Outstanding() {
					return nil, status, err
				}
				// The job has settled, so this was the final attempt: report
				// it and end the tail instead of retrying.
				send(Update{Kind: UpdateLogs, Seq: attempt, Status: status, Error: err.Error(), ObservedAt: time.Now().UTC()})
				return nil, status, nil
			}
			if page.NextToken != "" {
				nextToken = page.NextToken
			}
			return page.Events, status, nil
		}
		return orchestration.Poll(gctx, w.logInterval, fetch, func(o orchestration.Observation[[]domain.TrainingLogEvent]) {
			if o.Err == nil && len(o.Value) == 0 {
				return
			}
			u := Update{Kind: UpdateLogs, Seq: o.Seq, Status: o.Status, Events: o.Value, ObservedAt: o.ObservedAt}
			if o.Err != nil {
				u.Error = o.Err.Error()
			}
			send(u)
		})
	})
	return g.Wait()
}

// Stop asks the backend to stop the job.
func (w *Watcher) Stop(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidArgument)
	}
	if err := w.backend.StopTrainingJob(ctx, jobID); err != nil {
		return fmt.Errorf("stop training job %s: %w", jobID, err)
	}
	if w.logger != nil {
		w.logger.Info("training job stop requested", "component", "training_watcher", "job_id", jobID)
	}
	return nil
}

func (w *Watcher) log(msg string, attrs ...any) {
	if w.logger == nil {
		return
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		if key, ok := attrs[i].(string); ok && key == "error" {
			if err, ok := attrs[i+1].(error); ok && errors.Is(err, context.Canceled) {
				return
			}
		}
	}
	fields := append([]any{"component", "training_watcher"}, attrs...)
	w.logger.Warn(msg, fields...)
}
