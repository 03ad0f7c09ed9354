package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/metrics"
)

type DeploymentGetter interface {
	GetDeployment(ctx context.Context, useCaseID, deploymentID string) (domain.DeploymentRecord, error)
}

// DeploymentWatcher re-fetches one deployment until it settles. Bind each
// call of Watch to the lifetime of the view that consumes it.
type DeploymentWatcher struct {
	Logger   *slog.Logger
	Getter   DeploymentGetter
	Interval time.Duration
}

func (w DeploymentWatcher) Watch(ctx context.Context, useCaseID, deploymentID string, emit func(Observation[Summary])) error {
	done := metrics.WatcherStarted("deployment")
	defer done()

	fetch := func(ctx context.Context) (Summary, domain.Status, error) {
		rec, err := w.Getter.GetDeployment(ctx, useCaseID, deploymentID)
		metrics.RecordPollFetch("deployment", err)
		if err != nil {
			if w.Logger != nil && !errors.Is(err, context.Canceled) {
				w.Logger.Warn("deployment fetch failed", "component", "deployment_watcher", "usecase_id", useCaseID, "deployment_id", deploymentID, "error", err)
			}
			return Summary{DeploymentID: deploymentID}, domain.StatusUnknown, err
		}
		sum := Summarize(rec)
		return sum, sum.Status, nil
	}
	return Poll(ctx, w.Interval, fetch, emit)
}
