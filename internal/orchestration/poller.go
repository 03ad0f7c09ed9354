package orchestration

import (
	"context"
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
)

const (
	DeploymentPollInterval = 30 * time.Second
	LogTailInterval        = 10 * time.Second
)

// Observation is one fetch result delivered to a watcher's consumer. Err is
// set for a failed fetch; polling continues after it.
type Observation[T any] struct {
	Seq        int
	Value      T
	Status     domain.Status
	Err        error
	ObservedAt time.Time
}

type FetchFunc[T any] func(ctx context.Context) (T, domain.Status, error)

// Poll fetches immediately and then once per interval while the observed
// status is outstanding (pending or in progress). It returns nil after the
// first settled status and ctx.Err() once ctx is done; no fetch is issued
// after either. The ticker is released on every return path.
func Poll[T any](ctx context.Context, interval time.Duration, fetch FetchFunc[T], emit func(Observation[T])) error {
	if interval <= 0 {
		interval = DeploymentPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 1; ; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, status, err := fetch(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if emit != nil {
			emit(Observation[T]{
				Seq:        seq,
				Value:      value,
				Status:     status,
				Err:        err,
				ObservedAt: time.Now().UTC(),
			})
		}
		if err == nil && !status.Outstanding() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
