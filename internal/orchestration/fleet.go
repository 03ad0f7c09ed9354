package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/metrics"
)

type FleetBackend interface {
	ListUseCases(ctx context.Context) ([]domain.UseCase, error)
	ListDevices(ctx context.Context, useCaseID string) (domain.DeviceList, error)
}

// FleetAggregator sums device counts for one use case or, when none is
// selected, for every use case the backend knows.
type FleetAggregator struct {
	Logger      *slog.Logger
	Backend     FleetBackend
	Concurrency int
}

// Summary returns the counts for useCaseID, or fleet-wide counts when it is
// empty. In fleet-wide mode a failed per-use-case fetch is left out of the
// totals and listed in Failed; only failing to list the use cases themselves
// is an error.
func (a FleetAggregator) Summary(ctx context.Context, useCaseID string) (domain.FleetSummary, error) {
	useCaseID = strings.TrimSpace(useCaseID)
	if useCaseID != "" {
		list, err := a.Backend.ListDevices(ctx, useCaseID)
		if err != nil {
			return domain.FleetSummary{}, err
		}
		uc := countDevices(useCaseID, list)
		return domain.FleetSummary{
			UseCases:      []domain.UseCaseDevices{uc},
			DeviceCount:   uc.DeviceCount,
			OnlineDevices: uc.OnlineDevices,
		}, nil
	}

	useCases, err := a.Backend.ListUseCases(ctx)
	if err != nil {
		return domain.FleetSummary{}, err
	}
	ids := make([]string, 0, len(useCases))
	for _, uc := range useCases {
		ids = append(ids, uc.UseCaseID)
	}
	return a.Aggregate(ctx, ids), nil
}

// Aggregate issues one device fetch per use case in parallel.
func (a FleetAggregator) Aggregate(ctx context.Context, useCaseIDs []string) domain.FleetSummary {
	type result struct {
		devices domain.UseCaseDevices
		err     error
	}
	results := make([]result, len(useCaseIDs))

	g, gctx := errgroup.WithContext(ctx)
	if a.Concurrency > 0 {
		g.SetLimit(a.Concurrency)
	}
	for i, id := range useCaseIDs {
		g.Go(func() error {
			list, err := a.Backend.ListDevices(gctx, id)
			if err != nil {
				results[i] = result{err: err}
				return nil
			}
			results[i] = result{devices: countDevices(id, list)}
			return nil
		})
	}
	_ = g.Wait()

	var summary domain.FleetSummary
	for i, res := range results {
		if res.err != nil {
			metrics.RecordFleetFetchFailure()
			if a.Logger != nil && !errors.Is(res.err, context.Canceled) {
				a.Logger.Warn("use case device fetch failed", "component", "fleet_aggregator", "usecase_id", useCaseIDs[i], "error", res.err)
			}
			summary.Failed = append(summary.Failed, useCaseIDs[i])
			continue
		}
		summary.UseCases = append(summary.UseCases, res.devices)
		summary.DeviceCount += res.devices.DeviceCount
		summary.OnlineDevices += res.devices.OnlineDevices
	}
	return summary
}

func countDevices(useCaseID string, list domain.DeviceList) domain.UseCaseDevices {
	online := 0
	for _, d := range list.Devices {
		if d.Online() {
			online++
		}
	}
	count := list.Count
	if count < len(list.Devices) {
		count = len(list.Devices)
	}
	return domain.UseCaseDevices{UseCaseID: useCaseID, DeviceCount: count, OnlineDevices: online}
}
