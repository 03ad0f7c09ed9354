package orchestration

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgecv/fleet-console/internal/domain"
)

type CatalogBackend interface {
	ListComponents(ctx context.Context, useCaseID string, scope domain.Scope) ([]domain.Component, error)
	ListDevices(ctx context.Context, useCaseID string) (domain.DeviceList, error)
}

// DeploymentForm is everything the deployment form offers for one use case.
type DeploymentForm struct {
	UseCaseID string
	Private   []domain.CatalogEntry
	Public    []domain.CatalogEntry
	Devices   []domain.Device
}

// Lookup finds a catalog entry by exact ARN across both scopes.
func (f DeploymentForm) Lookup(arn string) (domain.CatalogEntry, bool) {
	for _, e := range f.Private {
		if e.ARN == arn {
			return e, true
		}
	}
	for _, e := range f.Public {
		if e.ARN == arn {
			return e, true
		}
	}
	return domain.CatalogEntry{}, false
}

// LoadDeploymentForm fetches private components, public components and
// devices in parallel. Public components are optional: their failure yields
// an empty list. The other two failures are returned.
func LoadDeploymentForm(ctx context.Context, logger *slog.Logger, backend CatalogBackend, useCaseID string) (DeploymentForm, error) {
	form := DeploymentForm{UseCaseID: useCaseID}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		comps, err := backend.ListComponents(gctx, useCaseID, domain.ScopePrivate)
		if err != nil {
			return err
		}
		form.Private = catalogEntries(comps, domain.ScopePrivate)
		return nil
	})
	g.Go(func() error {
		comps, err := backend.ListComponents(gctx, useCaseID, domain.ScopePublic)
		if err != nil {
			if logger != nil && !errors.Is(err, context.Canceled) {
				logger.Debug("public component catalog unavailable", "component", "catalog", "usecase_id", useCaseID, "error", err)
			}
			return nil
		}
		form.Public = catalogEntries(comps, domain.ScopePublic)
		return nil
	})
	g.Go(func() error {
		list, err := backend.ListDevices(gctx, useCaseID)
		if err != nil {
			return err
		}
		form.Devices = list.Devices
		return nil
	})

	if err := g.Wait(); err != nil {
		return DeploymentForm{}, err
	}
	if form.Public == nil {
		form.Public = []domain.CatalogEntry{}
	}
	return form, nil
}

func catalogEntries(comps []domain.Component, scope domain.Scope) []domain.CatalogEntry {
	out := make([]domain.CatalogEntry, 0, len(comps))
	for _, c := range comps {
		out = append(out, c.CatalogEntry(scope))
	}
	return out
}
