package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edgecv/fleet-console/internal/backend"
	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/platform/auth"
	"github.com/edgecv/fleet-console/internal/training"
)

// cliBackend is the backend surface the commands use.
type cliBackend interface {
	orchestration.CatalogBackend
	orchestration.FleetBackend
	orchestration.DeploymentCreator
	orchestration.DeploymentGetter
	training.Backend
}

type app struct {
	logger  *slog.Logger
	connect func(ctx context.Context, backendURL string, logger *slog.Logger) (cliBackend, error)

	backendURL string
	output     string
}

func connectBackend(ctx context.Context, backendURL string, logger *slog.Logger) (cliBackend, error) {
	cfg, err := backend.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if backendURL != "" {
		cfg.BaseURL = strings.TrimRight(backendURL, "/")
	}
	cfg.UserAgent = "edgectl"
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	httpClient, err := auth.HTTPClient(ctx, authCfg, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	client, err := backend.New(logger, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "edgectl",
		Short:         "Deploy and track computer-vision models on edge devices",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case "yaml", "json":
				return nil
			default:
				return fmt.Errorf("%w: --output must be yaml or json", domain.ErrInvalidArgument)
			}
		},
	}
	root.PersistentFlags().StringVar(&a.backendURL, "backend-url", "", "backend API base URL (defaults to BACKEND_URL)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "yaml", "output format: yaml or json")

	root.AddCommand(
		newUseCasesCommand(a),
		newCatalogCommand(a),
		newDeployCommand(a),
		newWatchCommand(a),
		newFleetCommand(a),
		newTrainingCommand(a),
	)
	return root
}

func (a *app) backend(cmd *cobra.Command) (cliBackend, error) {
	return a.connect(cmd.Context(), a.backendURL, a.logger)
}

func (a *app) render(w io.Writer, v any) error {
	if a.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// renderLine writes one compact record per line for streaming output.
func (a *app) renderLine(w io.Writer, v any) error {
	if a.output == "json" {
		return json.NewEncoder(w).Encode(v)
	}
	blob, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "---\n%s", blob)
	return err
}
