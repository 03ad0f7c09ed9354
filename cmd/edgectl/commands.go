package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/orchestration"
	"github.com/edgecv/fleet-console/internal/training"
)

type useCaseOut struct {
	UseCaseID string `json:"usecase_id" yaml:"usecase_id"`
	Name      string `json:"name" yaml:"name"`
}

type optionOut struct {
	ARN     string       `json:"arn" yaml:"arn"`
	Name    string       `json:"name" yaml:"name"`
	Version string       `json:"version" yaml:"version"`
	Scope   domain.Scope `json:"scope" yaml:"scope"`
}

type deviceOut struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
	Status   string `json:"status" yaml:"status"`
	Online   bool   `json:"online" yaml:"online"`
}

type catalogOut struct {
	UseCaseID string      `json:"usecase_id" yaml:"usecase_id"`
	Private   []optionOut `json:"private" yaml:"private"`
	Public    []optionOut `json:"public" yaml:"public"`
	Devices   []deviceOut `json:"devices" yaml:"devices"`
}

func newUseCasesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usecases",
		Short: "List use cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := a.backend(cmd)
			if err != nil {
				return err
			}
			useCases, err := be.ListUseCases(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]useCaseOut, 0, len(useCases))
			for _, uc := range useCases {
				out = append(out, useCaseOut{UseCaseID: uc.UseCaseID, Name: uc.Name})
			}
			return a.render(cmd.OutOrStdout(), out)
		},
	}
}

func newCatalogCommand(a *app) *cobra.Command {
	var useCaseID string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the components and devices available for a deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := a.backend(cmd)
			if err != nil {
				return err
			}
			form, err := orchestration.LoadDeploymentForm(cmd.Context(), a.logger, be, useCaseID)
			if err != nil {
				return err
			}
			out := catalogOut{UseCaseID: form.UseCaseID, Private: options(form.Private), Public: options(form.Public)}
			for _, d := range form.Devices {
				out.Devices = append(out.Devices, deviceOut{DeviceID: d.DeviceID, Status: d.Status, Online: d.Online()})
			}
			return a.render(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&useCaseID, "usecase", "", "use case id")
	_ = cmd.MarkFlagRequired("usecase")
	return cmd
}

func options(entries []domain.CatalogEntry) []optionOut {
	out := make([]optionOut, 0, len(entries))
	for _, e := range entries {
		name, version := orchestration.ParseComponentLabel(e.Label)
		out = append(out, optionOut{ARN: e.ARN, Name: name, Version: version, Scope: e.Scope})
	}
	return out
}

type deployResult struct {
	State        orchestration.SubmitState      `json:"state" yaml:"state"`
	DeploymentID string                         `json:"deployment_id,omitempty" yaml:"deployment_id,omitempty"`
	AutoIncluded []domain.AutoIncludedComponent `json:"auto_included,omitempty" yaml:"auto_included,omitempty"`
}

func newDeployCommand(a *app) *cobra.Command {
	var (
		useCaseID  string
		name       string
		components []string
		devices    []string
		thingGroup string
		timeout    string
		noRollback bool
		watch      bool
		pollEvery  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create a deployment of one or more components",
		Long: `Create a deployment of one or more components to a device list or a thing group.

Examples:
  edgectl deploy --usecase uc-1 --component arn:...:compA --device d1 --device d2
  edgectl deploy --usecase uc-1 --component arn:...:compA --thing-group line-3 --timeout 90 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(devices) > 0 && strings.TrimSpace(thingGroup) != "" {
				return fmt.Errorf("%w: use either --device or --thing-group", domain.ErrInvalidArgument)
			}
			be, err := a.backend(cmd)
			if err != nil {
				return err
			}
			form, err := orchestration.LoadDeploymentForm(cmd.Context(), a.logger, be, useCaseID)
			if err != nil {
				return err
			}

			session := orchestration.NewSession(uuid.NewString(), a.logger, be, nil)
			session.LoadForm(form, "")
			session.SetDeploymentName(name)
			for _, arn := range components {
				if _, err := session.AddComponent(strings.TrimSpace(arn)); err != nil {
					return err
				}
			}
			if strings.TrimSpace(thingGroup) != "" {
				session.UpdateTarget(domain.TargetModeThingGroup, nil, &thingGroup)
			} else {
				session.UpdateTarget(domain.TargetModeDevices, devices, nil)
			}
			autoRollback := !noRollback
			session.UpdateRollout(&autoRollback, &timeout)

			snap, err := session.Submit(cmd.Context(), orchestration.SubmitMeta{Actor: actor()})
			if err != nil {
				return err
			}
			if snap.State == orchestration.StateFailed {
				return errors.New(snap.Error)
			}
			if err := a.render(cmd.OutOrStdout(), deployResult{State: snap.State, DeploymentID: snap.DeploymentID, AutoIncluded: snap.AutoIncluded}); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			deploymentID, err := session.ViewDeployment()
			if err != nil {
				return err
			}
			return a.watchDeployment(cmd, be, useCaseID, deploymentID, pollEvery)
		},
	}
	f := cmd.Flags()
	f.StringVar(&useCaseID, "usecase", "", "use case id")
	f.StringVar(&name, "name", "", "deployment name")
	f.StringArrayVar(&components, "component", nil, "component ARN (repeatable)")
	f.StringArrayVar(&devices, "device", nil, "target device id (repeatable)")
	f.StringVar(&thingGroup, "thing-group", "", "target thing group")
	f.StringVar(&timeout, "timeout", "60", "rollout timeout in seconds")
	f.BoolVar(&noRollback, "no-auto-rollback", false, "disable automatic rollback on failure")
	f.BoolVar(&watch, "watch", false, "follow the deployment until it settles")
	f.DurationVar(&pollEvery, "interval", orchestration.DeploymentPollInterval, "status poll interval for --watch")
	_ = cmd.MarkFlagRequired("usecase")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	var (
		useCaseID    string
		deploymentID string
		pollEvery    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a deployment until it settles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := a.backend(cmd)
			if err != nil {
				return err
			}
			return a.watchDeployment(cmd, be, useCaseID, deploymentID, pollEvery)
		},
	}
	cmd.Flags().StringVar(&useCaseID, "usecase", "", "use case id")
	cmd.Flags().StringVar(&deploymentID, "deployment", "", "deployment id")
	cmd.Flags().DurationVar(&pollEvery, "interval", orchestration.DeploymentPollInterval, "status poll interval")
	_ = cmd.MarkFlagRequired("usecase")
	_ = cmd.MarkFlagRequired("deployment")
	return cmd
}

type watchLine struct {
	ObservedAt time.Time             `json:"observed_at" yaml:"observed_at"`
	Summary    orchestration.Summary `json:"summary" yaml:"summary"`
	Progress   string                `json:"progress" yaml:"progress"`
	Error      string                `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *app) watchDeployment(cmd *cobra.Command, be cliBackend, useCaseID, deploymentID string, interval time.Duration) error {
	watcher := orchestration.DeploymentWatcher{Logger: a.logger, Getter: be, Interval: interval}
	var last orchestration.Summary
	err := watcher.Watch(cmd.Context(), useCaseID, deploymentID, func(o orchestration.Observation[orchestration.Summary]) {
		line := watchLine{ObservedAt: o.ObservedAt, Summary: o.Value, Progress: o.Value.Progress.String()}
		if o.Err != nil {
			line.Error = o.Err.Error()
		} else {
			last = o.Value
		}
		_ = a.renderLine(cmd.OutOrStdout(), line)
	})
	if err != nil {
		return err
	}
	if last.Severity == domain.SeverityError {
		return fmt.Errorf("deployment %s %s", deploymentID, last.Status)
	}
	return nil
}

func newFleetCommand(a *app) *cobra.Command {
	var (
		useCaseID   string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Summarize device counts for one use case or the whole fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := a.backend(cmd)
			if err != nil {
				return err
			}
			agg := orchestration.FleetAggregator{Logger: a.logger, Backend: be, Concurrency: concurrency}
			summary, err := agg.Summary(cmd.Context(), useCaseID)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&useCaseID, "usecase", "", "use case id (all use cases when empty)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "parallel device fetches")
	return cmd
}

func newTrainingCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Follow or stop training jobs",
	}

	var statusEvery, logsEvery time.Duration
	watch := &cobra.Command{
		Use:   "watch JOB_ID",
		Short: "Follow a training job's status and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := a.backend(cmd)
			if err != nil {
				return err
			}
			w := training.NewWatcher(a.logger, be).WithIntervals(statusEvery, logsEvery)
			out := cmd.OutOrStdout()
			return w.Watch(cmd.Context(), args[0], func(u training.Update) {
				if u.Kind == training.UpdateLogs && a.output == "yaml" {
					for _, e := range u.Events {
						fmt.Fprintf(out, "%s %s\n", e.Timestamp.Format(time.RFC3339), e.Message)
					}
					return
				}
				_ = a.renderLine(out, u)
			})
		},
	}
	watch.Flags().DurationVar(&statusEvery, "status-interval", orchestration.DeploymentPollInterval, "job status poll interval")
	watch.Flags().DurationVar(&logsEvery, "log-interval", orchestration.LogTailInterval, "log tail poll interval")

	stop := &cobra.Command{
		Use:   "stop JOB_ID",
		Short: "Stop a training job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := a.backend(cmd)
			if err != nil {
				return err
			}
			if err := training.NewWatcher(a.logger, be).Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stop requested for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(watch, stop)
	return cmd
}

func actor() string {
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return user
	}
	return "edgectl"
}
