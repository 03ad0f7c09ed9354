package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/metrics"
	"github.com/edgecv/fleet-console/internal/platform/requestid"
)

const maxErrorBody = 64 << 10

// Client calls the backend API. The http.Client is expected to carry
// credentials (see internal/platform/auth).
type Client struct {
	logger    *slog.Logger
	baseURL   *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func New(logger *slog.Logger, cfg Config, httpClient *http.Client) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		clone := *httpClient
		clone.Timeout = cfg.Timeout
		httpClient = &clone
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		logger:    logger,
		baseURL:   base,
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		userAgent: cfg.UserAgent,
	}, nil
}

func (c *Client) ListUseCases(ctx context.Context) ([]domain.UseCase, error) {
	var resp listUseCasesResponse
	if err := c.do(ctx, "list_usecases", http.MethodGet, "/usecases", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.UseCase, 0, len(resp.UseCases))
	for _, uc := range resp.UseCases {
		out = append(out, domain.UseCase{UseCaseID: uc.UseCaseID, Name: uc.Name, AccountID: uc.AccountID})
	}
	return out, nil
}

func (c *Client) ListComponents(ctx context.Context, useCaseID string, scope domain.Scope) ([]domain.Component, error) {
	q := url.Values{}
	q.Set("scope", string(scope))
	var resp listComponentsResponse
	if err := c.do(ctx, "list_components", http.MethodGet, "/usecases/"+url.PathEscape(useCaseID)+"/components", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Component, 0, len(resp.Components))
	for _, comp := range resp.Components {
		item := domain.Component{
			ComponentName: comp.ComponentName,
			ARN:           comp.ARN,
			Description:   comp.Description,
		}
		if comp.LatestVersion != nil {
			item.LatestVersion = comp.LatestVersion.ComponentVersion
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Client) ListDevices(ctx context.Context, useCaseID string) (domain.DeviceList, error) {
	var resp listDevicesResponse
	if err := c.do(ctx, "list_devices", http.MethodGet, "/usecases/"+url.PathEscape(useCaseID)+"/devices", nil, nil, &resp); err != nil {
		return domain.DeviceList{}, err
	}
	list := domain.DeviceList{Devices: make([]domain.Device, 0, len(resp.Devices)), Count: resp.Count}
	for _, d := range resp.Devices {
		list.Devices = append(list.Devices, domain.Device{DeviceID: d.DeviceID, Status: d.Status, Platform: d.Platform})
	}
	if list.Count < len(list.Devices) {
		list.Count = len(list.Devices)
	}
	return list, nil
}

func (c *Client) CreateDeployment(ctx context.Context, req domain.DeploymentRequest) (domain.CreateDeploymentResult, error) {
	payload, err := payloadFromRequest(req)
	if err != nil {
		return domain.CreateDeploymentResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	var resp createDeploymentResponse
	path := "/usecases/" + url.PathEscape(req.UseCaseID) + "/deployments"
	if err := c.do(ctx, "create_deployment", http.MethodPost, path, nil, payload, &resp); err != nil {
		return domain.CreateDeploymentResult{}, err
	}
	if strings.TrimSpace(resp.DeploymentID) == "" {
		return domain.CreateDeploymentResult{}, errors.New("backend returned no deployment id")
	}
	return domain.CreateDeploymentResult{DeploymentID: resp.DeploymentID, AutoIncluded: resp.AutoIncluded}, nil
}

func (c *Client) ListDeployments(ctx context.Context, useCaseID string) ([]domain.DeploymentRecord, error) {
	var resp listDeploymentsResponse
	if err := c.do(ctx, "list_deployments", http.MethodGet, "/usecases/"+url.PathEscape(useCaseID)+"/deployments", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.DeploymentRecord, 0, len(resp.Deployments))
	for _, d := range resp.Deployments {
		rec := d.record()
		if rec.UseCaseID == "" {
			rec.UseCaseID = useCaseID
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetDeployment finds one deployment in the use case's list.
func (c *Client) GetDeployment(ctx context.Context, useCaseID, deploymentID string) (domain.DeploymentRecord, error) {
	records, err := c.ListDeployments(ctx, useCaseID)
	if err != nil {
		return domain.DeploymentRecord{}, err
	}
	for _, rec := range records {
		if rec.DeploymentID == deploymentID {
			return rec, nil
		}
	}
	return domain.DeploymentRecord{}, fmt.Errorf("deployment %s: %w", deploymentID, domain.ErrNotFound)
}

func (c *Client) GetTrainingJob(ctx context.Context, jobID string) (domain.TrainingJob, error) {
	var resp trainingJobJSON
	if err := c.do(ctx, "get_training_job", http.MethodGet, "/training-jobs/"+url.PathEscape(jobID), nil, nil, &resp); err != nil {
		return domain.TrainingJob{}, err
	}
	job := resp.job()
	if job.JobID == "" {
		job.JobID = jobID
	}
	return job, nil
}

func (c *Client) GetTrainingLogs(ctx context.Context, jobID, nextToken string) (domain.TrainingLogPage, error) {
	q := url.Values{}
	if nextToken != "" {
		q.Set("next_token", nextToken)
	}
	var resp trainingLogsResponse
	if err := c.do(ctx, "get_training_logs", http.MethodGet, "/training-jobs/"+url.PathEscape(jobID)+"/logs", q, nil, &resp); err != nil {
		return domain.TrainingLogPage{}, err
	}
	return domain.TrainingLogPage{Events: resp.Events, NextToken: resp.NextToken}, nil
}

func (c *Client) StopTrainingJob(ctx context.Context, jobID string) error {
	return c.do(ctx, "stop_training_job", http.MethodPost, "/training-jobs/"+url.PathEscape(jobID)+"/stop", nil, struct{}{}, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveBackendCall(op, err, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", op, err)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		reader = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if id, ok := requestid.FromContext(ctx); ok {
		req.Header.Set(requestid.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Operation: op, Status: resp.StatusCode}
		var eb errorBody
		if blob, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); readErr == nil && len(blob) > 0 {
			if json.Unmarshal(blob, &eb) == nil {
				apiErr.Code = eb.Code
				if apiErr.Code == "" {
					apiErr.Code = eb.Error
				}
				apiErr.Message = eb.message()
			}
		}
		c.logger.Warn("backend request failed", "component", "backend_client", "operation", op, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
