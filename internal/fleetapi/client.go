// Package fleetapi adapts a REST fleet-manager API to the backend
// interfaces. The manager fronts the real queue, fleet, and scheduler
// services; this client never sees their wire formats.
package fleetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/backscale/backscale/internal/backend"
	"github.com/backscale/backscale/pkg/scaling"
)

// Client talks to a fleet-manager API.
type Client struct {
	baseURL string
	queueID string
	fleetID string
	http    *http.Client
}

var (
	_ backend.QueueBackend = (*Client)(nil)
	_ backend.FleetBackend = (*Client)(nil)
	_ backend.WorkBackend  = (*Client)(nil)
)

// New creates a client for the manager at baseURL. queueID and fleetID are
// passed on every request so one manager can front several fleets.
func New(baseURL, queueID, fleetID string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		queueID: queueID,
		fleetID: fleetID,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Depth(ctx context.Context) (backend.QueueDepth, error) {
	var out struct {
		Visible  uint `json:"visible"`
		InFlight uint `json:"in_flight"`
	}
	if err := c.getJSON(ctx, "/v1/queue/depth", url.Values{"queue": {c.queueID}}, &out); err != nil {
		return backend.QueueDepth{}, err
	}
	return backend.QueueDepth{Visible: out.Visible, InFlight: out.InFlight}, nil
}

func (c *Client) Describe(ctx context.Context) (backend.FleetDescription, error) {
	var out struct {
		Active  uint `json:"active"`
		Desired uint `json:"desired"`
		Max     uint `json:"max"`
	}
	if err := c.getJSON(ctx, "/v1/fleet", url.Values{"fleet": {c.fleetID}}, &out); err != nil {
		return backend.FleetDescription{}, err
	}
	return backend.FleetDescription{Active: out.Active, Desired: out.Desired, Max: out.Max}, nil
}

func (c *Client) SetDesiredCapacity(ctx context.Context, n uint) error {
	body := map[string]any{"fleet": c.fleetID, "desired": n}
	return c.postJSON(ctx, "/v1/fleet/desired", body, nil)
}

func (c *Client) ListStoppedUnits(ctx context.Context) ([]scaling.UnitID, error) {
	var out struct {
		Units []scaling.UnitID `json:"units"`
	}
	if err := c.getJSON(ctx, "/v1/fleet/stopped", url.Values{"fleet": {c.fleetID}}, &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

func (c *Client) StartUnits(ctx context.Context, ids []scaling.UnitID) (backend.StartResult, error) {
	body := map[string]any{"fleet": c.fleetID, "units": ids}
	var out struct {
		Started []scaling.UnitID `json:"started"`
		Errors  []string         `json:"errors"`
	}
	if err := c.postJSON(ctx, "/v1/fleet/start", body, &out); err != nil {
		return backend.StartResult{}, err
	}
	return backend.StartResult{Started: out.Started, Errors: out.Errors}, nil
}

func (c *Client) DescribeWarmPool(ctx context.Context) ([]scaling.UnitID, error) {
	var out struct {
		Units []scaling.UnitID `json:"units"`
	}
	if err := c.getJSON(ctx, "/v1/fleet/warm-pool", url.Values{"fleet": {c.fleetID}}, &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

func (c *Client) CountRunning(ctx context.Context) (uint, error) {
	var out struct {
		Count uint `json:"count"`
	}
	if err := c.getJSON(ctx, "/v1/work/running", url.Values{"fleet": {c.fleetID}}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Launch(ctx context.Context, count uint, spec backend.LaunchSpec) (backend.LaunchResult, error) {
	body := map[string]any{
		"fleet":           c.fleetID,
		"count":           count,
		"cluster":         spec.Cluster,
		"task_definition": spec.TaskDefinition,
	}
	var out struct {
		Launched []scaling.TaskID `json:"launched"`
		Failures []string         `json:"failures"`
	}
	if err := c.postJSON(ctx, "/v1/work/launch", body, &out); err != nil {
		return backend.LaunchResult{}, err
	}
	return backend.LaunchResult{Launched: out.Launched, Failures: out.Failures}, nil
}

func (c *Client) ListRunning(ctx context.Context) ([]scaling.TaskID, error) {
	var out struct {
		Tasks []scaling.TaskID `json:"tasks"`
	}
	if err := c.getJSON(ctx, "/v1/work/tasks", url.Values{"fleet": {c.fleetID}}, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) Stop(ctx context.Context, id scaling.TaskID, reason string) error {
	body := map[string]any{"fleet": c.fleetID, "task": id, "reason": reason}
	return c.postJSON(ctx, "/v1/work/stop", body, nil)
}

func (c *Client) ListCapacityUnits(ctx context.Context) ([]scaling.UnitID, error) {
	var out struct {
		Units []scaling.UnitID `json:"units"`
	}
	if err := c.getJSON(ctx, "/v1/work/capacity", url.Values{"fleet": {c.fleetID}}, &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("manager returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
