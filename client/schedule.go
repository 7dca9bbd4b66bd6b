package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cyp0633/librecur/internal/httpclient"
)

func (c *client) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	var out []*Schedule
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, c.homePath(), httpclient.RequestOptions{}, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return out, nil
}

func (c *client) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	return c.doSchedule(ctx, http.MethodGet, c.schedulePath(id), httpclient.RequestOptions{}, nil, "get")
}

// CreateSchedule creates a schedule; the server picks an id when req.ID is empty
func (c *client) CreateSchedule(ctx context.Context, req ScheduleRequest) (*Schedule, error) {
	return c.doSchedule(ctx, http.MethodPost, c.homePath(), httpclient.RequestOptions{}, req, "create")
}

// UpdateSchedule merges req into the stored schedule. A non-empty etag makes
// the update fail with 412 when the schedule changed in between.
func (c *client) UpdateSchedule(ctx context.Context, id string, req ScheduleRequest, etag string) (*Schedule, error) {
	return c.doSchedule(ctx, http.MethodPatch, c.schedulePath(id), httpclient.RequestOptions{IfMatch: etag}, req, "update")
}

// ReplaceSchedule resets the configuration to the defaults merged with req
func (c *client) ReplaceSchedule(ctx context.Context, id string, req ScheduleRequest, etag string) (*Schedule, error) {
	return c.doSchedule(ctx, http.MethodPut, c.schedulePath(id), httpclient.RequestOptions{IfMatch: etag}, req, "replace")
}

// DeleteSchedule deletes a schedule with optimistic locking using etag
func (c *client) DeleteSchedule(ctx context.Context, id string, etag string) error {
	if err := c.httpClient.DoDELETE(ctx, c.schedulePath(id), etag); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

func (c *client) ListExceptions(ctx context.Context, id string) ([]string, error) {
	var out []string
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, c.schedulePath(id)+"/exdates", httpclient.RequestOptions{}, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list exceptions: %w", err)
	}
	return out, nil
}

func (c *client) AddException(ctx context.Context, id, date string) (*Schedule, error) {
	body := struct {
		Date string `json:"date"`
	}{date}
	return c.doSchedule(ctx, http.MethodPost, c.schedulePath(id)+"/exdates", httpclient.RequestOptions{}, body, "add exception to")
}

func (c *client) RemoveException(ctx context.Context, id, date string) (*Schedule, error) {
	return c.doSchedule(ctx, http.MethodDelete, c.schedulePath(id)+"/exdates/"+date, httpclient.RequestOptions{}, nil, "remove exception from")
}

func (c *client) doSchedule(ctx context.Context, method, path string, opts httpclient.RequestOptions, body any, action string) (*Schedule, error) {
	var out Schedule
	etag, err := c.httpClient.DoJSON(ctx, method, path, opts, body, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to %s schedule: %w", action, err)
	}
	// The header is authoritative when both are present
	if etag != "" {
		out.ETag = etag
	}
	return &out, nil
}
