package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cyp0633/librecur/internal/httpclient"
)

func (q PreviewQuery) values() url.Values {
	v := url.Values{}
	if !q.At.IsZero() {
		v.Set("at", q.At.Format(time.RFC3339))
	}
	if q.WindowDays > 0 {
		v.Set("windowDays", strconv.Itoa(q.WindowDays))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Preview returns upcoming occurrences of a stored schedule
func (c *client) Preview(ctx context.Context, id string, q PreviewQuery) (*Preview, error) {
	var out Preview
	opts := httpclient.RequestOptions{Query: q.values()}
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, c.schedulePath(id)+"/preview", opts, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to preview schedule: %w", err)
	}
	return &out, nil
}

// PreviewConfig previews a configuration without storing it
func (c *client) PreviewConfig(ctx context.Context, config json.RawMessage, q PreviewQuery) (*Preview, error) {
	body := struct {
		Config     json.RawMessage `json:"config,omitempty"`
		Reference  *time.Time      `json:"reference,omitempty"`
		WindowDays int             `json:"windowDays,omitempty"`
		Limit      int             `json:"limit,omitempty"`
	}{
		Config:     config,
		WindowDays: q.WindowDays,
		Limit:      q.Limit,
	}
	if !q.At.IsZero() {
		body.Reference = &q.At
	}

	var out Preview
	if _, err := c.httpClient.DoJSON(ctx, http.MethodPost, "preview", httpclient.RequestOptions{}, body, &out); err != nil {
		return nil, fmt.Errorf("failed to preview config: %w", err)
	}
	return &out, nil
}

// Plan returns the instances the schedule wants materialized at; a zero at
// means the server's clock
func (c *client) Plan(ctx context.Context, id string, at time.Time) (*Plan, error) {
	var out Plan
	opts := httpclient.RequestOptions{Query: PreviewQuery{At: at}.values()}
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, c.schedulePath(id)+"/plan", opts, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to plan schedule: %w", err)
	}
	return &out, nil
}

// Export renders the schedule as iCalendar ("ics") or xCal ("xml")
func (c *client) Export(ctx context.Context, id, format string) ([]byte, error) {
	switch format {
	case "ics", "xml":
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	raw, err := c.httpClient.DoRaw(ctx, c.schedulePath(id)+"."+format)
	if err != nil {
		return nil, fmt.Errorf("failed to export schedule: %w", err)
	}
	return raw.Body, nil
}
