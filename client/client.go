// Package client talks to a librecur schedule server over its JSON API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyp0633/librecur/internal/httpclient"
	"github.com/cyp0633/librecur/recurrence"
)

// Client defines the schedule API operations for one user
type Client interface {
	Health(ctx context.Context) error

	ListSchedules(ctx context.Context) ([]*Schedule, error)
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	CreateSchedule(ctx context.Context, req ScheduleRequest) (*Schedule, error)
	UpdateSchedule(ctx context.Context, id string, req ScheduleRequest, etag string) (*Schedule, error)
	ReplaceSchedule(ctx context.Context, id string, req ScheduleRequest, etag string) (*Schedule, error)
	DeleteSchedule(ctx context.Context, id string, etag string) error

	ListExceptions(ctx context.Context, id string) ([]string, error)
	AddException(ctx context.Context, id, date string) (*Schedule, error)
	RemoveException(ctx context.Context, id, date string) (*Schedule, error)

	Preview(ctx context.Context, id string, q PreviewQuery) (*Preview, error)
	PreviewConfig(ctx context.Context, config json.RawMessage, q PreviewQuery) (*Preview, error)
	Plan(ctx context.Context, id string, at time.Time) (*Plan, error)
	Export(ctx context.Context, id, format string) ([]byte, error)
}

// Schedule is a stored schedule as the server returns it. Config is kept as
// raw JSON so it round-trips untouched.
type Schedule struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name"`
	Config        json.RawMessage `json:"config"`
	ETag          string          `json:"etag"`
	Created       time.Time       `json:"created"`
	Modified      time.Time       `json:"modified"`
	LastScheduled *time.Time      `json:"lastScheduled"`
	PreviousOpen  bool            `json:"previousOpen"`
}

// ScheduleRequest creates or updates a schedule. Config is a partial
// configuration object; omitted fields keep their current (or default) value.
type ScheduleRequest struct {
	ID           string          `json:"id,omitempty"`
	Name         *string         `json:"name,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	PreviousOpen *bool           `json:"previousOpen,omitempty"`
}

// PreviewQuery narrows a preview; zero values use the server defaults
type PreviewQuery struct {
	At         time.Time
	WindowDays int
	Limit      int
}

// Preview is the next occurrences of a schedule
type Preview struct {
	Rule        string      `json:"rule"`
	Reference   time.Time   `json:"reference"`
	Occurrences []time.Time `json:"occurrences"`
}

// Plan is what the job-creation side should materialize at Now
type Plan struct {
	Now       time.Time             `json:"now"`
	Instances []recurrence.Instance `json:"instances"`
}

type client struct {
	httpClient httpclient.HttpClientWrapper
	userID     string
}

// NewClient creates a client for userID's schedules
func NewClient(httpClient httpclient.HttpClientWrapper, userID string) Client {
	return &client{
		httpClient: httpClient,
		userID:     userID,
	}
}

// Config holds optional settings for Dial
type Config struct {
	Logger    *slog.Logger
	Transport http.RoundTripper
	Timeout   time.Duration
}

// Dial creates a client for the server rooted at baseURL, authenticating
// with Basic Auth as username
func Dial(baseURL, username, password string, cfg *Config) (Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server URL %q must be absolute", baseURL)
	}
	// relative references resolve below the prefix only with a trailing slash
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: httpclient.NewBasicAuthTransport(username, password, cfg.Transport, logger),
	}
	wrapper, err := httpclient.NewHttpClientWrapper(httpClient, *base, logger)
	if err != nil {
		return nil, err
	}
	return NewClient(wrapper, username), nil
}

func (c *client) homePath() string {
	return "u/" + url.PathEscape(c.userID) + "/sched"
}

func (c *client) schedulePath(id string) string {
	return c.homePath() + "/" + url.PathEscape(id)
}

func (c *client) Health(ctx context.Context) error {
	if _, err := c.httpClient.DoRaw(ctx, "healthz"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
