package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// HttpClientWrapper wraps http.Client with the schedule API's conventions:
// JSON bodies, ETag preconditions and JSON error payloads.
type HttpClientWrapper interface {
	DoJSON(ctx context.Context, method, url string, opts RequestOptions, body, out any) (etag string, err error)
	DoRaw(ctx context.Context, url string) (*RawResponse, error)
	DoDELETE(ctx context.Context, url string, etag string) error
}

// RequestOptions carries the optional preconditions of a request
type RequestOptions struct {
	IfMatch     string
	IfNoneMatch string
	Query       url.Values
}

// RawResponse is a non-JSON body, such as a calendar export
type RawResponse struct {
	ContentType string
	ETag        string
	Body        []byte
}

type httpClientWrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// resolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) resolveURL(urlStr string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	resolved := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		resolved.RawQuery = query.Encode()
	}
	return resolved, nil
}

// NewHttpClientWrapper creates a new client wrapper with logging. Authentication
// is left to client's transport, see BasicAuthTransport.
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger) (HttpClientWrapper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClientWrapper{client: client, baseURL: baseURL, logger: logger}, nil
}

// DoRaw fetches urlStr and returns the body as is
func (c *httpClientWrapper) DoRaw(ctx context.Context, urlStr string) (*RawResponse, error) {
	resolvedURL, err := c.resolveURL(urlStr, nil)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolvedURL.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	c.logger.Debug("received response", "status", resp.Status)

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &RawResponse{
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		Body:        data,
	}, nil
}
