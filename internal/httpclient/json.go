package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DoJSON sends body, when non-nil, as JSON and decodes a successful response
// into out, when non-nil. It returns the response's ETag.
func (c *httpClientWrapper) DoJSON(ctx context.Context, method, urlStr string, opts RequestOptions, body, out any) (etag string, err error) {
	c.logger.Debug("starting request",
		"method", method,
		"url", urlStr,
		"if_match", opts.IfMatch)

	resolvedURL, err := c.resolveURL(urlStr, opts.Query)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", urlStr, "error", err)
		return "", err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, resolvedURL.String(), reader)
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if opts.IfMatch != "" {
		req.Header.Set("If-Match", opts.IfMatch)
	}
	if opts.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", opts.IfNoneMatch)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return "", fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("received response", "status", resp.Status)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("unexpected status code",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return "", readStatusError(resp)
	}

	etag = resp.Header.Get("ETag")
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return etag, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	c.logger.Debug("request complete",
		"method", method,
		"status", resp.Status,
		"etag", etag)
	return etag, nil
}
