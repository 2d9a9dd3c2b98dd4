// Package resthttp is the legacy HTTP transport used only for bucket
// properties get/set/reset (spec §1: the binary protocol has no
// reset-bucket-properties message in this core's scope; Riak's REST
// API has always carried this operation). It is a thin, unauthenticated
// JSON-over-HTTP client — no retry/pooling of its own, since the
// dispatcher in internal/cluster does not arbitrate HTTP endpoints;
// a bucket-properties call simply goes straight to the one configured
// HTTPAddr for its node.
//
// Grounded on the call-site idiom visible in backend/b2/b2.go and
// backend/sftp/sftp.go's use of lib/rest.Call (build an *http.Request,
// decode a typed JSON body, map non-2xx statuses to a typed error) —
// lib/rest's own implementation was not retrieved, only its test
// fixtures, so this package is written directly against net/http
// rather than adapted from source we never saw.
package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resthttp: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client issues bucket-properties requests against one node's legacy
// HTTP interface.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New builds a Client; httpClient may be nil to use http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTPClient: httpClient}
}

func (c *Client) propsURL(bucketType, bucket string) string {
	if bucketType != "" {
		return fmt.Sprintf("%s/types/%s/buckets/%s/props", c.BaseURL, bucketType, bucket)
	}
	return fmt.Sprintf("%s/buckets/%s/props", c.BaseURL, bucket)
}

// GetProps fetches a bucket's properties.
func (c *Client) GetProps(ctx context.Context, bucketType, bucket string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.propsURL(bucketType, bucket), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var out struct {
		Props map[string]interface{} `json:"props"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Props, nil
}

// SetProps overwrites the given bucket properties.
func (c *Client) SetProps(ctx context.Context, bucketType, bucket string, props map[string]interface{}) error {
	payload, err := json.Marshal(struct {
		Props map[string]interface{} `json:"props"`
	}{Props: props})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.propsURL(bucketType, bucket), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// ResetProps restores a bucket's properties to server defaults.
// Per spec §6 a 404 here means the bucket never had custom properties
// set and is reported to the caller as not-found, not as a transport
// failure — callers distinguish via IsNotFoundStatus.
func (c *Client) ResetProps(ctx context.Context, bucketType, bucket string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.propsURL(bucketType, bucket), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// IsNotFoundStatus reports whether err is a StatusError carrying a 404.
func IsNotFoundStatus(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == http.StatusNotFound
}
