// Package objstore is a minimal Google Cloud Storage JSON API client covering
// the calls used by the object-store workload: object reads and the
// resumable upload session lifecycle.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/torosent/perfgauge/internal/httpclient"
)

// DefaultEndpoint is the public JSON API endpoint.
const DefaultEndpoint = "https://storage.googleapis.com"

// ErrNoUploadID is returned when a resumable upload response lacks a session URI.
var ErrNoUploadID = errors.New("objstore: resumable upload response has no Location header")

// StatusError reports a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("objstore %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("objstore %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unauthorized reports whether the credentials were rejected.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// SessionGone reports whether an upload session no longer exists.
func (e *StatusError) SessionGone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// Config configures a Client.
type Config struct {
	Endpoint   string
	Project    string
	Timeout    time.Duration
	Auth       httpclient.AuthProvider // optional
	HTTPClient *http.Client            // optional; built from Timeout when nil
}

// Client issues JSON API calls. It is safe for concurrent use.
type Client struct {
	endpoint string
	project  string
	auth     httpclient.AuthProvider
	http     *http.Client
}

// ReadResult describes one object read.
type ReadResult struct {
	Bytes int64
}

// UploadStatus describes a resumable upload session as reported by the server.
type UploadStatus struct {
	// Committed bytes persisted so far; -1 when the Range header is malformed.
	Committed int64
	// Complete is set once the object has been finalized.
	Complete bool
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("objstore: invalid endpoint %q", cfg.Endpoint)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.NewClient(cfg.Timeout)
	}
	return &Client{
		endpoint: endpoint,
		project:  cfg.Project,
		auth:     cfg.Auth,
		http:     hc,
	}, nil
}

// ReadObject downloads bucket/object and discards the payload.
func (c *Client) ReadObject(ctx context.Context, bucket, object string) (ReadResult, error) {
	return c.read(ctx, "read", bucket, object, "")
}

// RangeRead downloads length bytes of bucket/object starting at offset.
func (c *Client) RangeRead(ctx context.Context, bucket, object string, offset, length int64) (ReadResult, error) {
	if offset < 0 || length <= 0 {
		return ReadResult{}, fmt.Errorf("objstore: invalid range offset=%d length=%d", offset, length)
	}
	return c.read(ctx, "range_read", bucket, object, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
}

func (c *Client) read(ctx context.Context, op, bucket, object, byteRange string) (ReadResult, error) {
	target := fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
		c.endpoint, url.PathEscape(bucket), url.PathEscape(object))
	if c.project != "" {
		target += "&userProject=" + url.QueryEscape(c.project)
	}
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ReadResult{}, err
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ReadResult{}, err
	}
	if err := checkStatus(op, resp); err != nil {
		return ReadResult{}, err
	}
	n, err := httpclient.Drain(resp)
	return ReadResult{Bytes: n}, err
}

// StartResumableWrite opens a resumable upload session for bucket/object and
// returns its session URI.
func (c *Client) StartResumableWrite(ctx context.Context, bucket, object string) (string, error) {
	target := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=resumable&name=%s",
		c.endpoint, url.PathEscape(bucket), url.QueryEscape(object))
	req, err := c.newRequest(ctx, http.MethodPost, target, strings.NewReader("{}"))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	if err := checkStatus("start_resumable_write", resp); err != nil {
		return "", err
	}
	_, _ = httpclient.Drain(resp)

	uploadID := resp.Header.Get("Location")
	if uploadID == "" {
		return "", ErrNoUploadID
	}
	return uploadID, nil
}

// QueryWriteStatus asks the server how much of an upload session has been
// persisted.
func (c *Client) QueryWriteStatus(ctx context.Context, uploadID string) (UploadStatus, error) {
	req, err := c.newRequest(ctx, http.MethodPut, uploadID, nil)
	if err != nil {
		return UploadStatus{}, err
	}
	req.Header.Set("Content-Range", "bytes */*")
	req.ContentLength = 0

	resp, err := c.http.Do(req)
	if err != nil {
		return UploadStatus{}, err
	}
	defer httpclient.Drain(resp)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return UploadStatus{Committed: resp.ContentLength, Complete: true}, nil
	case resp.StatusCode == http.StatusPermanentRedirect:
		return UploadStatus{Committed: committedBytes(resp.Header.Get("Range"))}, nil
	default:
		return UploadStatus{}, statusError("query_write_status", resp)
	}
}

// DeleteWrite cancels an upload session. A session that is already gone is
// not an error.
func (c *Client) DeleteWrite(ctx context.Context, uploadID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, uploadID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httpclient.Drain(resp)

	// The server answers 499 once a session has been cancelled.
	if resp.StatusCode == 499 || resp.StatusCode < 300 {
		return nil
	}
	se := statusError("delete_write", resp)
	if se.SessionGone() {
		return nil
	}
	return se
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.auth != nil {
		if err := c.auth.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("objstore: inject auth header: %w", err)
		}
	}
	return req, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer httpclient.Drain(resp)
	return statusError(op, resp)
}

func statusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// committedBytes parses a "bytes=0-N" Range header into N+1.
func committedBytes(h string) int64 {
	if h == "" {
		return 0
	}
	var lo, hi int64
	if _, err := fmt.Sscanf(h, "bytes=%d-%d", &lo, &hi); err != nil {
		return -1
	}
	return hi + 1
}
