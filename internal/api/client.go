// Package api is the HTTP client for the data assistant backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/data-assistant/internal/model"
)

// UserHeader carries the acting identity on every request.
const UserHeader = "X-User-Id"

// DefaultPreviewLimit is the row count requested by Preview when limit <= 0.
const DefaultPreviewLimit = 20

// IdentitySource supplies the identity a request is sent as.
type IdentitySource interface {
	Get() string
}

// IdentityFunc adapts a function to IdentitySource.
type IdentityFunc func() string

func (f IdentityFunc) Get() string { return f() }

type callOptions struct {
	asUser string
}

// CallOption modifies a single request.
type CallOption func(*callOptions)

// AsUser sends the request as id instead of the current identity.
func AsUser(id string) CallOption {
	return func(o *callOptions) {
		o.asUser = id
	}
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL  string
	identity IdentitySource
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, identity IdentitySource, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// Override returns the identity set by AsUser in opts, or "".
func Override(opts []CallOption) string {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.asUser
}

func (c *Client) userFor(opts []CallOption) string {
	if as := Override(opts); as != "" {
		return as
	}
	if c.identity == nil {
		return model.DefaultIdentity
	}
	return c.identity.Get()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, opts []CallOption, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	user := c.userFor(opts)
	req.Header.Set(UserHeader, user)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("user", user),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return &Error{Method: method, Path: path, Status: resp.StatusCode, Body: ParseErrorBody(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// ListDatasets lists the caller's datasets, or every user's with all set.
func (c *Client) ListDatasets(ctx context.Context, all bool, opts ...CallOption) (model.Snapshot, error) {
	path := "/datasets"
	if all {
		path += "?all=true"
	}
	var snap model.Snapshot
	if err := c.do(ctx, http.MethodGet, path, nil, "", opts, &snap); err != nil {
		return model.Snapshot{}, err
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// SyncUploads asks the backend to register files dropped into its uploads folder.
func (c *Client) SyncUploads(ctx context.Context, opts ...CallOption) (model.SyncResult, error) {
	var res model.SyncResult
	err := c.do(ctx, http.MethodPost, "/datasets/sync", nil, "", opts, &res)
	return res, err
}

// ListFromFolder lists the files in the backend's uploads folder.
func (c *Client) ListFromFolder(ctx context.Context, opts ...CallOption) (model.FolderListing, error) {
	var res model.FolderListing
	err := c.do(ctx, http.MethodGet, "/datasets/from-folder", nil, "", opts, &res)
	return res, err
}

// Upload sends a CSV or Excel file as a new dataset. An empty name lets the
// backend derive one from the filename.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, name string, opts ...CallOption) (model.UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if name != "" {
		if err := w.WriteField("dataset_name", name); err != nil {
			return model.UploadResult{}, fmt.Errorf("write dataset_name: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return model.UploadResult{}, fmt.Errorf("close form: %w", err)
	}

	var res model.UploadResult
	err = c.do(ctx, http.MethodPost, "/datasets/upload", &buf, w.FormDataContentType(), opts, &res)
	return res, err
}

// Preview returns the first limit rows of a dataset.
func (c *Client) Preview(ctx context.Context, datasetID string, limit int, opts ...CallOption) (model.Preview, error) {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	path := "/datasets/" + url.PathEscape(datasetID) + "/preview?limit=" + strconv.Itoa(limit)
	var res model.Preview
	err := c.do(ctx, http.MethodGet, path, nil, "", opts, &res)
	return res, err
}

// Schema returns the column list of a dataset.
func (c *Client) Schema(ctx context.Context, datasetID string, opts ...CallOption) (model.Schema, error) {
	var res model.Schema
	err := c.do(ctx, http.MethodGet, "/datasets/"+url.PathEscape(datasetID)+"/schema", nil, "", opts, &res)
	return res, err
}

// RunQuery asks a question. When DatasetIDs is non-empty it wins over DatasetID.
func (c *Client) RunQuery(ctx context.Context, q model.QueryRequest, opts ...CallOption) (model.QueryResult, error) {
	if q.Limit <= 0 {
		q.Limit = model.DefaultQueryLimit
	}
	if len(q.DatasetIDs) > 0 {
		q.DatasetID = ""
	}
	body, err := json.Marshal(q)
	if err != nil {
		return model.QueryResult{}, fmt.Errorf("encode query: %w", err)
	}

	var res model.QueryResult
	err = c.do(ctx, http.MethodPost, "/query/", bytes.NewReader(body), "application/json", opts, &res)
	return res, err
}

// Health probes the backend.
func (c *Client) Health(ctx context.Context) (model.Health, error) {
	var res model.Health
	err := c.do(ctx, http.MethodGet, "/health", nil, "", nil, &res)
	return res, err
}
