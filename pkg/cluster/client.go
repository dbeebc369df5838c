//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package cluster is a thin REST client for the SQL endpoint and the few
// administrative calls a security scenario needs.
//
// Every request authenticates as the administrator.  Restricted users are
// reached through run-as: [Client.As] returns a client that asks the cluster
// to execute each request as another user, which is how the audit log ends
// up recording that user as the principal.
package cluster

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

	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("cluster")

// RunAsHeader names the user a request executes as.
const RunAsHeader = "es-security-runas-user"

const (
	sqlPath  = "/_xpack/sql"
	userPath = "/_xpack/security/user/"
	bulkPath = "/_bulk"
)

// Options configures a [Client].
type Options struct {
	URL        string
	User       string
	Password   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OptionsFunc is a function that modifies Options.
type OptionsFunc func(*Options)

// WithURL sets the cluster base URL.
func WithURL(u string) OptionsFunc {
	return func(o *Options) {
		o.URL = u
	}
}

// WithCredentials sets the administrator's basic auth credentials.
func WithCredentials(user, password string) OptionsFunc {
	return func(o *Options) {
		o.User = user
		o.Password = password
	}
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) OptionsFunc {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) OptionsFunc {
	return func(o *Options) {
		o.HTTPClient = hc
	}
}

// Client talks to one cluster.  It is safe for concurrent use.
type Client struct {
	base     string
	user     string
	password string
	runAs    string
	hc       *http.Client
}

// NewClient creates a client.  Defaults target a local test cluster.
func NewClient(options ...OptionsFunc) *Client {
	opts := Options{
		URL:      "http://localhost:9200",
		User:     "test_admin",
		Password: "x-pack-test-password",
		Timeout:  30 * time.Second,
	}
	for _, o := range options {
		o(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		base:     strings.TrimSuffix(opts.URL, "/"),
		user:     opts.User,
		password: opts.Password,
		hc:       opts.HTTPClient,
	}
}

// As returns a client whose requests run as user.  An empty user returns a
// client acting as the administrator.
func (c *Client) As(user string) *Client {
	clone := *c
	clone.runAs = user
	return &clone
}

// Principal is the user the cluster attributes this client's requests to.
func (c *Client) Principal() string {
	if c.runAs != "" {
		return c.runAs
	}
	return c.user
}

// Column describes one column of a SQL response.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Response is one page of a SQL response.  Columns are only sent on the
// first page; Cursor is empty on the last one.
type Response struct {
	Columns []Column        `json:"columns,omitempty"`
	Rows    [][]interface{} `json:"rows"`
	Cursor  string          `json:"cursor,omitempty"`
}

type sqlRequest struct {
	Query     string `json:"query,omitempty"`
	FetchSize int    `json:"fetch_size,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
}

// Query runs a statement and returns its first page.  A zero fetchSize
// leaves the page size to the cluster.
func (c *Client) Query(ctx context.Context, sql string, fetchSize int) (*Response, error) {
	return c.sql(ctx, sqlRequest{Query: sql, FetchSize: fetchSize})
}

// Next fetches the page a cursor points at.
func (c *Client) Next(ctx context.Context, cursor string) (*Response, error) {
	return c.sql(ctx, sqlRequest{Cursor: cursor})
}

// QueryAll runs a statement and follows its cursor to the end, returning
// every row in one response.
func (c *Client) QueryAll(ctx context.Context, sql string, fetchSize int) (*Response, error) {
	first, err := c.Query(ctx, sql, fetchSize)
	if err != nil {
		return nil, err
	}

	all := &Response{Columns: first.Columns, Rows: first.Rows}
	for cursor := first.Cursor; cursor != ""; {
		page, err := c.Next(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all.Rows = append(all.Rows, page.Rows...)
		cursor = page.Cursor
	}
	return all, nil
}

// Describe returns the column name to SQL type map of index.
func (c *Client) Describe(ctx context.Context, index string) (map[string]string, error) {
	resp, err := c.Query(ctx, "DESCRIBE "+index, 0)
	if err != nil {
		return nil, err
	}

	columns := make(map[string]string, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row) < 2 {
			return nil, errors.Errorf("describe %s: row %v has fewer than two columns", index, row)
		}
		columns[fmt.Sprint(row[0])] = fmt.Sprint(row[1])
	}
	return columns, nil
}

// ShowTables returns the tables matching the LIKE pattern, or every table
// when pattern is empty.
func (c *Client) ShowTables(ctx context.Context, pattern string) ([]string, error) {
	sql := "SHOW TABLES"
	if pattern != "" {
		sql += " LIKE '" + strings.ReplaceAll(pattern, "'", "''") + "'"
	}
	resp, err := c.Query(ctx, sql, 0)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row) > 0 {
			tables = append(tables, fmt.Sprint(row[0]))
		}
	}
	return tables, nil
}

func (c *Client) sql(ctx context.Context, req sqlRequest) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal sql request")
	}

	var resp Response
	if err := c.do(ctx, http.MethodPost, sqlPath+"?format=json", "application/json", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type userRequest struct {
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

// CreateUser creates or replaces a native user.
func (c *Client) CreateUser(ctx context.Context, name, password string, roles ...string) error {
	if roles == nil {
		roles = []string{}
	}
	body, err := json.Marshal(userRequest{Password: password, Roles: roles})
	if err != nil {
		return errors.Wrap(err, "marshal user")
	}
	return c.do(ctx, http.MethodPut, userPath+url.PathEscape(name), "application/json", body, nil)
}

// Document is one source document to index.
type Document struct {
	Index  string
	ID     string
	Source map[string]interface{}
}

type bulkAction struct {
	Index struct {
		Index string `json:"_index"`
		Type  string `json:"_type"`
		ID    string `json:"_id,omitempty"`
	} `json:"index"`
}

// Bulk indexes docs in one request and refreshes so they are searchable at
// once.
func (c *Client) Bulk(ctx context.Context, docs ...Document) error {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	for _, d := range docs {
		var action bulkAction
		action.Index.Index = d.Index
		action.Index.Type = "doc"
		action.Index.ID = d.ID
		if err := enc.Encode(action); err != nil {
			return errors.Wrap(err, "encode bulk action")
		}
		if err := enc.Encode(d.Source); err != nil {
			return errors.Wrapf(err, "encode document for %s", d.Index)
		}
	}
	return c.do(ctx, http.MethodPut, bulkPath+"?refresh=true", "application/x-ndjson", b.Bytes(), nil)
}

// DeleteIndices deletes every index matching pattern.
func (c *Client) DeleteIndices(ctx context.Context, pattern string) error {
	return c.do(ctx, http.MethodDelete, "/"+pattern, "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrapf(err, "create request %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetBasicAuth(c.user, c.password)
	if c.runAs != "" {
		req.Header.Set(RunAsHeader, c.runAs)
	}

	logger.Debugf(c.Principal(), "request", "%s %s %s", method, path, body)

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response to %s %s", method, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debugf(c.Principal(), "response", "%s %s -> %d %s", method, path, resp.StatusCode, payload)
		return newResponseError(method, path, resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrap(err, fmt.Sprintf("decode response to %s %s", method, path))
	}
	return nil
}
