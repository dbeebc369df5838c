//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package fakecluster is an in-process stand-in for a search cluster with
// SQL and security enabled.  It serves the REST calls the scenario driver
// makes, decides access with a Rego role model, and writes the security
// audit trail from a background goroutine in the same line format the real
// cluster uses.
//
// It exists so that the harness can be exercised end to end without a real
// cluster.  Its audit behavior follows the real one closely enough for
// every shipped scenario: a SQL statement is authorized once up front and
// again per index it touches; SHOW TABLES and DESCRIBE first resolve their
// indices as a separate action; cursor pages are authorized without indices.
package fakecluster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/manetu/sqlsecurity/pkg/auditlog"
	"github.com/manetu/sqlsecurity/pkg/cluster"
)

var logger = logging.GetLogger("fakecluster")

const agent = "fakecluster"

const (
	identityKey = "identity"

	// hiddenIndex is the internal index superusers' index accesses
	// incidentally include.
	hiddenIndex = ".security"

	originTransport = "transport"
	originTypeRest  = "rest"
)

// Actions audited besides the SQL ones.
const (
	mainAction        = "cluster:monitor/main"
	putUserAction     = "cluster:admin/xpack/security/user/put"
	bulkAction        = "indices:data/write/bulk"
	deleteIndexAction = "indices:admin/delete"
)

// Options configures a [Cluster].
type Options struct {
	AdminUser     string
	AdminPassword string
	Audit         auditlog.Factory
	AuditDelay    time.Duration
}

// OptionsFunc is a function that modifies Options.
type OptionsFunc func(*Options)

// WithAdmin sets the superuser every other user is created by.
func WithAdmin(user, password string) OptionsFunc {
	return func(o *Options) {
		o.AdminUser = user
		o.AdminPassword = password
	}
}

// WithAudit sets where audit events are written.
func WithAudit(factory auditlog.Factory) OptionsFunc {
	return func(o *Options) {
		o.Audit = factory
	}
}

// WithAuditDelay delays every audit write, to make the trail lag behind
// the responses.
func WithAuditDelay(delay time.Duration) OptionsFunc {
	return func(o *Options) {
		o.AuditDelay = delay
	}
}

type user struct {
	password string
	roles    []string
}

// identity is who a request is attributed to.
type identity struct {
	user      string // authenticated
	principal string // effective, differs from user under run-as
	runBy     string
	roles     []string
	address   string
}

type cursorState struct {
	owner string
	rows  [][]interface{}
	size  int
}

// Cluster is the fake.  Create it with [New] and release it with
// [Cluster.Stop].
type Cluster struct {
	store   *Store
	authz   *Authorizer
	auditor *auditor
	echo    *echo.Echo

	mu      sync.RWMutex
	users   map[string]user
	cursors map[string]*cursorState
}

// New creates a cluster with only the administrator defined.
func New(options ...OptionsFunc) (*Cluster, error) {
	opts := Options{
		AdminUser:     "test_admin",
		AdminPassword: "x-pack-test-password",
		Audit:         auditlog.NewNullFactory(),
	}
	for _, o := range options {
		o(&opts)
	}

	authz, err := NewAuthorizer()
	if err != nil {
		return nil, err
	}

	stream, err := opts.Audit.NewStream()
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		store:   NewStore(),
		authz:   authz,
		auditor: newAuditor(stream, opts.AuditDelay),
		users: map[string]user{
			opts.AdminUser: {password: opts.AdminPassword, roles: []string{"superuser"}},
		},
		cursors: make(map[string]*cursorState),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(c.authenticate)

	e.GET("/", c.handleMain)
	e.POST("/_xpack/sql", c.handleSQL)
	e.PUT("/_xpack/security/user/:name", c.handlePutUser)
	e.POST("/_xpack/security/user/:name", c.handlePutUser)
	e.PUT("/_bulk", c.handleBulk)
	e.POST("/_bulk", c.handleBulk)
	e.DELETE("/:index", c.handleDeleteIndex)
	c.echo = e

	return c, nil
}

// Handler returns the REST surface, for serving from a test server.
func (c *Cluster) Handler() http.Handler {
	return c.echo
}

// Start serves the REST surface on port in the background.
func (c *Cluster) Start(port int) {
	go func() {
		if err := c.echo.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			logger.SysErrorf("fake cluster stopped: %v", err)
		}
	}()
	logger.SysInfof("fake cluster listening on :%d", port)
}

// Stop shuts the server down, then writes every pending audit event.
func (c *Cluster) Stop(ctx context.Context) error {
	err := c.echo.Shutdown(ctx)
	c.auditor.close()
	return err
}

func (c *Cluster) lookup(name string) (user, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[name]
	return u, ok
}

func (c *Cluster) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ec echo.Context) error {
		name, password, ok := ec.Request().BasicAuth()
		u, known := c.lookup(name)
		if !ok || !known || u.password != password {
			return newAPIError(http.StatusUnauthorized, "security_exception",
				fmt.Sprintf("unable to authenticate user [%s] for REST request [%s]", name, ec.Request().URL.Path))
		}

		ec.Set(identityKey, identity{
			user:      name,
			principal: name,
			roles:     u.roles,
			address:   ec.RealIP(),
		})
		return next(ec)
	}
}

// runAs resolves the identity a request executes as, auditing the run-as
// decision when the request asks for one.
func (c *Cluster) runAs(ec echo.Context, action, request string) (identity, error) {
	id := ec.Get(identityKey).(identity)
	target := ec.Request().Header.Get(cluster.RunAsHeader)
	if target == "" {
		return id, nil
	}

	g, err := c.authz.Evaluate(ec.Request().Context(), id.roles, "", nil)
	if err != nil {
		return identity{}, err
	}
	tu, known := c.lookup(target)

	e := auditlog.Event{
		Origin:         originTransport,
		OriginType:     originTypeRest,
		OriginAddress:  id.address,
		Principal:      id.user,
		RunAsPrincipal: target,
		Action:         action,
		Request:        request,
	}
	if !g.RunAs || !known {
		e.EventType = "run_as_denied"
		c.auditor.record(e)
		return identity{}, newAPIError(http.StatusForbidden, "security_exception",
			fmt.Sprintf("action [%s] is unauthorized for user [%s] run as [%s]", action, id.user, target))
	}
	e.EventType = "run_as_granted"
	c.auditor.record(e)

	return identity{
		user:      id.user,
		principal: target,
		runBy:     id.user,
		roles:     tu.roles,
		address:   id.address,
	}, nil
}

func (c *Cluster) record(id identity, granted bool, action, request string, indices []string) {
	sorted := append([]string(nil), indices...)
	sort.Strings(sorted)

	c.auditor.record(auditlog.Event{
		Origin:         originTransport,
		EventType:      auditlog.EventTypeFor(granted),
		OriginType:     originTypeRest,
		OriginAddress:  id.address,
		Principal:      id.principal,
		RunByPrincipal: id.runBy,
		Action:         action,
		Indices:        sorted,
		Request:        request,
	})
}

// manage authorizes an administrative request, auditing the decision.
func (c *Cluster) manage(ec echo.Context, action, request string, indices []string) (identity, error) {
	id, err := c.runAs(ec, action, request)
	if err != nil {
		return identity{}, err
	}
	g, err := c.authz.Evaluate(ec.Request().Context(), id.roles, "", nil)
	if err != nil {
		return identity{}, err
	}
	c.record(id, g.Manage, action, request, indices)
	if !g.Manage {
		return identity{}, unauthorized(action, id.principal)
	}
	return id, nil
}

func (c *Cluster) handleMain(ec echo.Context) error {
	id, err := c.runAs(ec, mainAction, "MainRequest")
	if err != nil {
		return err
	}
	c.record(id, true, mainAction, "MainRequest", nil)
	return ec.JSON(http.StatusOK, map[string]interface{}{
		"name":         "fake",
		"cluster_name": "sqlsecurity",
		"version":      map[string]string{"number": "6.3.0"},
		"tagline":      "You Know, for Search",
	})
}

type putUserBody struct {
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

func (c *Cluster) handlePutUser(ec echo.Context) error {
	if _, err := c.manage(ec, putUserAction, "PutUserRequest", nil); err != nil {
		return err
	}

	name := ec.Param("name")
	var body putUserBody
	if err := ec.Bind(&body); err != nil {
		return newAPIError(http.StatusBadRequest, "parse_exception", err.Error())
	}
	if body.Password == "" {
		return newAPIError(http.StatusBadRequest, "action_request_validation_exception",
			"Validation Failed: 1: passwords must be at least [6] characters long;")
	}

	c.mu.Lock()
	_, existed := c.users[name]
	c.users[name] = user{password: body.Password, roles: body.Roles}
	c.mu.Unlock()

	logger.Debugf(agent, "user", "put user %s with roles %v", name, body.Roles)
	return ec.JSON(http.StatusOK, map[string]interface{}{"user": map[string]bool{"created": !existed}})
}

func (c *Cluster) handleBulk(ec echo.Context) error {
	if _, err := c.manage(ec, bulkAction, "BulkRequest", nil); err != nil {
		return err
	}

	body, err := io.ReadAll(ec.Request().Body)
	if err != nil {
		return err
	}
	n, err := c.store.Bulk(body)
	if err != nil {
		return newAPIError(http.StatusBadRequest, "illegal_argument_exception", err.Error())
	}
	return ec.JSON(http.StatusOK, map[string]interface{}{"errors": false, "items": n})
}

func (c *Cluster) handleDeleteIndex(ec echo.Context) error {
	pattern := ec.Param("index")
	if _, err := c.manage(ec, deleteIndexAction, "DeleteIndexRequest", c.store.Resolve(pattern)); err != nil {
		return err
	}

	deleted := c.store.Delete(pattern)
	if len(deleted) == 0 && !strings.ContainsAny(pattern, "*?") {
		return newAPIError(http.StatusNotFound, "index_not_found_exception", "no such index ["+pattern+"]")
	}
	return ec.JSON(http.StatusOK, map[string]bool{"acknowledged": true})
}
