//
//  Copyright © Manetu Inc. All rights reserved.
//

package scenario

import (
	"context"

	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/manetu/sqlsecurity/pkg/auditlog"
	"github.com/manetu/sqlsecurity/pkg/cluster"
	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/manetu/sqlsecurity/pkg/config"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("scenario")

// Documents is the data every scenario reads.
var Documents = []cluster.Document{
	{Index: "test", ID: "1", Source: map[string]interface{}{"a": 1, "b": 2, "c": 3}},
	{Index: "test", ID: "2", Source: map[string]interface{}{"a": 4, "b": 5, "c": 6}},
	{Index: "bort", ID: "1", Source: map[string]interface{}{"a": "test"}},
}

// FixtureOptions configures a [Fixture].
type FixtureOptions struct {
	Actions      Actions
	UserPassword string
	Asserter     []auditlog.AsserterOptionsFunc
}

// FixtureOptionsFunc is a function that modifies FixtureOptions.
type FixtureOptionsFunc func(*FixtureOptions)

// WithActions replaces the REST actions.
func WithActions(actions Actions) FixtureOptionsFunc {
	return func(o *FixtureOptions) {
		o.Actions = actions
	}
}

// WithUserPassword sets the password given to provisioned users.
func WithUserPassword(password string) FixtureOptionsFunc {
	return func(o *FixtureOptions) {
		o.UserPassword = password
	}
}

// WithAsserterOptions adds options applied to every asserter the fixture
// creates.
func WithAsserterOptions(options ...auditlog.AsserterOptionsFunc) FixtureOptionsFunc {
	return func(o *FixtureOptions) {
		o.Asserter = append(o.Asserter, options...)
	}
}

// Fixture is the context shared by the scenarios of one suite: the
// administrator connection, the audit log and the failure latch.
type Fixture struct {
	Client  *cluster.Client
	Actions Actions
	LogPath string
	Latch   *auditlog.Latch

	opts  FixtureOptions
	setup bool
}

// NewFixture creates a fixture that drives client, which must authenticate
// as the administrator, and reads the audit log at logPath.
func NewFixture(client *cluster.Client, logPath string, options ...FixtureOptionsFunc) *Fixture {
	opts := FixtureOptions{
		UserPassword: "testpass",
	}
	for _, o := range options {
		o(&opts)
	}
	if opts.Actions == nil {
		opts.Actions = NewRestActions(client)
	}

	return &Fixture{
		Client:  client,
		Actions: opts.Actions,
		LogPath: logPath,
		Latch:   &auditlog.Latch{},
		opts:    opts,
	}
}

// NewFixtureFromConfig creates a fixture from the loaded configuration.
func NewFixtureFromConfig() (*Fixture, error) {
	config.Init()
	v := config.VConfig
	logPath := v.GetString(config.AuditLogFile)
	if logPath == "" {
		return nil, common.Errorf(common.KindPrecondition, "%s must be set to the cluster's audit log", config.AuditLogFile)
	}

	timeout := v.GetDuration(config.AuditTimeout)
	if timeout <= 0 {
		return nil, common.Errorf(common.KindPrecondition, "%s must be positive, got %s", config.AuditTimeout, timeout)
	}

	client := cluster.NewClient(
		cluster.WithURL(v.GetString(config.ClusterURL)),
		cluster.WithCredentials(v.GetString(config.ClusterAdminUser), v.GetString(config.ClusterAdminPassword)),
		cluster.WithTimeout(v.GetDuration(config.ClusterTimeout)),
	)

	return NewFixture(client, logPath,
		WithUserPassword(v.GetString(config.ClusterUserPassword)),
		WithAsserterOptions(
			auditlog.WithTimeout(timeout),
			auditlog.WithNormalizer(NormalizerFromConfig()),
		),
	), nil
}

// NormalizerFromConfig selects the administrator and hidden indices from the
// loaded configuration.
func NormalizerFromConfig() auditlog.Normalizer {
	config.Init()
	return auditlog.Normalizer{
		AdminPrincipal: config.VConfig.GetString(config.AuditAdminPrincipal),
		HiddenIndices:  config.VConfig.GetStringSlice(config.AuditHiddenIndices),
	}
}

// Setup indexes the fixture documents the first time it is called.
func (f *Fixture) Setup(ctx context.Context) error {
	if f.setup {
		return nil
	}
	if err := f.Client.Bulk(ctx, Documents...); err != nil {
		return errors.Wrap(err, "index fixture documents")
	}
	f.setup = true
	logger.SysDebugf("indexed %d fixture documents", len(Documents))
	return nil
}

// Begin captures the current end of the audit log and returns an asserter
// that only considers what is appended after it.  Call it before acting.
func (f *Fixture) Begin() (*auditlog.Asserter, error) {
	offset, err := auditlog.Offset(f.LogPath)
	if err != nil {
		return nil, err
	}

	options := append([]auditlog.AsserterOptionsFunc{auditlog.WithLatch(f.Latch)}, f.opts.Asserter...)
	return auditlog.NewAsserter(f.LogPath, offset, options...), nil
}

// CreateUser provisions name with a single role.
func (f *Fixture) CreateUser(ctx context.Context, name, role string) error {
	logger.Debugf(name, "create-user", "role %s", role)
	return f.Client.CreateUser(ctx, name, f.opts.UserPassword, role)
}

// Teardown deletes every index and clears the state a failed suite leaves
// behind.
func (f *Fixture) Teardown(ctx context.Context) error {
	f.setup = false
	f.Latch.Reset()

	err := f.Client.DeleteIndices(ctx, "*")
	if err != nil && !cluster.IsNotFound(err) {
		return errors.Wrap(err, "delete indices")
	}
	return nil
}
