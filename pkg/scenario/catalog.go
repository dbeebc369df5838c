//
//  Copyright © Manetu Inc. All rights reserved.
//

package scenario

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"

	"github.com/manetu/sqlsecurity/pkg/auditlog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Action kinds a scenario may perform.
const (
	KindQueryWorksAsAdmin  = "query-works-as-admin"
	KindMatchesAdmin       = "matches-admin"
	KindScrollMatchesAdmin = "scroll-matches-admin"
	KindDescribe           = "describe"
	KindShowTables         = "show-tables"
	KindForbidden          = "forbidden"
	KindUnknownColumn      = "unknown-column"
)

// Catalog is an ordered list of scenarios.
type Catalog struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario provisions an optional user, performs one action and then
// requires the audit log to hold exactly the listed events.
type Scenario struct {
	Name  string       `yaml:"name"`
	User  string       `yaml:"user"`
	Role  string       `yaml:"role"`
	Do    Action       `yaml:"action"`
	Audit []AuditEntry `yaml:"audit"`
}

// Action is the operation a scenario performs.  Which fields apply depends
// on Kind.
type Action struct {
	Kind    string            `yaml:"kind"`
	Admin   string            `yaml:"admin"`
	SQL     string            `yaml:"sql"`
	Column  string            `yaml:"column"`
	Columns map[string]string `yaml:"columns"`
	Tables  []string          `yaml:"tables"`
}

// AuditEntry is one of a statement authorized up front and per index (Sync),
// a statement that resolves its indices first (Async) or a single event
// (Expect).
type AuditEntry struct {
	Sync   *Lookup      `yaml:"sync"`
	Async  *Lookup      `yaml:"async"`
	Expect *Expectation `yaml:"expect"`
}

// Lookup names the principal and the indices a statement reaches.
type Lookup struct {
	User    string   `yaml:"user"`
	Indices []string `yaml:"indices"`
}

// Expectation describes one audit event.  Exactly one of Empty, HasItems
// and Exactly constrains its indices.
type Expectation struct {
	Granted   bool     `yaml:"granted"`
	Action    string   `yaml:"action"`
	Principal string   `yaml:"principal"`
	Empty     bool     `yaml:"empty"`
	HasItems  []string `yaml:"hasItems"`
	Exactly   []string `yaml:"exactly"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse scenario catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads a catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario catalog")
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in security scenarios.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks every scenario for the fields its action and audit entries
// need.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Scenarios))
	for i, s := range c.Scenarios {
		if s.Name == "" {
			return errors.Errorf("scenario %d has no name", i)
		}
		if seen[s.Name] {
			return errors.Errorf("duplicate scenario %s", s.Name)
		}
		seen[s.Name] = true

		if err := s.validate(); err != nil {
			return errors.Wrapf(err, "scenario %s", s.Name)
		}
	}
	return nil
}

func (s *Scenario) validate() error {
	if s.User != "" && s.Role == "" {
		return errors.Errorf("user %s has no role", s.User)
	}

	a := s.Do
	switch a.Kind {
	case KindQueryWorksAsAdmin:
	case KindMatchesAdmin, KindScrollMatchesAdmin:
		if a.Admin == "" || a.SQL == "" {
			return errors.Errorf("%s needs admin and sql", a.Kind)
		}
	case KindDescribe:
		if len(a.Columns) == 0 {
			return errors.Errorf("%s needs columns", a.Kind)
		}
	case KindShowTables:
	case KindForbidden:
		if a.SQL == "" {
			return errors.Errorf("%s needs sql", a.Kind)
		}
	case KindUnknownColumn:
		if a.SQL == "" || a.Column == "" {
			return errors.Errorf("%s needs sql and column", a.Kind)
		}
	default:
		return errors.Errorf("unknown action kind %q", a.Kind)
	}

	for i, entry := range s.Audit {
		forms := 0
		if entry.Sync != nil {
			forms++
		}
		if entry.Async != nil {
			forms++
		}
		if entry.Expect != nil {
			forms++
			if _, err := entry.Expect.matcher(); err != nil {
				return errors.Wrapf(err, "audit entry %d", i)
			}
			if _, err := actionName(entry.Expect.Action); err != nil {
				return errors.Wrapf(err, "audit entry %d", i)
			}
		}
		if forms != 1 {
			return errors.Errorf("audit entry %d must have exactly one of sync, async or expect", i)
		}
	}
	return nil
}

// actionName maps the catalog's short action names onto audit actions.
func actionName(short string) (string, error) {
	switch short {
	case "sql":
		return auditlog.SQLAction, nil
	case "tables":
		return auditlog.SQLTablesAction, nil
	default:
		return "", errors.Errorf("unknown audit action %q", short)
	}
}

func (e *Expectation) matcher() (auditlog.IndicesMatcher, error) {
	var m auditlog.IndicesMatcher
	set := 0
	if e.Empty {
		m = auditlog.Empty()
		set++
	}
	if len(e.HasItems) > 0 {
		m = auditlog.HasItems(e.HasItems...)
		set++
	}
	if len(e.Exactly) > 0 {
		m = auditlog.Exactly(e.Exactly...)
		set++
	}
	if set != 1 {
		return nil, errors.Errorf("expectation must set exactly one of empty, hasItems or exactly")
	}
	return m, nil
}

// Filter returns the scenarios whose names match any of the glob patterns,
// or every scenario when there are none.
func (c *Catalog) Filter(patterns []string) []Scenario {
	if len(patterns) == 0 {
		return c.Scenarios
	}

	var filtered []Scenario
	for _, s := range c.Scenarios {
		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, s.Name)
			if err != nil {
				// an invalid pattern only matches literally
				matched = pattern == s.Name
			}
			if matched {
				filtered = append(filtered, s)
				break
			}
		}
	}
	return filtered
}

// Expect declares the scenario's audit entries on a.
func (s *Scenario) Expect(a *auditlog.Asserter) error {
	for _, entry := range s.Audit {
		switch {
		case entry.Sync != nil:
			a.ExpectSQLWithSyncLookup(entry.Sync.User, entry.Sync.Indices...)
		case entry.Async != nil:
			a.ExpectSQLWithAsyncLookup(entry.Async.User, entry.Async.Indices...)
		case entry.Expect != nil:
			m, err := entry.Expect.matcher()
			if err != nil {
				return err
			}
			action, err := actionName(entry.Expect.Action)
			if err != nil {
				return err
			}
			a.Expect(entry.Expect.Granted, action, entry.Expect.Principal, m)
		}
	}
	return nil
}

// Perform runs the scenario's action.
func (s *Scenario) Perform(ctx context.Context, actions Actions) error {
	a := s.Do
	switch a.Kind {
	case KindQueryWorksAsAdmin:
		return actions.QueryWorksAsAdmin(ctx)
	case KindMatchesAdmin:
		return actions.ExpectMatchesAdmin(ctx, a.Admin, s.User, a.SQL)
	case KindScrollMatchesAdmin:
		return actions.ExpectScrollMatchesAdmin(ctx, a.Admin, s.User, a.SQL)
	case KindDescribe:
		return actions.ExpectDescribe(ctx, a.Columns, s.User)
	case KindShowTables:
		return actions.ExpectShowTables(ctx, a.Tables, s.User)
	case KindForbidden:
		return actions.ExpectForbidden(ctx, s.User, a.SQL)
	case KindUnknownColumn:
		return actions.ExpectUnknownColumn(ctx, s.User, a.SQL, a.Column)
	default:
		return errors.Errorf("unknown action kind %q", a.Kind)
	}
}

// Run executes the scenario against f: capture the audit offset, provision
// the user, act, and verify the audit log.
func (s *Scenario) Run(ctx context.Context, f *Fixture) error {
	asserter, err := f.Begin()
	if err != nil {
		return err
	}

	if s.User != "" {
		if err := f.CreateUser(ctx, s.User, s.Role); err != nil {
			return errors.Wrapf(err, "create user %s", s.User)
		}
	}

	if err := s.Perform(ctx, f.Actions); err != nil {
		return err
	}

	if err := s.Expect(asserter); err != nil {
		return err
	}
	return asserter.AssertLogs(ctx)
}
