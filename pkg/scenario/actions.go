//
//  Copyright © Manetu Inc. All rights reserved.
//

package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/manetu/sqlsecurity/pkg/cluster"
	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/pkg/errors"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Actions performs the operations a scenario checks, over whatever transport
// the implementation uses.  An empty user means the administrator.  Every
// method returns nil when the observed behavior is the expected one.
type Actions interface {
	// QueryWorksAsAdmin checks that the administrator reads every fixture
	// document.
	QueryWorksAsAdmin(ctx context.Context) error
	// ExpectMatchesAdmin checks that user running userSQL gets exactly the
	// columns and rows the administrator gets running adminSQL.
	ExpectMatchesAdmin(ctx context.Context, adminSQL, user, userSQL string) error
	// ExpectScrollMatchesAdmin is ExpectMatchesAdmin with a page size of one,
	// following the cursor to the end.
	ExpectScrollMatchesAdmin(ctx context.Context, adminSQL, user, userSQL string) error
	// ExpectDescribe checks the column name to type map of the test index.
	ExpectDescribe(ctx context.Context, columns map[string]string, user string) error
	// ExpectShowTables checks the tables user can list.
	ExpectShowTables(ctx context.Context, tables []string, user string) error
	// ExpectForbidden checks that sql is refused as unauthorized.
	ExpectForbidden(ctx context.Context, user, sql string) error
	// ExpectUnknownColumn checks that sql is refused because column is not
	// visible to user.
	ExpectUnknownColumn(ctx context.Context, user, sql, column string) error
}

// RestActions implements [Actions] over the REST API, reaching users through
// run-as on the administrator's connection.
type RestActions struct {
	client *cluster.Client
}

// NewRestActions creates actions that use client, which must authenticate
// as the administrator.
func NewRestActions(client *cluster.Client) *RestActions {
	return &RestActions{client: client}
}

// result is the comparable part of a SQL response.
type result struct {
	Columns []cluster.Column `json:"columns"`
	Rows    [][]interface{}  `json:"rows"`
}

func toResult(r *cluster.Response) result {
	return result{Columns: r.Columns, Rows: r.Rows}
}

// QueryWorksAsAdmin implements [Actions].
func (a *RestActions) QueryWorksAsAdmin(ctx context.Context) error {
	resp, err := a.client.Query(ctx, "SELECT * FROM test ORDER BY a", 0)
	if err != nil {
		return err
	}

	expected := result{
		Columns: []cluster.Column{{Name: "a", Type: "long"}, {Name: "b", Type: "long"}, {Name: "c", Type: "long"}},
		Rows:    [][]interface{}{{1.0, 2.0, 3.0}, {4.0, 5.0, 6.0}},
	}
	return compare("admin query", expected, toResult(resp))
}

// ExpectMatchesAdmin implements [Actions].
func (a *RestActions) ExpectMatchesAdmin(ctx context.Context, adminSQL, user, userSQL string) error {
	return a.matchesAdmin(ctx, adminSQL, user, userSQL, 0)
}

// ExpectScrollMatchesAdmin implements [Actions].
func (a *RestActions) ExpectScrollMatchesAdmin(ctx context.Context, adminSQL, user, userSQL string) error {
	return a.matchesAdmin(ctx, adminSQL, user, userSQL, 1)
}

func (a *RestActions) matchesAdmin(ctx context.Context, adminSQL, user, userSQL string, fetchSize int) error {
	admin, err := a.run(ctx, "", adminSQL, fetchSize)
	if err != nil {
		return errors.Wrapf(err, "admin query [%s]", adminSQL)
	}
	got, err := a.run(ctx, user, userSQL, fetchSize)
	if err != nil {
		return errors.Wrapf(err, "query [%s] as %s", userSQL, user)
	}
	return compare(fmt.Sprintf("[%s] as %s against admin [%s]", userSQL, user, adminSQL), admin, got)
}

// run returns every row of sql, following cursors when fetchSize is set.
func (a *RestActions) run(ctx context.Context, user, sql string, fetchSize int) (result, error) {
	c := a.client.As(user)
	var resp *cluster.Response
	var err error
	if fetchSize > 0 {
		resp, err = c.QueryAll(ctx, sql, fetchSize)
	} else {
		resp, err = c.Query(ctx, sql, 0)
	}
	if err != nil {
		return result{}, err
	}
	return toResult(resp), nil
}

// ExpectDescribe implements [Actions].
func (a *RestActions) ExpectDescribe(ctx context.Context, columns map[string]string, user string) error {
	actual, err := a.client.As(user).Describe(ctx, "test")
	if err != nil {
		return err
	}
	return compare("describe as "+who(user), columns, actual)
}

// ExpectShowTables implements [Actions].
func (a *RestActions) ExpectShowTables(ctx context.Context, tables []string, user string) error {
	actual, err := a.client.As(user).ShowTables(ctx, "")
	if err != nil {
		return err
	}

	expected := append([]string{}, tables...)
	sort.Strings(expected)
	sort.Strings(actual)
	return compare("show tables as "+who(user), expected, actual)
}

// ExpectForbidden implements [Actions].
func (a *RestActions) ExpectForbidden(ctx context.Context, user, sql string) error {
	_, err := a.client.As(user).Query(ctx, sql, 0)
	switch {
	case err == nil:
		return common.Errorf(common.KindMismatch, "expected [%s] as %s to be forbidden but it succeeded", sql, who(user))
	case cluster.IsForbidden(err):
		return nil
	default:
		return common.WrapError(common.KindMismatch, err, fmt.Sprintf("expected [%s] as %s to be forbidden", sql, who(user)))
	}
}

// ExpectUnknownColumn implements [Actions].
func (a *RestActions) ExpectUnknownColumn(ctx context.Context, user, sql, column string) error {
	_, err := a.client.As(user).Query(ctx, sql, 0)
	switch {
	case err == nil:
		return common.Errorf(common.KindMismatch, "expected [%s] as %s to fail on column [%s] but it succeeded", sql, who(user), column)
	case cluster.IsUnknownColumn(err, column):
		return nil
	default:
		return common.WrapError(common.KindMismatch, err,
			fmt.Sprintf("expected [%s] as %s to fail with Unknown column [%s]", sql, who(user), column))
	}
}

func who(user string) string {
	if user == "" {
		return "admin"
	}
	return user
}

// compare returns a KindMismatch error holding a line diff of the JSON
// renderings when expected and actual differ.
func compare(what string, expected, actual interface{}) error {
	if reflect.DeepEqual(expected, actual) {
		return nil
	}

	want, err := json.MarshalIndent(expected, "", "  ")
	if err != nil {
		return errors.Wrap(err, "render expected")
	}
	got, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		return errors.Wrap(err, "render actual")
	}
	if string(want) == string(got) {
		// equal once rendered, e.g. an empty and a nil list
		return nil
	}

	return common.Errorf(common.KindMismatch, "%s differs (-expected +actual):\n%s", what, lineDiff(string(want), string(got)))
}

func lineDiff(want, got string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(want, got)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line != "" {
				out.WriteString(prefix + strings.TrimSuffix(line, "\n") + "\n")
			}
		}
	}
	return out.String()
}
