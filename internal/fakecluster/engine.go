//
//  Copyright © Manetu Inc. All rights reserved.
//

package fakecluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/manetu/sqlsecurity/pkg/auditlog"
	"github.com/manetu/sqlsecurity/pkg/cluster"
)

const defaultFetchSize = 1000

// unresolved is recorded when index resolution finds nothing the principal
// may see.
var unresolved = []string{"*", "-*"}

type sqlBody struct {
	Query     string `json:"query"`
	FetchSize int    `json:"fetch_size"`
	Cursor    string `json:"cursor"`
}

func (c *Cluster) handleSQL(ec echo.Context) error {
	ctx := ec.Request().Context()

	id, err := c.runAs(ec, auditlog.SQLAction, auditlog.SQLRequest)
	if err != nil {
		return err
	}

	var body sqlBody
	if err := json.NewDecoder(ec.Request().Body).Decode(&body); err != nil {
		return newAPIError(http.StatusBadRequest, "parse_exception", "request body is required: "+err.Error())
	}

	base, err := c.authz.Evaluate(ctx, id.roles, "", nil)
	if err != nil {
		return err
	}
	c.record(id, base.SQL, auditlog.SQLAction, auditlog.SQLRequest, nil)
	if !base.SQL {
		return unauthorized(auditlog.SQLAction, id.principal)
	}

	var resp *cluster.Response
	if body.Cursor != "" {
		resp, err = c.nextPage(id, body.Cursor)
	} else {
		resp, err = c.execute(ctx, id, body)
	}
	if err != nil {
		return err
	}
	return ec.JSON(http.StatusOK, resp)
}

func (c *Cluster) execute(ctx context.Context, id identity, body sqlBody) (*cluster.Response, error) {
	if strings.TrimSpace(body.Query) == "" {
		return nil, newAPIError(http.StatusBadRequest, "action_request_validation_exception",
			"Validation Failed: 1: one of [query] or [cursor] is required;")
	}

	st, err := parseStatement(body.Query)
	if err != nil {
		return nil, err
	}
	logger.Debugf(id.principal, "execute", "%s", st.sql)

	switch st.kind {
	case showTablesStatement:
		return c.showTables(ctx, id, st)
	case describeStatement:
		return c.describe(ctx, id, st)
	default:
		return c.selectRows(ctx, id, st, body.FetchSize)
	}
}

// authorizeIndex decides and audits access to one index.
func (c *Cluster) authorizeIndex(ctx context.Context, id identity, index, action, request string) (Grant, error) {
	g, err := c.authz.Evaluate(ctx, id.roles, index, c.store.Fields(index))
	if err != nil {
		return Grant{}, err
	}
	c.record(id, g.Read, action, request, accessed(g, index, action))
	if !g.Read {
		return Grant{}, unauthorized(action, id.principal)
	}
	return g, nil
}

// accessed is what an audit event for index names.  A superuser's query
// also touches the security index.
func accessed(g Grant, index, action string) []string {
	if g.Superuser && action == auditlog.SQLAction {
		return []string{index, hiddenIndex}
	}
	return []string{index}
}

func unknownIndex(sql, index string) error {
	line, col := position(sql, index)
	return newAPIError(http.StatusBadRequest, "verification_exception",
		fmt.Sprintf("Found 1 problem(s)\nline %d:%d: Unknown index [%s]", line, col, index))
}

func (c *Cluster) selectRows(ctx context.Context, id identity, st *statement, fetchSize int) (*cluster.Response, error) {
	g, err := c.authorizeIndex(ctx, id, st.index, auditlog.SQLAction, auditlog.SQLRequest)
	if err != nil {
		return nil, err
	}
	if !c.store.Exists(st.index) {
		return nil, unknownIndex(st.sql, st.index)
	}

	visible := make(map[string]bool, len(g.Fields))
	for _, f := range g.Fields {
		visible[f] = true
	}
	var problems []string
	for _, ref := range st.referenced() {
		if !visible[ref] {
			line, col := position(st.sql, ref)
			problems = append(problems, fmt.Sprintf("line %d:%d: Unknown column [%s]", line, col, ref))
		}
	}
	if len(problems) > 0 {
		return nil, newAPIError(http.StatusBadRequest, "verification_exception",
			fmt.Sprintf("Found %d problem(s)\n%s", len(problems), strings.Join(problems, "\n")))
	}

	var docs []Document
	for _, doc := range c.store.Snapshot(st.index) {
		if g.Visible(doc) && (st.where == nil || st.where.holds(doc)) {
			docs = append(docs, doc)
		}
	}
	if st.orderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			cmp := compareValues(docs[i][st.orderBy], docs[j][st.orderBy])
			if st.desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	names := st.columns
	if names == nil {
		names = g.Fields
	}
	types := c.store.Types(st.index)
	columns := make([]cluster.Column, 0, len(names))
	for _, name := range names {
		t, ok := types[name]
		if !ok {
			t = FieldType{Mapping: "null", SQL: "NULL"}
		}
		columns = append(columns, cluster.Column{Name: name, Type: t.Mapping})
	}

	rows := make([][]interface{}, 0, len(docs))
	for _, doc := range docs {
		row := make([]interface{}, len(names))
		for i, name := range names {
			row[i] = doc[name]
		}
		rows = append(rows, row)
	}

	page, cursor := c.openCursor(id.principal, rows, fetchSize)
	return &cluster.Response{Columns: columns, Rows: page, Cursor: cursor}, nil
}

func (c *Cluster) showTables(ctx context.Context, id identity, st *statement) (*cluster.Response, error) {
	var tables []string
	grants := make(map[string]Grant)
	for _, name := range c.store.Resolve(st.pattern) {
		g, err := c.authz.Evaluate(ctx, id.roles, name, c.store.Fields(name))
		if err != nil {
			return nil, err
		}
		if g.Read {
			tables = append(tables, name)
			grants[name] = g
		}
	}

	if len(tables) == 0 {
		c.record(id, true, auditlog.SQLTablesAction, auditlog.SQLTablesRequest, unresolved)
	} else {
		c.record(id, true, auditlog.SQLTablesAction, auditlog.SQLTablesRequest, tables)
	}
	for _, name := range tables {
		c.record(id, true, auditlog.SQLAction, auditlog.SQLRequest, accessed(grants[name], name, auditlog.SQLAction))
	}

	rows := make([][]interface{}, 0, len(tables))
	for _, name := range tables {
		rows = append(rows, []interface{}{name, "BASE TABLE"})
	}
	return &cluster.Response{
		Columns: []cluster.Column{{Name: "name", Type: "keyword"}, {Name: "type", Type: "keyword"}},
		Rows:    rows,
	}, nil
}

func (c *Cluster) describe(ctx context.Context, id identity, st *statement) (*cluster.Response, error) {
	g, err := c.authorizeIndex(ctx, id, st.index, auditlog.SQLTablesAction, auditlog.SQLTablesRequest)
	if err != nil {
		return nil, err
	}
	if !c.store.Exists(st.index) {
		return nil, unknownIndex(st.sql, st.index)
	}
	c.record(id, true, auditlog.SQLAction, auditlog.SQLRequest, accessed(g, st.index, auditlog.SQLAction))

	types := c.store.Types(st.index)
	rows := make([][]interface{}, 0, len(g.Fields))
	for _, f := range g.Fields {
		rows = append(rows, []interface{}{f, types[f].SQL})
	}
	return &cluster.Response{
		Columns: []cluster.Column{{Name: "column", Type: "keyword"}, {Name: "type", Type: "keyword"}},
		Rows:    rows,
	}, nil
}

// openCursor returns the first page of rows and, when the page is full, a
// cursor for the rest.  A full last page therefore yields one more, empty,
// page.
func (c *Cluster) openCursor(owner string, rows [][]interface{}, size int) ([][]interface{}, string) {
	if size <= 0 {
		size = defaultFetchSize
	}
	if len(rows) < size {
		return rows, ""
	}

	id := uuid.NewString()
	c.mu.Lock()
	c.cursors[id] = &cursorState{owner: owner, rows: rows[size:], size: size}
	c.mu.Unlock()
	return rows[:size], id
}

func (c *Cluster) nextPage(id identity, cursor string) (*cluster.Response, error) {
	c.mu.Lock()
	state, ok := c.cursors[cursor]
	delete(c.cursors, cursor)
	c.mu.Unlock()

	if !ok || state.owner != id.principal {
		return nil, newAPIError(http.StatusBadRequest, "illegal_argument_exception", "Unknown cursor ["+cursor+"]")
	}

	page, next := c.openCursor(state.owner, state.rows, state.size)
	return &cluster.Response{Rows: page, Cursor: next}, nil
}

// compareValues orders decoded JSON values.  Missing values sort last.
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
