//
//  Copyright © Manetu Inc. All rights reserved.
//

package fakecluster

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type statementKind int

const (
	selectStatement statementKind = iota
	showTablesStatement
	describeStatement
)

// condition is a single equality test of a WHERE clause.
type condition struct {
	field  string
	negate bool
	value  interface{}
}

func (c *condition) holds(doc Document) bool {
	return equalValues(doc[c.field], c.value) != c.negate
}

// statement is a parsed SQL statement.  The fake understands the subset
// the security scenarios issue.
type statement struct {
	kind    statementKind
	sql     string
	index   string
	columns []string // nil selects every visible field
	where   *condition
	orderBy string
	desc    bool
	pattern string // glob form of SHOW TABLES LIKE
}

const identifier = `[A-Za-z_][A-Za-z0-9_]*`

var (
	selectPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+(?P<columns>.+?)\s+FROM\s+(?P<index>[A-Za-z0-9_.\-]+)` +
		`(?:\s+WHERE\s+(?P<field>` + identifier + `)\s*(?P<op>!=|<>|=)\s*(?P<value>'[^']*'|-?[0-9]+(?:\.[0-9]+)?|TRUE|FALSE))?` +
		`(?:\s+ORDER\s+BY\s+(?P<order>` + identifier + `)(?:\s+(?P<dir>ASC|DESC))?)?\s*;?\s*$`)
	showTablesPattern = regexp.MustCompile(`(?is)^\s*SHOW\s+TABLES(?:\s+LIKE\s+'(?P<like>[^']*)')?\s*;?\s*$`)
	describePattern   = regexp.MustCompile(`(?is)^\s*(?:DESCRIBE|DESC)\s+(?P<index>[A-Za-z0-9_.\-]+)\s*;?\s*$`)
	columnPattern     = regexp.MustCompile(`^` + identifier + `$`)
)

func groups(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = m[i]
		}
	}
	return out
}

func parseStatement(sql string) (*statement, error) {
	if g := groups(selectPattern, sql); g != nil {
		st := &statement{
			kind:    selectStatement,
			sql:     sql,
			index:   g["index"],
			orderBy: g["order"],
			desc:    strings.EqualFold(g["dir"], "DESC"),
		}
		if cols := strings.TrimSpace(g["columns"]); cols != "*" {
			for _, c := range strings.Split(cols, ",") {
				c = strings.TrimSpace(c)
				if !columnPattern.MatchString(c) {
					return nil, parsingError(sql, c)
				}
				st.columns = append(st.columns, c)
			}
		}
		if g["field"] != "" {
			st.where = &condition{
				field:  g["field"],
				negate: g["op"] != "=",
				value:  literal(g["value"]),
			}
		}
		return st, nil
	}

	if g := groups(showTablesPattern, sql); g != nil {
		pattern := "*"
		if like := g["like"]; like != "" {
			pattern = strings.NewReplacer("%", "*", "_", "?").Replace(like)
		}
		return &statement{kind: showTablesStatement, sql: sql, pattern: pattern}, nil
	}

	if g := groups(describePattern, sql); g != nil {
		return &statement{kind: describeStatement, sql: sql, index: g["index"]}, nil
	}

	return nil, parsingError(sql, strings.Fields(sql+" <EOF>")[0])
}

func literal(s string) interface{} {
	if strings.HasPrefix(s, "'") {
		return strings.Trim(s, "'")
	}
	if strings.EqualFold(s, "TRUE") || strings.EqualFold(s, "FALSE") {
		return strings.EqualFold(s, "TRUE")
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// referenced returns every column the statement names, in order of
// appearance, each once.
func (st *statement) referenced() []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			refs = append(refs, c)
		}
	}
	for _, c := range st.columns {
		add(c)
	}
	if st.where != nil {
		add(st.where.field)
	}
	add(st.orderBy)
	return refs
}

// position returns the 1-based line and column of the first whole-word
// occurrence of word, as the verifier reports it.
func position(sql, word string) (int, int) {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	loc := re.FindStringIndex(sql)
	if loc == nil {
		return 1, 1
	}
	before := sql[:loc[0]]
	line := strings.Count(before, "\n") + 1
	col := loc[0] - strings.LastIndex(before, "\n")
	return line, col
}

func parsingError(sql, near string) error {
	line, col := position(sql, near)
	return newAPIError(400, "parsing_exception",
		fmt.Sprintf("line %d:%d: mismatched input '%s'", line, col, near))
}
