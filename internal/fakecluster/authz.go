//
//  Copyright © Manetu Inc. All rights reserved.
//

package fakecluster

import (
	"context"
	"embed"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/manetu/sqlsecurity/internal/policy"
	"github.com/pkg/errors"
)

//go:embed roles.rego authz.rego
var policies embed.FS

const decisionQuery = "data.sqlsec.authz"

// Grant is what a set of roles may do with one index.
type Grant struct {
	Superuser bool                     `json:"superuser"`
	Manage    bool                     `json:"manage"`
	RunAs     bool                     `json:"run_as"`
	SQL       bool                     `json:"sql"`
	Read      bool                     `json:"read"`
	Fields    []string                 `json:"fields"`
	Hide      []map[string]interface{} `json:"hide"`
}

// Visible reports whether document level security lets the grant see doc.
func (g Grant) Visible(doc map[string]interface{}) bool {
	if len(g.Hide) == 0 {
		return true
	}
	for _, h := range g.Hide {
		if !matchesAll(doc, h) {
			return true
		}
	}
	return false
}

func matchesAll(doc, values map[string]interface{}) bool {
	for field, want := range values {
		if !equalValues(doc[field], want) {
			return false
		}
	}
	return true
}

// equalValues compares decoded JSON values.
func equalValues(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}

// Authorizer evaluates the role model.
type Authorizer struct {
	program *policy.Program
}

// NewAuthorizer compiles the embedded role model.
func NewAuthorizer() (*Authorizer, error) {
	modules := policy.Modules{}
	for _, name := range []string{"roles.rego", "authz.rego"} {
		src, err := policies.ReadFile(name)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		modules[name] = string(src)
	}

	compiler := policy.NewCompiler(
		policy.WithTracing(logger.IsDebugEnabled()),
		policy.WithUnsafeBuiltins(policy.Builtins{"http.send": {}, "net.lookup_ip_addr": {}, "opa.runtime": {}}),
	)
	program, err := compiler.Compile("authz", modules)
	if err != nil {
		return nil, err
	}
	return &Authorizer{program: program}, nil
}

// Evaluate returns what roles may do with index, whose documents hold
// fields.  An empty index answers only the index-independent questions.
func (a *Authorizer) Evaluate(ctx context.Context, roles []string, index string, fields []string) (Grant, error) {
	if roles == nil {
		roles = []string{}
	}
	if fields == nil {
		fields = []string{}
	}

	value, err := a.program.Evaluate(ctx, decisionQuery, map[string]interface{}{
		"roles":  roles,
		"index":  index,
		"fields": fields,
	})
	if err != nil {
		return Grant{}, err
	}

	// the decision document only holds JSON types, so a round trip is enough
	// to get at it through the struct tags
	raw, err := json.Marshal(value)
	if err != nil {
		return Grant{}, errors.Wrap(err, "marshal decision")
	}
	var g Grant
	if err := json.Unmarshal(raw, &g); err != nil {
		return Grant{}, errors.Wrap(err, "unmarshal decision")
	}
	sort.Strings(g.Fields)
	return g, nil
}
