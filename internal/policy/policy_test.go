//
//  Copyright © Manetu Inc. All rights reserved.
//

package policy

import (
	"context"
	"testing"

	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allowAdmin = `
package authz

default allow := false

allow if input.user == "admin"
`

func TestCompileAndEvaluate(t *testing.T) {
	policy, err := NewCompiler().Compile("test", Modules{"test.rego": allowAdmin})
	require.NoError(t, err)

	v, err := policy.Evaluate(context.Background(), "data.authz.allow", map[string]interface{}{"user": "admin"})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = policy.Evaluate(context.Background(), "data.authz.allow", map[string]interface{}{"user": "bob"})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := NewCompiler().Compile("test", Modules{"test.rego": "package authz\nallow if { this is invalid }"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindUnexpected))
}

func TestCompileUndefinedFunction(t *testing.T) {
	_, err := NewCompiler().Compile("test", Modules{"test.rego": "package authz\nallow if data.nothing.here()"})
	assert.Error(t, err)
}

func TestUnsafeBuiltinsRemoved(t *testing.T) {
	src := `
package authz

resp := http.send({"method": "get", "url": "http://localhost"})
`
	base := NewCompiler()
	_, err := base.Clone(WithUnsafeBuiltins(Builtins{"http.send": {}})).Compile("test", Modules{"test.rego": src})
	assert.Error(t, err)

	// the original compiler keeps its capabilities
	_, err = base.Compile("test", Modules{"test.rego": src})
	assert.NoError(t, err)
}

func TestEvaluateUndefined(t *testing.T) {
	policy, err := NewCompiler().Compile("test", Modules{"test.rego": "package authz\n\nallow if input.user == \"admin\""})
	require.NoError(t, err)

	_, err = policy.Evaluate(context.Background(), "data.authz.allow", map[string]interface{}{"user": "bob"})
	assert.ErrorContains(t, err, "no results")
}

func TestTracingDoesNotChangeResult(t *testing.T) {
	policy, err := NewCompiler(WithTracing(true)).Compile("test", Modules{"test.rego": allowAdmin})
	require.NoError(t, err)

	v, err := policy.Evaluate(context.Background(), "data.authz.allow", map[string]interface{}{"user": "admin"})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
