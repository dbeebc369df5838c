//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package policy compiles Rego modules once and evaluates queries against
// them.  The fake cluster expresses its role model as Rego and asks it which
// indices, fields and documents a set of roles may read.
package policy

import (
	"context"
	"strings"

	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/mohae/deepcopy"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

var logger = logging.GetLogger("policy")

const agent = "policy"

// Builtins is a set of builtin function names
type Builtins map[string]struct{}

// Modules maps a module file name to its source.
type Modules map[string]string

// CompilerOptions contains configuration options for the compiler.
type CompilerOptions struct {
	regoVersion  ast.RegoVersion
	capabilities *ast.Capabilities
	trace        bool
}

// CompilerOptionFunc is a function that modifies CompilerOptions.
type CompilerOptionFunc func(*CompilerOptions)

// WithRegoVersion sets the language version modules are parsed with.
func WithRegoVersion(regoVersion ast.RegoVersion) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.regoVersion = regoVersion
	}
}

// WithUnsafeBuiltins removes builtins from the capabilities.  Role policies
// never need network or time access, so callers strip those.
func WithUnsafeBuiltins(unsafe Builtins) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		kept := make([]*ast.Builtin, 0, len(o.capabilities.Builtins))
		for _, b := range o.capabilities.Builtins {
			if _, drop := unsafe[b.Name]; !drop {
				kept = append(kept, b)
			}
		}
		o.capabilities.Builtins = kept
	}
}

// WithTracing records an evaluation trace at debug level.
func WithTracing(trace bool) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.trace = trace
	}
}

// Compiler turns Rego sources into a [Program].
type Compiler struct {
	options *CompilerOptions
}

// NewCompiler creates a compiler for Rego v1 with the default capabilities.
func NewCompiler(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  ast.RegoV1,
		capabilities: ast.CapabilitiesForThisVersion(),
		trace:        false,
	}
	for _, o := range options {
		o(opts)
	}
	return &Compiler{options: opts}
}

// Clone copies the compiler configuration and applies further options
// without affecting the original.
func (c *Compiler) Clone(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  c.options.regoVersion,
		capabilities: deepcopy.Copy(c.options.capabilities).(*ast.Capabilities),
		trace:        c.options.trace,
	}
	for _, o := range options {
		o(opts)
	}
	return &Compiler{options: opts}
}

// Program is a compiled set of modules ready for repeated evaluation.
type Program struct {
	name     string
	compiler *ast.Compiler
	trace    bool
}

// Compile parses and compiles modules.  Parse and compile failures are
// returned together.
func (c *Compiler) Compile(name string, modules Modules) (*Program, error) {
	parsed := make(map[string]*ast.Module, len(modules))
	for file, src := range modules {
		m, err := ast.ParseModuleWithOpts(file, src, ast.ParserOptions{RegoVersion: c.options.regoVersion})
		if err != nil {
			return nil, common.WrapError(common.KindUnexpected, err, "parse "+file)
		}
		parsed[file] = m
	}

	compiler := ast.NewCompiler().WithCapabilities(c.options.capabilities)
	compiler.Compile(parsed)
	if compiler.Failed() {
		return nil, common.WrapError(common.KindUnexpected, compiler.Errors, "compile "+name)
	}

	return &Program{name: name, compiler: compiler, trace: c.options.trace}, nil
}

// Evaluate runs query with input and returns the value of its first
// expression.  A query without results is an error.
func (p *Program) Evaluate(ctx context.Context, query string, input interface{}) (interface{}, error) {
	logger.Debugf(agent, "evaluate", "%s: %s input %+v", p.name, query, input)

	r := rego.New(
		rego.Query(query),
		rego.Compiler(p.compiler),
		rego.Input(input),
		rego.Trace(p.trace),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, common.WrapError(common.KindUnexpected, err, "evaluate "+p.name)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, common.Errorf(common.KindUnexpected, "no results from %s for %s", p.name, query)
	}

	if p.trace {
		var b strings.Builder
		rego.PrintTraceWithLocation(&b, r)
		logger.Debugf(agent, "trace", "%s", b.String())
	}

	return results[0].Expressions[0].Value, nil
}
