//
//  Copyright © Manetu Inc. All rights reserved.
//

package scenario

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Passed reports whether the scenario succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Runner executes catalog scenarios in order against a fixture.
type Runner struct {
	fixture *Fixture
	catalog *Catalog
	out     io.Writer
}

// NewRunner creates a runner that reports to stdout.
func NewRunner(fixture *Fixture, catalog *Catalog) *Runner {
	return &Runner{fixture: fixture, catalog: catalog, out: os.Stdout}
}

// SetOut redirects the per-scenario report.
func (r *Runner) SetOut(w io.Writer) {
	r.out = w
}

// Run sets up the fixture, runs every scenario matching patterns and tears
// the fixture down.  The returned error covers setup and teardown only;
// scenario failures are in the results.
func (r *Runner) Run(ctx context.Context, patterns []string) ([]Result, error) {
	scenarios := r.catalog.Filter(patterns)
	if len(scenarios) == 0 {
		return nil, errors.New("no scenarios match the specified patterns")
	}

	if err := r.fixture.Setup(ctx); err != nil {
		// a partial bulk load can leave indices behind
		if terr := r.fixture.Teardown(ctx); terr != nil {
			logger.SysErrorf("teardown after failed setup: %+v", terr)
		}
		return nil, err
	}

	results := make([]Result, 0, len(scenarios))
	passed := 0
	for i := range scenarios {
		s := &scenarios[i]
		start := time.Now()
		err := s.Run(ctx, r.fixture)
		results = append(results, Result{Name: s.Name, Err: err, Duration: time.Since(start)})

		if err != nil {
			logger.Errorf(s.User, s.Name, "%+v", err)
			fmt.Fprintf(r.out, "%s: FAIL (%v)\n", s.Name, err)
			continue
		}
		passed++
		fmt.Fprintf(r.out, "%s: PASS\n", s.Name)
	}
	fmt.Fprintf(r.out, "\n%d/%d scenarios passed\n", passed, len(results))

	if err := r.fixture.Teardown(ctx); err != nil {
		return results, errors.Wrap(err, "teardown")
	}
	return results, nil
}

// Failed counts the failed results.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed() {
			n++
		}
	}
	return n
}
