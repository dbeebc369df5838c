//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("auditlog")

const agent = "asserter"

// Polling defaults, also used in place of non-positive settings.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultInitialInterval = 50 * time.Millisecond
	DefaultMaxInterval     = time.Second
)

const latchedMessage = "previous test had an audit-related failure. All subsequent audit related assertions " +
	"are bogus because we can't guarantee that we fully cleaned up after the last test"

type state int

const (
	accumulating state = iota
	verifying
	confirmed
	failed
)

// AsserterOptions configures an [Asserter].
type AsserterOptions struct {
	Latch           *Latch
	Normalizer      Normalizer
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// AsserterOptionsFunc is a function that modifies AsserterOptions.
type AsserterOptionsFunc func(*AsserterOptions)

// WithLatch shares a failure latch between assertions.  Without it each
// asserter gets a private latch, which only guards itself.
func WithLatch(latch *Latch) AsserterOptionsFunc {
	return func(o *AsserterOptions) {
		o.Latch = latch
	}
}

// WithNormalizer overrides which administrator indices are hidden.
func WithNormalizer(n Normalizer) AsserterOptionsFunc {
	return func(o *AsserterOptions) {
		o.Normalizer = n
	}
}

// WithTimeout bounds how long AssertLogs polls the log.  A non-positive
// timeout selects [DefaultTimeout]; polling is never unbounded.
func WithTimeout(timeout time.Duration) AsserterOptionsFunc {
	return func(o *AsserterOptions) {
		o.Timeout = timeout
	}
}

// WithPollInterval sets the first and the largest delay between polls.
func WithPollInterval(initial, maxInterval time.Duration) AsserterOptionsFunc {
	return func(o *AsserterOptions) {
		o.InitialInterval = initial
		o.MaxInterval = maxInterval
	}
}

// Asserter accumulates the audit events a test expects and then verifies
// them against the log.  An Asserter is used by a single test and verifies
// once.
type Asserter struct {
	path       string
	offset     int64
	opts       AsserterOptions
	decoder    *Decoder
	predicates []Predicate
	buildErr   error
	state      state
}

// NewAsserter creates an asserter that reads path from offset, which must
// have been captured with [Offset] before the test acted.
func NewAsserter(path string, offset int64, options ...AsserterOptionsFunc) *Asserter {
	opts := AsserterOptions{
		Normalizer:      DefaultNormalizer(),
		Timeout:         DefaultTimeout,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
	for _, o := range options {
		o(&opts)
	}
	// backoff treats a zero MaxElapsedTime as "retry forever"
	if opts.Timeout <= 0 {
		logger.SysWarnf("audit timeout %s is not positive; using %s", opts.Timeout, DefaultTimeout)
		opts.Timeout = DefaultTimeout
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = opts.InitialInterval
	}
	if opts.Latch == nil {
		opts.Latch = &Latch{}
	}

	return &Asserter{
		path:    path,
		offset:  offset,
		opts:    opts,
		decoder: NewDecoder(),
	}
}

// Predicates returns the expectations declared so far.
func (a *Asserter) Predicates() []Predicate {
	return a.predicates
}

// Add appends an already built predicate.
func (a *Asserter) Add(p Predicate) *Asserter {
	if a.state != accumulating {
		logger.Warnf(p.Principal, "expect", "ignoring expectation declared after verification: %s", p)
		return a
	}
	a.predicates = append(a.predicates, p)
	return a
}

// Expect declares one event, deriving its request kind from action.  An
// unknown action is reported by AssertLogs.
func (a *Asserter) Expect(granted bool, action, principal string, indices IndicesMatcher) *Asserter {
	p, err := NewPredicate(granted, action, principal, indices)
	if err != nil {
		if a.buildErr == nil {
			a.buildErr = err
		}
		return a
	}
	return a.Add(p)
}

// ExpectRequest declares one event with an explicit request kind.
func (a *Asserter) ExpectRequest(granted bool, action, principal string, indices IndicesMatcher, request string) *Asserter {
	return a.Add(Predicate{
		Granted:   granted,
		Action:    action,
		Principal: principal,
		Indices:   indices,
		Request:   request,
	})
}

// ExpectSQLWithSyncLookup declares a statement authorized once up front and
// then once per index as the query reaches it.
func (a *Asserter) ExpectSQLWithSyncLookup(user string, indices ...string) *Asserter {
	a.Expect(true, SQLAction, user, Empty())
	for _, index := range indices {
		a.Expect(true, SQLAction, user, HasItems(index))
	}
	return a
}

// ExpectSQLWithAsyncLookup declares a statement that first resolves its whole
// index set (SHOW TABLES, DESCRIBE) and is then authorized per index.
// indices must be sorted.
func (a *Asserter) ExpectSQLWithAsyncLookup(user string, indices ...string) *Asserter {
	a.Expect(true, SQLAction, user, Empty())
	a.Expect(true, SQLTablesAction, user, Exactly(indices...))
	for _, index := range indices {
		a.Expect(true, SQLAction, user, HasItems(index))
	}
	return a
}

// AssertLogs verifies that the events appended since the offset pair one to
// one with the declared predicates.  It polls until they do or the timeout
// elapses.  A line that cannot be decoded fails at once.  A mismatch that
// outlives the timeout trips the latch.
func (a *Asserter) AssertLogs(ctx context.Context) error {
	if a.state != accumulating {
		return common.NewError(common.KindPrecondition, "audit assertion already verified")
	}
	a.state = verifying

	if a.buildErr != nil {
		a.state = failed
		return a.buildErr
	}

	if a.opts.Latch.Tripped() {
		a.state = failed
		return common.NewError(common.KindPrecondition, latchedMessage)
	}

	var last error
	operation := func() error {
		events, err := a.collect()
		if err != nil {
			if common.IsKind(err, common.KindParse) || errors.Is(err, ErrShrunk) {
				return backoff.Permanent(err)
			}
			last = err
			return err
		}

		last = Match(a.predicates, events).Err()
		return last
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.opts.InitialInterval
	b.MaxInterval = a.opts.MaxInterval
	b.MaxElapsedTime = a.opts.Timeout
	b.Reset()

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if err == nil {
		a.state = confirmed
		logger.SysDebugf("matched %d audit events", len(a.predicates))
		return nil
	}

	a.state = failed
	if last != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// the context ended the polling; report what the log looked like
		err = errors.Wrap(last, err.Error())
	}
	if common.IsKind(err, common.KindMatch) {
		a.opts.Latch.Trip()
		logger.SysWarn("Failed to find an audit log. Skipping remaining audit assertions "+
			"because the missing audit logs could turn up later.")
	}
	return err
}

// collect reads, decodes, filters and normalizes the events appended since
// the offset.
func (a *Asserter) collect() ([]Event, error) {
	lines, _, err := ReadFrom(a.path, a.offset)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		e, err := a.decoder.Decode(line)
		if err != nil {
			return nil, err
		}
		if !a.opts.Normalizer.Relevant(e) {
			continue
		}
		events = append(events, a.opts.Normalizer.Normalize(e))
	}

	if logger.IsDebugEnabled() {
		for _, e := range events {
			logger.Debugf(e.Principal, agent, "observed %s", e)
		}
	}
	return events, nil
}
