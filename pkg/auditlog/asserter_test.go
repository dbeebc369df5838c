//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastAsserter(path string, offset int64, latch *Latch) *Asserter {
	return NewAsserter(path, offset,
		WithLatch(latch),
		WithTimeout(500*time.Millisecond),
		WithPollInterval(5*time.Millisecond, 20*time.Millisecond),
	)
}

func TestAssertLogsMatches(t *testing.T) {
	path := tempLog(t)
	appendLines(t, path, deniedNoAccess) // written before the test started
	offset, err := Offset(path)
	require.NoError(t, err)

	appendLines(t, path, otherActionNoise, grantedAdmin, runAsNoise, grantedAdminTest)

	latch := &Latch{}
	err = fastAsserter(path, offset, latch).
		ExpectSQLWithSyncLookup("test_admin", "test").
		AssertLogs(context.Background())
	assert.NoError(t, err)
	assert.False(t, latch.Tripped())
}

func TestAssertLogsWaitsForAsynchronousWrites(t *testing.T) {
	path := tempLog(t)
	latch := &Latch{}

	go func() {
		time.Sleep(50 * time.Millisecond)
		appendLines(t, path, deniedNoAccess)
	}()

	err := fastAsserter(path, 0, latch).
		Expect(false, SQLAction, "no_access", Empty()).
		AssertLogs(context.Background())
	assert.NoError(t, err)
}

func TestAssertLogsTripsLatchOnMismatch(t *testing.T) {
	path := tempLog(t)
	appendLines(t, path, grantedAdmin)
	latch := &Latch{}

	start := time.Now()
	err := fastAsserter(path, 0, latch).
		ExpectSQLWithSyncLookup("test_admin", "test").
		AssertLogs(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindMatch))
	assert.Contains(t, err.Error(), "Some checkers [1] didn't match any logs.")
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
	assert.True(t, latch.Tripped())

	// later assertions fail fast without reading the log
	err = fastAsserter(path, 0, latch).
		ExpectSQLWithSyncLookup("test_admin").
		AssertLogs(context.Background())
	assert.True(t, common.IsKind(err, common.KindPrecondition))
	assert.Contains(t, err.Error(), "previous test had an audit-related failure")

	latch.Reset()
	err = fastAsserter(path, 0, latch).
		ExpectSQLWithSyncLookup("test_admin").
		AssertLogs(context.Background())
	assert.NoError(t, err)
}

func TestAssertLogsRejectsUnexplainedEvents(t *testing.T) {
	path := tempLog(t)
	appendLines(t, path, deniedNoAccess, deniedNoAccess)
	latch := &Latch{}

	err := fastAsserter(path, 0, latch).
		Expect(false, SQLAction, "no_access", Empty()).
		AssertLogs(context.Background())
	assert.True(t, common.IsKind(err, common.KindMatch))
	assert.Contains(t, err.Error(), "Not all logs matched.")
	assert.True(t, latch.Tripped())
}

func TestAssertLogsParseErrorIsImmediate(t *testing.T) {
	path := tempLog(t)
	appendLines(t, path, grantedAdmin, "garbage")
	latch := &Latch{}

	a := NewAsserter(path, 0, WithLatch(latch), WithTimeout(time.Minute))
	start := time.Now()
	err := a.ExpectSQLWithSyncLookup("test_admin").AssertLogs(context.Background())
	assert.True(t, common.IsKind(err, common.KindParse))
	assert.Contains(t, err.Error(), "unrecognized log: garbage")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, latch.Tripped())
}

func TestAssertLogsShrunkLog(t *testing.T) {
	path := tempLog(t)
	appendLines(t, path, grantedAdmin, grantedAdmin)
	offset, err := Offset(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, 0))

	err = NewAsserter(path, offset, WithTimeout(time.Minute)).AssertLogs(context.Background())
	assert.ErrorIs(t, err, ErrShrunk)
}

func TestAssertLogsNoExpectationsNoEvents(t *testing.T) {
	path := tempLog(t)
	appendLines(t, path, runAsNoise, otherActionNoise)

	assert.NoError(t, fastAsserter(path, 0, &Latch{}).AssertLogs(context.Background()))
}

func TestAssertLogsOffsetExcludesEarlierTests(t *testing.T) {
	path := tempLog(t)
	latch := &Latch{}

	first, err := Offset(path)
	require.NoError(t, err)
	appendLines(t, path, deniedNoAccess)
	require.NoError(t, fastAsserter(path, first, latch).
		Expect(false, SQLAction, "no_access", Empty()).
		AssertLogs(context.Background()))

	second, err := Offset(path)
	require.NoError(t, err)
	appendLines(t, path, grantedAdmin)
	require.NoError(t, fastAsserter(path, second, latch).
		Expect(true, SQLAction, "test_admin", Empty()).
		AssertLogs(context.Background()))
}

func TestAssertLogsUnknownAction(t *testing.T) {
	err := fastAsserter(tempLog(t), 0, &Latch{}).
		Expect(true, "indices:data/read/search", "test_admin", Empty()).
		AssertLogs(context.Background())
	assert.ErrorContains(t, err, "unknown action [indices:data/read/search]")
}

func TestAssertLogsOnlyOnce(t *testing.T) {
	path := tempLog(t)
	a := fastAsserter(path, 0, &Latch{})
	require.NoError(t, a.AssertLogs(context.Background()))

	a.Expect(true, SQLAction, "late", Empty())
	assert.Empty(t, a.Predicates())

	err := a.AssertLogs(context.Background())
	assert.True(t, common.IsKind(err, common.KindPrecondition))
}

func TestAssertLogsContextCancelled(t *testing.T) {
	path := tempLog(t)
	latch := &Latch{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewAsserter(path, 0, WithLatch(latch), WithTimeout(time.Minute)).
		Expect(true, SQLAction, "test_admin", Empty()).
		AssertLogs(ctx)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindMatch))
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.True(t, latch.Tripped())
}

func TestExpectSQLWithAsyncLookup(t *testing.T) {
	a := NewAsserter("unused", 0).ExpectSQLWithAsyncLookup("full_access", "bort", "test")

	p := a.Predicates()
	require.Len(t, p, 4)
	assert.Equal(t, SQLAction, p[0].Action)
	assert.True(t, p[0].Indices.Matches(nil))
	assert.Equal(t, SQLTablesAction, p[1].Action)
	assert.Equal(t, SQLTablesRequest, p[1].Request)
	assert.True(t, p[1].Indices.Matches([]string{"bort", "test"}))
	assert.False(t, p[1].Indices.Matches([]string{"bort"}))
	assert.True(t, p[2].Indices.Matches([]string{"bort"}))
	assert.True(t, p[3].Indices.Matches([]string{"test"}))
}

func TestNonPositiveTimeoutIsBounded(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		a := NewAsserter("unused", 0, WithTimeout(timeout), WithPollInterval(0, 0))
		assert.Equal(t, DefaultTimeout, a.opts.Timeout)
		assert.Equal(t, DefaultInitialInterval, a.opts.InitialInterval)
		assert.Equal(t, DefaultInitialInterval, a.opts.MaxInterval)
	}
}

func TestNonPositiveTimeoutStillGivesUp(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the default timeout")
	}
	path := tempLog(t)
	appendLines(t, path, grantedAdmin)
	latch := &Latch{}

	a := NewAsserter(path, 0, WithLatch(latch), WithTimeout(0), WithPollInterval(time.Millisecond, 5*time.Millisecond))
	a.Expect(false, SQLAction, "nobody", Empty())

	done := make(chan error, 1)
	go func() { done <- a.AssertLogs(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, common.IsKind(err, common.KindMatch))
		assert.True(t, latch.Tripped())
	case <-time.After(DefaultTimeout + 5*time.Second):
		t.Fatal("AssertLogs kept polling past the default timeout")
	}
}
