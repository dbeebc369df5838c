//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlEvent(granted bool, principal string, indices ...string) Event {
	return Event{
		Timestamp: "t",
		EventType: EventTypeFor(granted),
		Principal: principal,
		Action:    SQLAction,
		Indices:   SplitIndices(joinIndices(indices)),
		Request:   SQLRequest,
	}
}

func tablesEvent(principal string, indices ...string) Event {
	return Event{
		Timestamp: "t",
		EventType: AccessGranted,
		Principal: principal,
		Action:    SQLTablesAction,
		Indices:   SplitIndices(joinIndices(indices)),
		Request:   SQLTablesRequest,
	}
}

func mustPredicate(t *testing.T, granted bool, action, principal string, indices IndicesMatcher) Predicate {
	p, err := NewPredicate(granted, action, principal, indices)
	require.NoError(t, err)
	return p
}

func TestIndicesMatchers(t *testing.T) {
	assert.True(t, Empty().Matches(nil))
	assert.True(t, Empty().Matches([]string{}))
	assert.False(t, Empty().Matches([]string{"test"}))

	assert.True(t, HasItems("test").Matches([]string{"bort", "test"}))
	assert.False(t, HasItems("test").Matches([]string{"bort"}))
	assert.True(t, HasItems().Matches(nil))

	assert.True(t, Exactly("*", "-*").Matches([]string{"*", "-*"}))
	assert.False(t, Exactly("-*", "*").Matches([]string{"*", "-*"}))
	assert.False(t, Exactly("bort").Matches([]string{"bort", "test"}))
	assert.True(t, Exactly().Matches([]string{}))

	assert.Equal(t, "a collection containing [test]", HasItems("test").String())
	assert.Equal(t, "exactly [bort, test]", Exactly("bort", "test").String())
}

func TestRequestFor(t *testing.T) {
	r, err := RequestFor(SQLAction)
	require.NoError(t, err)
	assert.Equal(t, SQLRequest, r)

	r, err = RequestFor(SQLTablesAction)
	require.NoError(t, err)
	assert.Equal(t, SQLTablesRequest, r)

	_, err = RequestFor("indices:data/read/search")
	assert.EqualError(t, err, "unexpected: unknown action [indices:data/read/search]")
}

func TestPredicateMatches(t *testing.T) {
	p := mustPredicate(t, false, SQLAction, "wrong_access", HasItems("test"))

	assert.True(t, p.Matches(sqlEvent(false, "wrong_access", "test")))
	assert.False(t, p.Matches(sqlEvent(true, "wrong_access", "test")))
	assert.False(t, p.Matches(sqlEvent(false, "no_access", "test")))
	assert.False(t, p.Matches(sqlEvent(false, "wrong_access")))

	e := sqlEvent(false, "wrong_access", "test")
	e.Request = "SearchRequest"
	assert.False(t, p.Matches(e))
}

func TestMatchIsOrderInsensitive(t *testing.T) {
	predicates := []Predicate{
		mustPredicate(t, true, SQLAction, "full_access", Empty()),
		mustPredicate(t, true, SQLAction, "full_access", HasItems("test")),
		mustPredicate(t, true, SQLAction, "test_admin", Empty()),
		mustPredicate(t, true, SQLAction, "test_admin", HasItems("test")),
	}
	events := []Event{
		sqlEvent(true, "test_admin", "test"),
		sqlEvent(true, "full_access"),
		sqlEvent(true, "test_admin"),
		sqlEvent(true, "full_access", "test"),
	}

	r := Match(predicates, events)
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())
	assert.Empty(t, r.Unmatched)
	assert.Empty(t, r.Leftover)
}

func TestMatchReportsUnmatchedPredicates(t *testing.T) {
	predicates := []Predicate{
		mustPredicate(t, true, SQLAction, "wrong_access", Empty()),
		mustPredicate(t, false, SQLAction, "wrong_access", HasItems("test")),
	}
	events := []Event{sqlEvent(true, "wrong_access"), sqlEvent(true, "wrong_access", "test")}

	r := Match(predicates, events)
	assert.False(t, r.OK())
	assert.Equal(t, []int{1}, r.Unmatched)
	require.Len(t, r.Leftover, 1)
	assert.Equal(t, []string{"test"}, r.Leftover[0].Indices)

	err := r.Err()
	assert.True(t, common.IsKind(err, common.KindMatch))
	assert.Contains(t, err.Error(), "Some checkers [1] didn't match any logs.")
	assert.Contains(t, err.Error(), "[1] {event_type=access_denied, action=indices:data/read/sql, principal=wrong_access")
	assert.Contains(t, err.Error(), "All logs:")
	assert.Contains(t, err.Error(), "Remaining logs:\n{time=t")
}

func TestMatchReportsLeftoverEvents(t *testing.T) {
	predicates := []Predicate{mustPredicate(t, false, SQLAction, "no_access", Empty())}
	events := []Event{sqlEvent(false, "no_access"), sqlEvent(false, "no_access")}

	r := Match(predicates, events)
	assert.Empty(t, r.Unmatched)
	assert.Len(t, r.Leftover, 1)
	assert.Contains(t, r.Err().Error(), "Not all logs matched. Unmatched logs:")
}

func TestMatchEachEventOnce(t *testing.T) {
	// two identical expectations need two events
	predicates := []Predicate{
		mustPredicate(t, true, SQLAction, "only_a", Empty()),
		mustPredicate(t, true, SQLAction, "only_a", Empty()),
	}

	r := Match(predicates, []Event{sqlEvent(true, "only_a")})
	assert.Equal(t, []int{1}, r.Unmatched)
	assert.Empty(t, r.Leftover)
}

func TestMatchReassignsOverlappingPredicates(t *testing.T) {
	// the first predicate takes the first event, which the second one needs
	predicates := []Predicate{
		mustPredicate(t, true, SQLAction, "test_admin", HasItems("bort")),
		mustPredicate(t, true, SQLAction, "test_admin", HasItems("test")),
	}
	events := []Event{
		sqlEvent(true, "test_admin", "bort", "test"),
		sqlEvent(true, "test_admin", "bort"),
	}

	r := Match(predicates, events)
	assert.True(t, r.OK())
	assert.Empty(t, r.Unmatched)
	assert.Empty(t, r.Leftover)
}

func TestMatchDoesNotModifyEvents(t *testing.T) {
	events := []Event{sqlEvent(true, "a"), sqlEvent(true, "b")}
	Match([]Predicate{mustPredicate(t, true, SQLAction, "a", Empty())}, events)
	assert.Equal(t, "a", events[0].Principal)
	assert.Equal(t, "b", events[1].Principal)
}

func describe(e Event) Predicate {
	return Predicate{
		Granted:   e.EventType == AccessGranted,
		Action:    e.Action,
		Principal: e.Principal,
		Indices:   Exactly(e.Indices...),
		Request:   e.Request,
	}
}

func genSQLEvent() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.OneConstOf("test_admin", "full_access", "only_a"),
		gen.OneConstOf(SQLAction, SQLTablesAction),
		gen.SliceOf(gen.OneConstOf("test", "bort"), reflectString),
	).Map(func(v []interface{}) Event {
		e := sqlEvent(v[0].(bool), v[1].(string), v[3].([]string)...)
		e.Action = v[2].(string)
		if e.Action == SQLTablesAction {
			e.Request = SQLTablesRequest
		}
		return e
	})
}

func TestMatchProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a predicate per event in any order matches", prop.ForAll(
		func(events []Event, seed int64) bool {
			predicates := make([]Predicate, len(events))
			for i, e := range events {
				predicates[i] = describe(e)
			}
			rand.New(rand.NewSource(seed)).Shuffle(len(predicates), func(i, j int) {
				predicates[i], predicates[j] = predicates[j], predicates[i]
			})
			return Match(predicates, events).OK()
		},
		gen.SliceOf(genSQLEvent()),
		gen.Int64(),
	))

	properties.Property("overlapping hasItems predicates in any order match", prop.ForAll(
		func(events []Event, seed int64) bool {
			predicates := make([]Predicate, len(events))
			for i, e := range events {
				p := describe(e)
				if len(e.Indices) > 0 {
					p.Indices = HasItems(e.Indices[0])
				} else {
					p.Indices = HasItems()
				}
				predicates[i] = p
			}
			rand.New(rand.NewSource(seed)).Shuffle(len(predicates), func(i, j int) {
				predicates[i], predicates[j] = predicates[j], predicates[i]
			})
			return Match(predicates, events).OK()
		},
		gen.SliceOf(genSQLEvent()),
		gen.Int64(),
	))

	properties.Property("an unexplained event is reported", prop.ForAll(
		func(events []Event) bool {
			predicates := make([]Predicate, 0, len(events))
			for _, e := range events[1:] {
				predicates = append(predicates, describe(e))
			}
			r := Match(predicates, events)
			return !r.OK() && len(r.Unmatched) == 0 && len(r.Leftover) == 1
		},
		gen.SliceOfN(3, genSQLEvent()).SuchThat(func(events []Event) bool { return len(events) > 0 }),
	))

	properties.Property("an unobserved expectation is reported", prop.ForAll(
		func(events []Event) bool {
			predicates := make([]Predicate, 0, len(events)+1)
			for _, e := range events {
				predicates = append(predicates, describe(e))
			}
			predicates = append(predicates, mustPredicate(t, true, SQLAction, "nobody", Empty()))
			r := Match(predicates, events)
			return !r.OK() && len(r.Unmatched) == 1 && r.Unmatched[0] == len(events) && len(r.Leftover) == 0
		},
		gen.SliceOf(genSQLEvent()),
	))

	properties.TestingRun(t)
}
