//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"fmt"
	"strings"

	"github.com/manetu/sqlsecurity/pkg/common"
)

// MatchResult is the outcome of pairing predicates with events.
type MatchResult struct {
	// All holds every event considered, in log order.
	All []Event
	// Unmatched holds the positions of predicates that found no event.
	Unmatched []int
	// Leftover holds events no predicate claimed, in log order.
	Leftover []Event

	predicates []Predicate
}

// Match pairs every predicate, in declaration order, with the first still
// unclaimed event it matches.  When that event is already claimed, the
// earlier predicate is moved to another event it matches if it can be, so a
// pairing is found whenever one exists.  The pairing is a bijection exactly
// when [MatchResult.OK] is true.
func Match(predicates []Predicate, events []Event) MatchResult {
	result := MatchResult{All: events, predicates: predicates}

	// owner[j] is the predicate claiming events[j], or -1
	owner := make([]int, len(events))
	for j := range owner {
		owner[j] = -1
	}

	var claim func(i int, visited []bool) bool
	claim = func(i int, visited []bool) bool {
		for j, e := range events {
			if visited[j] || !predicates[i].Matches(e) {
				continue
			}
			visited[j] = true
			if owner[j] < 0 || claim(owner[j], visited) {
				owner[j] = i
				return true
			}
		}
		return false
	}

	for i := range predicates {
		if !claim(i, make([]bool, len(events))) {
			result.Unmatched = append(result.Unmatched, i)
		}
	}

	for j, e := range events {
		if owner[j] < 0 {
			result.Leftover = append(result.Leftover, e)
		}
	}
	return result
}

// OK reports whether every predicate and every event was paired.
func (r MatchResult) OK() bool {
	return len(r.Unmatched) == 0 && len(r.Leftover) == 0
}

// Err returns nil on success and otherwise a [common.KindMatch] error naming
// each unmatched predicate and dumping the events.
func (r MatchResult) Err() error {
	if r.OK() {
		return nil
	}

	var b strings.Builder
	if len(r.Unmatched) > 0 {
		fmt.Fprintf(&b, "Some checkers %v didn't match any logs.", r.Unmatched)
		for _, i := range r.Unmatched {
			fmt.Fprintf(&b, "\n  [%d] %s", i, r.predicates[i])
		}
		b.WriteString("\nAll logs:")
		writeEvents(&b, r.All)
		b.WriteString("\nRemaining logs:")
		writeEvents(&b, r.Leftover)
	} else {
		b.WriteString("Not all logs matched. Unmatched logs:")
		writeEvents(&b, r.Leftover)
	}

	return common.NewError(common.KindMatch, b.String())
}

func writeEvents(b *strings.Builder, events []Event) {
	for _, e := range events {
		b.WriteByte('\n')
		b.WriteString(e.String())
	}
}
