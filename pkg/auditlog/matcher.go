//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"fmt"
	"strings"
)

// IndicesMatcher decides whether the sorted index set of an event is
// acceptable.
type IndicesMatcher interface {
	Matches(indices []string) bool
	String() string
}

type emptyMatcher struct{}

// Empty matches an event that names no indices.  The SQL layer authorizes
// the statement itself this way before it touches any index.
func Empty() IndicesMatcher {
	return emptyMatcher{}
}

func (emptyMatcher) Matches(indices []string) bool {
	return len(indices) == 0
}

func (emptyMatcher) String() string {
	return "an empty collection"
}

type hasItemsMatcher struct {
	items []string
}

// HasItems matches an event whose indices include every one of items.
func HasItems(items ...string) IndicesMatcher {
	return hasItemsMatcher{items: items}
}

func (m hasItemsMatcher) Matches(indices []string) bool {
	for _, item := range m.items {
		found := false
		for _, index := range indices {
			if index == item {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m hasItemsMatcher) String() string {
	return fmt.Sprintf("a collection containing [%s]", strings.Join(m.items, ", "))
}

type exactlyMatcher struct {
	items []string
}

// Exactly matches an event whose indices equal items, in order.  Event
// indices are sorted, so items must be given sorted as well.
func Exactly(items ...string) IndicesMatcher {
	return exactlyMatcher{items: items}
}

func (m exactlyMatcher) Matches(indices []string) bool {
	if len(indices) != len(m.items) {
		return false
	}
	for i := range indices {
		if indices[i] != m.items[i] {
			return false
		}
	}
	return true
}

func (m exactlyMatcher) String() string {
	return fmt.Sprintf("exactly [%s]", strings.Join(m.items, ", "))
}
