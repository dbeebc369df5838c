//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"fmt"

	"github.com/manetu/sqlsecurity/pkg/common"
)

// Predicate is one expected audit event.
type Predicate struct {
	Granted   bool
	Action    string
	Principal string
	Indices   IndicesMatcher
	Request   string
}

// NewPredicate builds a predicate whose request kind follows from the action.
// Only the two monitored actions are accepted.
func NewPredicate(granted bool, action, principal string, indices IndicesMatcher) (Predicate, error) {
	request, err := RequestFor(action)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{
		Granted:   granted,
		Action:    action,
		Principal: principal,
		Indices:   indices,
		Request:   request,
	}, nil
}

// RequestFor returns the request kind the cluster records for action.
func RequestFor(action string) (string, error) {
	switch action {
	case SQLAction:
		return SQLRequest, nil
	case SQLTablesAction:
		return SQLTablesRequest, nil
	default:
		return "", common.Errorf(common.KindUnexpected, "unknown action [%s]", action)
	}
}

// Matches reports whether e is the event this predicate describes.
func (p Predicate) Matches(e Event) bool {
	return e.EventType == EventTypeFor(p.Granted) &&
		e.Action == p.Action &&
		e.Principal == p.Principal &&
		p.Indices.Matches(e.Indices) &&
		e.Request == p.Request
}

func (p Predicate) String() string {
	return fmt.Sprintf("{event_type=%s, action=%s, principal=%s, indices=%s, request=%s}",
		EventTypeFor(p.Granted), p.Action, p.Principal, p.Indices, p.Request)
}
