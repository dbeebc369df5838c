//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package auditlog verifies the security audit trail written by the cluster
// under test.
//
// The cluster appends one line per audited event to a shared log file.  A
// test captures the file length with [Offset] before it acts, declares the
// events it expects on an [Asserter], and calls [Asserter.AssertLogs].  The
// asserter reads everything appended since the offset, decodes it with a
// [Decoder], drops events that are not access decisions on the SQL actions,
// and requires a one-to-one pairing between the declared [Predicate] values
// and the remaining events.  Order is not significant: the cluster may
// authorize concurrently executed components in any order.
//
// Because the log is written asynchronously, AssertLogs polls with
// exponential backoff until the pairing succeeds or its timeout elapses.  A
// failure trips the shared [Latch], after which every later assertion fails
// immediately: events that turned up late could otherwise be attributed to
// the wrong test.
package auditlog

import (
	"fmt"
	"strings"
)

// EventType is the bracketed event type of an audit line.
type EventType string

// Monitored event types.  Any other type (run_as_granted,
// authentication_success, ...) is noise for the asserter.
const (
	AccessGranted EventType = "access_granted"
	AccessDenied  EventType = "access_denied"
)

// Monitored action names.
const (
	// SQLAction is audited when a principal runs a SQL statement and again
	// for every index the statement touches.
	SQLAction = "indices:data/read/sql"

	// SQLTablesAction is audited when the SQL layer resolves the set of
	// indices up front, for SHOW TABLES and DESCRIBE.
	SQLTablesAction = "indices:data/read/sql/tables"
)

// Request kinds recorded for the monitored actions.
const (
	SQLRequest       = "SqlRequest"
	SQLTablesRequest = "Request"
)

// EventTypeFor returns the event type of an access decision.
func EventTypeFor(granted bool) EventType {
	if granted {
		return AccessGranted
	}
	return AccessDenied
}

// Event is one decoded audit line.  RunAsPrincipal and RunByPrincipal are
// empty when the line does not carry them.  Indices is sorted and holds no
// duplicates.
type Event struct {
	Timestamp      string    `json:"time"`
	Origin         string    `json:"origin"`
	EventType      EventType `json:"event_type"`
	OriginType     string    `json:"origin_type"`
	OriginAddress  string    `json:"origin_address"`
	Principal      string    `json:"principal"`
	RunAsPrincipal string    `json:"run_as_principal,omitempty"`
	RunByPrincipal string    `json:"run_by_principal,omitempty"`
	Action         string    `json:"action"`
	Indices        []string  `json:"indices"`
	Request        string    `json:"request"`
}

// String renders the event for failure diagnostics.  The timestamp is kept
// verbatim so the line can be found in the log file.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{time=%s, origin=%s, event_type=%s, origin_type=%s, origin_address=%s, principal=%s",
		e.Timestamp, e.Origin, e.EventType, e.OriginType, e.OriginAddress, e.Principal)
	if e.RunAsPrincipal != "" {
		fmt.Fprintf(&b, ", run_as_principal=%s", e.RunAsPrincipal)
	}
	if e.RunByPrincipal != "" {
		fmt.Fprintf(&b, ", run_by_principal=%s", e.RunByPrincipal)
	}
	fmt.Fprintf(&b, ", action=%s, indices=[%s], request=%s}", e.Action, strings.Join(e.Indices, ", "), e.Request)
	return b.String()
}
