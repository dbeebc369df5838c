//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

// Normalizer selects the events an assertion cares about and strips the
// internal indices the administrator touches incidentally.  The SQL surface
// never exposes those indices, so they are not part of any expectation.
type Normalizer struct {
	// AdminPrincipal is the principal whose events get HiddenIndices removed.
	AdminPrincipal string
	// HiddenIndices are dropped from AdminPrincipal's events.
	HiddenIndices []string
}

// DefaultNormalizer matches the stock test cluster.
func DefaultNormalizer() Normalizer {
	return Normalizer{
		AdminPrincipal: "test_admin",
		HiddenIndices:  []string{".security", ".security-6", ".security-v6"},
	}
}

// Relevant reports whether e is an access decision on a monitored action.
func (n Normalizer) Relevant(e Event) bool {
	if e.EventType != AccessGranted && e.EventType != AccessDenied {
		return false
	}
	return e.Action == SQLAction || e.Action == SQLTablesAction
}

// Normalize returns e with hidden indices removed when it belongs to the
// administrator.  e itself is not modified.
func (n Normalizer) Normalize(e Event) Event {
	if e.Principal != n.AdminPrincipal || len(n.HiddenIndices) == 0 {
		return e
	}

	indices := make([]string, 0, len(e.Indices))
	for _, index := range e.Indices {
		if !n.hidden(index) {
			indices = append(indices, index)
		}
	}
	e.Indices = indices
	return e
}

func (n Normalizer) hidden(index string) bool {
	for _, h := range n.HiddenIndices {
		if h == index {
			return true
		}
	}
	return false
}
