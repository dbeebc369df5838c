//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import "sync/atomic"

// Latch records that an audit assertion has failed.  Once tripped, every
// assertion sharing the latch fails fast until the suite resets it.
type Latch struct {
	tripped atomic.Bool
}

// Trip marks the audit trail as untrustworthy.
func (l *Latch) Trip() {
	l.tripped.Store(true)
}

// Tripped reports whether an earlier assertion failed.
func (l *Latch) Tripped() bool {
	return l.tripped.Load()
}

// Reset clears the latch.  Only suite teardown should call it.
func (l *Latch) Reset() {
	l.tripped.Store(false)
}
