//
//  Copyright © Manetu Inc. All rights reserved.
//

package fakecluster

import (
	"sync"
	"time"

	"github.com/manetu/sqlsecurity/pkg/auditlog"
)

const timestampLayout = "2006-01-02T15:04:05,000"

// auditor writes events to a stream from a background goroutine.  Records
// are written after the request that caused them has been answered, as the
// real audit trail is.
type auditor struct {
	mu     sync.Mutex
	queue  chan auditlog.Event
	closed bool
	done   chan struct{}
	stream auditlog.Stream
	delay  time.Duration
}

func newAuditor(stream auditlog.Stream, delay time.Duration) *auditor {
	a := &auditor{
		queue:  make(chan auditlog.Event, 1024),
		done:   make(chan struct{}),
		stream: stream,
		delay:  delay,
	}
	go a.run()
	return a
}

func (a *auditor) run() {
	defer close(a.done)
	for e := range a.queue {
		if a.delay > 0 {
			time.Sleep(a.delay)
		}
		if err := a.stream.Send(e); err != nil {
			logger.SysErrorf("failed to write audit event %s: %v", e, err)
		}
	}
}

// record queues e.  Events recorded after close are dropped.
func (a *auditor) record(e auditlog.Event) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(timestampLayout)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		logger.SysWarnf("dropping audit event after shutdown: %s", e)
		return
	}
	a.queue <- e
}

// close writes every queued event and closes the stream.
func (a *auditor) close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	a.stream.Close()
}
