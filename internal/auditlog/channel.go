//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"github.com/manetu/sqlsecurity/pkg/auditlog"
)

// ChannelFactory is a factory for ChannelStream
type ChannelFactory struct {
	ch chan auditlog.Event
}

// ChannelStream implements the Stream interface by writing events to a channel.
type ChannelStream struct {
	ch chan auditlog.Event
}

// NewChannelFactory creates a factory whose streams publish to ch.  Tests use
// it to observe what a fake cluster audits without going through a file.
func NewChannelFactory(ch chan auditlog.Event) auditlog.Factory {
	return &ChannelFactory{ch: ch}
}

// NewStream creates a new ChannelStream.
func (f *ChannelFactory) NewStream() (auditlog.Stream, error) {
	return &ChannelStream{ch: f.ch}, nil
}

// Send publishes the event.
func (s *ChannelStream) Send(e auditlog.Event) error {
	s.ch <- e
	return nil
}

// Close closes the underlying channel.
func (s *ChannelStream) Close() {
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}
