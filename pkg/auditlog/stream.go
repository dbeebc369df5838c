//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Factory creates audit record [Stream] instances.
//
// Early initialization (validating a path) happens when the factory is
// built; late initialization (opening the file) happens in NewStream.
type Factory interface {
	NewStream() (Stream, error)
}

// Stream delivers audit events to a destination in [SchemaV1] form.
//
// Implementations must be safe for concurrent use; Send must not modify the
// event.
type Stream interface {
	Send(e Event) error
	Close()
}

// IoWriterFactory creates streams that write to an [io.Writer].
type IoWriterFactory struct {
	writer io.Writer
}

// IoWriterStream writes one encoded line per event.  Writes are atomic at
// line level.
type IoWriterStream struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// NewIoWriterFactory creates a [Factory] that writes to w.  The writer is
// never closed by the stream.
func NewIoWriterFactory(w io.Writer) Factory {
	return &IoWriterFactory{writer: w}
}

// NewStream creates a new [IoWriterStream].
func (f *IoWriterFactory) NewStream() (Stream, error) {
	return &IoWriterStream{writer: f.writer}, nil
}

// Send encodes the event and writes it followed by a newline.
func (s *IoWriterStream) Send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintln(s.writer, Encode(e))
	return err
}

// Close closes the underlying file for file streams and is a no-op otherwise.
func (s *IoWriterStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closer != nil {
		_ = s.closer.Close()
		s.closer = nil
	}
}

// FileFactory creates streams that append to a file, creating it if needed.
type FileFactory struct {
	path string
}

// NewFileFactory creates a [Factory] that appends to path.
func NewFileFactory(path string) (Factory, error) {
	if path == "" {
		return nil, errors.New("audit log path must not be empty")
	}
	return &FileFactory{path: path}, nil
}

// NewStream opens the file in append mode.
func (f *FileFactory) NewStream() (Stream, error) {
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, errors.Wrapf(err, "open audit log %s", f.path)
	}
	return &IoWriterStream{writer: file, closer: file}, nil
}

// NullFactory creates streams that drop every event.
type NullFactory struct{}

// NullStream drops all writes to the floor.  It is useful when a fake
// cluster runs without auditing.
type NullStream struct{}

// NewNullFactory creates a [Factory] for [NullStream].
func NewNullFactory() Factory {
	return &NullFactory{}
}

// NewStream creates a new NullStream.
func (f *NullFactory) NewStream() (Stream, error) {
	return &NullStream{}, nil
}

// Send drops the event.
func (s *NullStream) Send(Event) error {
	return nil
}

// Close is a no-op.
func (s *NullStream) Close() {}
