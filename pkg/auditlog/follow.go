//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Follower tails the audit log and hands every appended event to a callback
// as soon as the file changes.  It watches the parent directory so that it
// can start before the cluster has created the log.
type Follower struct {
	path    string
	offset  int64
	decoder *Decoder
}

// NewFollower creates a follower that starts reading at offset.
func NewFollower(path string, offset int64) *Follower {
	return &Follower{
		path:    filepath.Clean(path),
		offset:  offset,
		decoder: NewDecoder(),
	}
}

// Offset returns the position just past the last event delivered.
func (f *Follower) Offset() int64 {
	return f.offset
}

// Run delivers events until ctx is done, fn returns an error, or a line
// fails to decode.  Events already in the log past the offset are delivered
// first.  Run returns nil when ctx ends it.
func (f *Follower) Run(ctx context.Context, fn func(Event) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create audit log watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(f.path))
	}

	if err := f.drain(fn); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := f.drain(fn); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.SysWarnf("audit log watcher: %v", err)
		}
	}
}

func (f *Follower) drain(fn func(Event) error) error {
	lines, next, err := ReadFrom(f.path, f.offset)
	if err != nil {
		return err
	}

	for _, line := range lines {
		e, err := f.decoder.Decode(line)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	f.offset = next
	return nil
}
