//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/pkg/errors"
)

// ErrShrunk is wrapped by reads that find the log shorter than the offset
// they start from.  The log is append-only, so this means it was rotated or
// truncated underneath the test.
var ErrShrunk = errors.New("audit log shrank")

// Offset returns how many bytes of the log have been written.  A log that
// does not exist yet has offset zero.
func Offset(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "stat audit log %s", path)
	}
	if !info.Mode().IsRegular() {
		return 0, common.Errorf(common.KindUnexpected, "expected audit log [%s] to be a plain file but wasn't", path)
	}
	return info.Size(), nil
}

// ReadFrom returns the complete lines appended after offset, and the offset
// just past the last of them.  A trailing line still being written (no
// newline yet) is left for the next read.  A missing file reads as empty
// when offset is zero.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	f, err := os.Open(path) // #nosec G304 -- the audit log path is operator configuration
	if os.IsNotExist(err) && offset == 0 {
		return nil, 0, nil
	}
	if err != nil {
		return nil, offset, errors.Wrapf(err, "open audit log %s", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, errors.Wrapf(err, "stat audit log %s", path)
	}
	if info.Size() < offset {
		return nil, offset, common.WrapError(common.KindUnexpected, ErrShrunk,
			fmt.Sprintf("%s is %d bytes, expected at least %d", path, info.Size(), offset))
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, errors.Wrapf(err, "seek audit log %s", path)
	}

	var lines []string
	r := bufio.NewReader(f)
	next := offset
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			return lines, next, nil
		}
		if err != nil {
			return nil, offset, errors.Wrapf(err, "read audit log %s", path)
		}
		next += int64(len(line))
		lines = append(lines, line[:len(line)-1])
	}
}
