//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindParse, "unrecognized log: foo")
	assert.Equal(t, "parse: unrecognized log: foo", err.Error())

	wrapped := WrapError(KindUnexpected, fmt.Errorf("boom"), "reading audit log")
	assert.Equal(t, "unexpected: reading audit log: boom", wrapped.Error())
	assert.EqualError(t, wrapped.Unwrap(), "boom")
}

func TestIsKind(t *testing.T) {
	err := errors.Wrap(Errorf(KindForbidden, "user [%s] denied", "no_access"), "running query")

	assert.True(t, IsKind(err, KindForbidden))
	assert.False(t, IsKind(err, KindUnknownColumn))
	assert.Equal(t, KindForbidden, KindOf(err))

	assert.False(t, IsKind(fmt.Errorf("plain"), KindForbidden))
	assert.Equal(t, KindUnexpected, KindOf(fmt.Errorf("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "match", KindMatch.String())
	assert.Equal(t, "unknown-column", KindUnknownColumn.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
