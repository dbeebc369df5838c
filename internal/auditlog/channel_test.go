//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"testing"

	"github.com/manetu/sqlsecurity/pkg/auditlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelStream(t *testing.T) {
	ch := make(chan auditlog.Event, 2)
	stream, err := NewChannelFactory(ch).NewStream()
	require.NoError(t, err)

	e := auditlog.Event{EventType: auditlog.AccessGranted, Principal: "only_a", Action: auditlog.SQLAction}
	require.NoError(t, stream.Send(e))
	stream.Close()

	got, ok := <-ch
	assert.True(t, ok)
	assert.Equal(t, e, got)

	_, ok = <-ch
	assert.False(t, ok)
}
