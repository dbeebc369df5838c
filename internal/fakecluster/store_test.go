//
//  Copyright © Manetu Inc. All rights reserved.
//

package fakecluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureBulk = `{"index":{"_index":"test","_type":"doc","_id":"1"}}
{"a":1,"b":2,"c":3}
{"index":{"_index":"test","_type":"doc","_id":"2"}}
{"a":4,"b":5,"c":6}
{"index":{"_index":"bort","_type":"doc","_id":"1"}}
{"a":"test"}
`

func TestStoreBulk(t *testing.T) {
	s := NewStore()
	n, err := s.Bulk([]byte(fixtureBulk))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{"bort", "test"}, s.Resolve("*"))
	assert.Equal(t, []string{"test"}, s.Resolve("te*"))
	assert.Empty(t, s.Resolve("not_created"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Fields("test"))

	types := s.Types("test")
	assert.Equal(t, "BIGINT", types["a"].SQL)
	assert.Equal(t, "long", types["a"].Mapping)
	assert.Equal(t, "VARCHAR", s.Types("bort")["a"].SQL)
}

func TestStoreBulkReplacesById(t *testing.T) {
	s := NewStore()
	_, err := s.Bulk([]byte(fixtureBulk))
	require.NoError(t, err)
	_, err = s.Bulk([]byte(fixtureBulk))
	require.NoError(t, err)

	assert.Len(t, s.Snapshot("test"), 2)
}

func TestStoreBulkRejectsOtherActions(t *testing.T) {
	_, err := NewStore().Bulk([]byte(`{"delete":{"_index":"test","_id":"1"}}` + "\n"))
	assert.Error(t, err)
}

func TestStoreSnapshotIsIsolated(t *testing.T) {
	s := NewStore()
	s.Put("test", "1", Document{"a": 1.0})

	snap := s.Snapshot("test")
	snap[0]["a"] = 99.0

	assert.Equal(t, 1.0, s.Snapshot("test")[0]["a"])
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	_, err := s.Bulk([]byte(fixtureBulk))
	require.NoError(t, err)

	assert.Equal(t, []string{"test"}, s.Delete("test"))
	assert.False(t, s.Exists("test"))
	assert.True(t, s.Exists("bort"))
	assert.Empty(t, s.Delete("test"))
}
