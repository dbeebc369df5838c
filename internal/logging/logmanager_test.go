//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestGetLogger(t *testing.T) {
	resetForTesting()

	l := GetLogger("testmodule")
	assert.NotNil(t, l)
	assert.True(t, l.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, l.IsLevelEnabled(zapcore.DebugLevel))
	assert.Same(t, l, GetLogger("testmodule"))
}

func TestUpdateLogLevels(t *testing.T) {
	resetForTesting()

	err := UpdateLogLevels(".:info;auditlog:debug;cluster:warn")
	assert.NoError(t, err)

	l1 := GetLogger("auditlog")
	assert.True(t, l1.IsLevelEnabled(zapcore.DebugLevel))

	l2 := GetLogger("cluster")
	assert.True(t, l2.IsLevelEnabled(zapcore.WarnLevel))
	assert.False(t, l2.IsLevelEnabled(zapcore.InfoLevel))

	l3 := GetLogger("undeclared")
	assert.True(t, l3.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, l3.IsLevelEnabled(zapcore.DebugLevel))

	err = UpdateLogLevels(".:debug")
	assert.NoError(t, err)

	l4 := GetLogger("undeclared2")
	assert.True(t, l4.IsLevelEnabled(zapcore.DebugLevel))
	assert.True(t, l3.IsLevelEnabled(zapcore.DebugLevel))

	// explicit levels survive later default changes
	assert.False(t, l2.IsLevelEnabled(zapcore.InfoLevel))
}

func TestUpdateLogLevelsWithWhitespace(t *testing.T) {
	resetForTesting()

	err := UpdateLogLevels("  mod1: debug  ;  mod2: error  ;  .: info  ")
	assert.NoError(t, err)

	assert.True(t, GetLogger("mod1").IsLevelEnabled(zapcore.DebugLevel))
	assert.True(t, GetLogger("mod2").IsLevelEnabled(zapcore.ErrorLevel))
	assert.False(t, GetLogger("mod2").IsLevelEnabled(zapcore.WarnLevel))
}

func TestUpdateLogLevelsIgnoresMalformedEntries(t *testing.T) {
	resetForTesting()

	err := UpdateLogLevels("garbage;a:b:c;;.:warn")
	assert.NoError(t, err)
	assert.False(t, GetLogger("x").IsLevelEnabled(zapcore.InfoLevel))
}

func TestTraceLevelMapsToDebug(t *testing.T) {
	resetForTesting()

	err := UpdateLogLevels(".:trace")
	assert.NoError(t, err)
	assert.True(t, GetLogger("testmodule").IsDebugEnabled())
}

// TestRaceCondition makes sure concurrent GetLogger callers are safe.
func TestRaceCondition(t *testing.T) {
	resetForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			l := GetLogger(fmt.Sprintf("module%d", k))
			l.SysDebug("this is a test")
		}(i % 5)
	}
	wg.Wait()
}
