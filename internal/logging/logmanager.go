//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// LogManager keeps track of all instantiated loggers
type LogManager struct {
	loggers  map[string]*Logger
	explicit map[string]bool
	defLevel zapcore.Level
}

var (
	manager *LogManager
	mu      sync.RWMutex
	once    sync.Once
)

// resetForTesting resets the manager state - only for testing
func resetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	manager = nil
	once = sync.Once{}
}

func initManager() {
	manager = &LogManager{
		loggers:  make(map[string]*Logger),
		explicit: make(map[string]bool),
		defLevel: zapcore.InfoLevel,
	}
}

// GetLogger returns the logger for the specified module, creating it at the
// current default level on first use.
func GetLogger(module string) *Logger {
	once.Do(initManager)

	mu.RLock()
	l := manager.loggers[module]
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()

	if l := manager.loggers[module]; l != nil {
		return l
	}

	l = newLogger(module)
	l.SetLevel(manager.defLevel)
	manager.loggers[module] = l

	return l
}

// parseLevel converts a string level to zapcore.Level.  Unknown levels fall
// back to info; "trace" maps to debug since zap has no trace level.
func parseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug", "trace":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// UpdateLogLevels updates log levels from a string of the form
// "auditlog:debug;cluster:error;.:info".  Whitespace is ignored.  The "."
// module sets the default for every logger without an explicit level.
func UpdateLogLevels(logstr string) error {
	once.Do(initManager)

	logstr = strings.Join(strings.Fields(logstr), "")

	mu.Lock()
	defer mu.Unlock()

	var defaultLevel *zapcore.Level

	for _, entry := range strings.Split(logstr, ";") {
		module, levelStr, ok := strings.Cut(entry, ":")
		if !ok || strings.Contains(levelStr, ":") {
			continue
		}

		level := parseLevel(levelStr)
		if module == "." {
			defaultLevel = &level
			continue
		}

		manager.explicit[module] = true
		l := manager.loggers[module]
		if l == nil {
			l = newLogger(module)
			manager.loggers[module] = l
		}
		l.SetLevel(level)
	}

	if defaultLevel != nil {
		manager.defLevel = *defaultLevel
		for module, l := range manager.loggers {
			if !manager.explicit[module] {
				l.SetLevel(*defaultLevel)
			}
		}
	}

	return nil
}
