//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a module-scoped wrapper around zap.Logger.  Every record carries
// the principal the harness was acting as and the harness step that produced
// it, so that a failing scenario can be traced through the output.
type Logger struct {
	module string
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	level  zapcore.Level
	writer io.Writer
}

const (
	principalKey = "principal"
	stepKey      = "step"
	moduleKey    = "module"

	sysPrincipal = "sys"
	sysStep      = "unk"
)

// newLogger creates an untracked logger.  Applications use GetLogger().
func newLogger(module string) *Logger {
	l := &Logger{
		module: module,
		level:  zapcore.InfoLevel,
	}
	l.rebuild()
	return l
}

// rebuild recreates the zap core from the current level and writer.  Log
// records go to stderr by default so they never interleave with scenario
// results printed on stdout.
func (l *Logger) rebuild() {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch os.Getenv("LOG_FORMATTER") {
	case "text":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(l.Out()), l.level)

	options := []zap.Option{
		zap.AddCallerSkip(1),
	}
	if os.Getenv("LOG_REPORT_CALLER") != "" {
		options = append(options, zap.AddCaller())
	}

	l.logger = zap.New(core, options...)
	l.sugar = l.logger.Sugar()
}

// IsDebugEnabled returns true if the current logging level is debug or
// lower.  Use it to guard debug output that is expensive to compute, such as
// dumping every decoded audit event.
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= zapcore.DebugLevel
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level = level
	l.rebuild()
}

// IsLevelEnabled checks if a level is enabled
func (l *Logger) IsLevelEnabled(level zapcore.Level) bool {
	return l.level <= level
}

// Out returns the output writer
func (l *Logger) Out() io.Writer {
	if l.writer != nil {
		return l.writer
	}
	return os.Stderr
}

// SetOut redirects the logger, mostly for tests.
func (l *Logger) SetOut(w io.Writer) {
	l.writer = w
	l.rebuild()
}

func (l *Logger) with(principal, step string) *zap.SugaredLogger {
	return l.sugar.With(
		zap.String(principalKey, principal),
		zap.String(stepKey, step),
		zap.String(moduleKey, l.module),
	)
}

// Debug logs a debug message
func (l *Logger) Debug(principal, step string, args ...interface{}) {
	l.with(principal, step).Debug(args...)
}

// Debugf logs a debug message
func (l *Logger) Debugf(principal, step string, format string, args ...interface{}) {
	l.with(principal, step).Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(principal, step string, args ...interface{}) {
	l.with(principal, step).Info(args...)
}

// Infof logs an info message
func (l *Logger) Infof(principal, step string, format string, args ...interface{}) {
	l.with(principal, step).Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(principal, step string, args ...interface{}) {
	l.with(principal, step).Warn(args...)
}

// Warnf logs a warning message
func (l *Logger) Warnf(principal, step string, format string, args ...interface{}) {
	l.with(principal, step).Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(principal, step string, args ...interface{}) {
	l.with(principal, step).Error(args...)
}

// Errorf logs an error message
func (l *Logger) Errorf(principal, step string, format string, args ...interface{}) {
	l.with(principal, step).Errorf(format, args...)
}

// Panic logs a message and panics
func (l *Logger) Panic(principal, step string, args ...interface{}) {
	l.with(principal, step).Panic(args...)
}

// Below are functions using the harness itself as principal

// SysDebug logs a debug message on behalf of the harness
func (l *Logger) SysDebug(args ...interface{}) {
	l.Debug(sysPrincipal, sysStep, args...)
}

// SysDebugf logs a debug message on behalf of the harness
func (l *Logger) SysDebugf(format string, args ...interface{}) {
	l.Debugf(sysPrincipal, sysStep, format, args...)
}

// SysInfo logs an info message on behalf of the harness
func (l *Logger) SysInfo(args ...interface{}) {
	l.Info(sysPrincipal, sysStep, args...)
}

// SysInfof logs an info message on behalf of the harness
func (l *Logger) SysInfof(format string, args ...interface{}) {
	l.Infof(sysPrincipal, sysStep, format, args...)
}

// SysWarn logs a warning message on behalf of the harness
func (l *Logger) SysWarn(args ...interface{}) {
	l.Warn(sysPrincipal, sysStep, args...)
}

// SysWarnf logs a warning message on behalf of the harness
func (l *Logger) SysWarnf(format string, args ...interface{}) {
	l.Warnf(sysPrincipal, sysStep, format, args...)
}

// SysError logs an error message on behalf of the harness
func (l *Logger) SysError(args ...interface{}) {
	l.Error(sysPrincipal, sysStep, args...)
}

// SysErrorf logs an error message on behalf of the harness
func (l *Logger) SysErrorf(format string, args ...interface{}) {
	l.Errorf(sysPrincipal, sysStep, format, args...)
}
