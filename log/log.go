// Package log provides the per-package structured logger used across
// this module. The call convention (message string followed by
// alternating key/value pairs) mirrors the teacher's own module
// loggers in datasync/chaindatafetcher.
package log

import (
	"os"

	"go.uber.org/zap"
)

var base = mustBuild()

func mustBuild() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		// Logging cannot be bootstrapped; fail loudly rather than run silent.
		panic(err)
	}
	return l
}

// Logger is a module-scoped logger, one per package, matching the
// teacher's "var logger = log.NewModuleLogger(...)" idiom.
type Logger struct {
	name string
	z    *zap.SugaredLogger
}

// NewModuleLogger returns a logger tagged with the given module name.
func NewModuleLogger(module string) *Logger {
	return &Logger{name: module, z: base.Sugar().With("module", module)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }

// Crit logs at error level and terminates the process, matching the
// teacher's logger.Crit semantics (used for configuration-time faults
// that must abort before Start, per spec §7 class 5).
func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.z.Errorw(msg, kv...)
	os.Exit(1)
}

// Sync flushes buffered log entries; callers defer it from main.
func Sync() {
	_ = base.Sync()
}
