// Package logging configures the process-wide zap logger. The drive client
// is a CLI, so the default sink is stderr in console format; json output is
// available for scripted use.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	level  zap.AtomicLevel
)

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console (default), json
	Output string // stderr, stdout, or a file path
}

// Init builds the global logger. An unparseable level falls back to info.
func Init(cfg Config) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	level = zap.NewAtomicLevelAt(lvl)

	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level

	out := cfg.Output
	if out == "" {
		out = "stderr"
	}
	zcfg.OutputPaths = []string{out}

	logger, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	global = logger
	return nil
}

// Sync flushes buffered entries. Called once before the process exits.
func Sync() error {
	if global != nil {
		return global.Sync()
	}
	return nil
}

// SetLevel changes the log level at runtime. Unknown levels are ignored.
func SetLevel(s string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return
	}
	level.SetLevel(lvl)
}

// L returns the global logger, initializing a default one if Init was never
// called (library-style use, tests).
func L() *zap.Logger {
	if global == nil {
		Init(Config{})
	}
	return global
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }
