// Package logging provides the structured logger used across pantry.
//
// Loggers are injected and usually Named per component, e.g.
// lggr.Named("api"). Tests should use a [Test] logger; [New] is reserved for
// the running server and CLI.
package logging

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the logging interface passed to pantry components. It is
// implemented by a wrapped zap.SugaredLogger.
type Logger interface {
	// Name returns the fully qualified name of the logger.
	Name() string
	// Named returns a child logger with name appended to this one's.
	Named(name string) Logger
	// With returns a child logger that adds the key/value pairs to every entry.
	With(keysAndValues ...any) Logger

	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	Debugf(format string, values ...any)
	Infof(format string, values ...any)
	Warnf(format string, values ...any)
	Errorf(format string, values ...any)

	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// Sync flushes any buffered log entries.
	Sync() error
}

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects the level and encoding of a Logger.
type Config struct {
	Level  string
	Format string
}

// New returns a Logger for Config. An empty level means info and an empty
// format means console.
func New(c Config) (Logger, error) {
	lvl := zapcore.InfoLevel
	if c.Level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", c.Level, err)
		}
	}
	switch c.Format {
	case "", FormatConsole:
		return NewWith(func(cfg *zap.Config) {
			*cfg = zap.NewDevelopmentConfig()
			cfg.Development = false
			cfg.Level.SetLevel(lvl)
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		})
	case FormatJSON:
		return NewWith(func(cfg *zap.Config) {
			cfg.Level.SetLevel(lvl)
		})
	}
	return nil, fmt.Errorf("log format %q: must be %s or %s", c.Format, FormatConsole, FormatJSON)
}

// NewWith returns a Logger from a modified production [zap.Config].
func NewWith(cfgFn func(*zap.Config)) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfgFn(&cfg)
	core, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &logger{core.Sugar()}, nil
}

// Test returns a Logger that writes through tb.
func Test(tb testing.TB) Logger {
	tb.Helper()
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	lggr := zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(cfg),
			zaptest.NewTestingWriter(tb),
			zapcore.DebugLevel,
		),
	)
	return &logger{lggr.Sugar()}
}

// TestObserved returns a test Logger for tb and the entries logged at or
// above lvl.
func TestObserved(tb testing.TB, lvl zapcore.Level) (Logger, *observer.ObservedLogs) {
	tb.Helper()
	oCore, logs := observer.New(lvl)
	observe := zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, oCore)
	})
	return &logger{zaptest.NewLogger(tb, zaptest.WrapOptions(observe)).Sugar()}, logs
}

// Nop returns a no-op Logger.
func Nop() Logger {
	return &logger{zap.New(zapcore.NewNopCore()).Sugar()}
}

type logger struct {
	*zap.SugaredLogger
}

func (l *logger) Name() string {
	return l.Desugar().Name()
}

func (l *logger) Named(name string) Logger {
	return &logger{l.SugaredLogger.Named(name)}
}

func (l *logger) With(keysAndValues ...any) Logger {
	return &logger{l.SugaredLogger.With(keysAndValues...)}
}

type contextKey string

const loggerKey contextKey = "logger"

// ContextWithLogger returns a copy of ctx carrying lggr.
func ContextWithLogger(ctx context.Context, lggr Logger) context.Context {
	return context.WithValue(ctx, loggerKey, lggr)
}

// FromContext returns the Logger stored in ctx, or a no-op Logger.
func FromContext(ctx context.Context) Logger {
	if lggr, ok := ctx.Value(loggerKey).(Logger); ok {
		return lggr
	}
	return Nop()
}
