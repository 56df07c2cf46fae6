// Package slog provides the structured, per-component logging used across
// syncspirit's actors. It wraps go.uber.org/zap the way
// spacemeshos-go-spacemesh/log does: a named logger per component, passed
// down through constructors instead of reached for as a global.
package slog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	root  *zap.Logger
)

func init() {
	root = buildRoot()
}

func buildRoot() *zap.Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core)
}

// SetLevel adjusts the minimum level for every logger created by this
// package, including ones already handed out (they share the AtomicLevel).
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Log is the logger handle actors hold onto.
type Log struct {
	z *zap.Logger
}

// New returns a logger named after the owning component, e.g. "persistence",
// "scanner", "peer.KHQNO2S".
func New(name string) Log {
	mu.RLock()
	r := root
	mu.RUnlock()
	return Log{z: r.Named(name)}
}

// Nop returns a logger that discards everything, for use in tests that don't
// care about log output.
func Nop() Log {
	return Log{z: zap.NewNop()}
}

// With returns a derived logger carrying the given structured fields on
// every subsequent call.
func (l Log) With(fields ...zap.Field) Log {
	return Log{z: l.z.With(fields...)}
}

func (l Log) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l Log) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l Log) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l Log) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sugar exposes the printf-style API for call sites that format ad hoc
// messages rather than carrying structured fields.
func (l Log) Sugar() *zap.SugaredLogger { return l.z.Sugar() }

// Field re-exports are a convenience so callers only need to import slog.
var (
	String = zap.String
	Int    = zap.Int
	Int64  = zap.Int64
	Uint64 = zap.Uint64
	Err    = zap.Error
	Bool   = zap.Bool
)
