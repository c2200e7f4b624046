// Package logger is the process-wide zap logger. Warnings and errors
// always print; debug and info need --verbose. Lines look like
// "[WARN] message {"key": "value"}" on stderr.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	sugar atomic.Pointer[zap.SugaredLogger]
)

func init() {
	SetOutput(os.Stderr)
}

// SetVerbose lowers the level to debug, or raises it back to warn.
func SetVerbose(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.WarnLevel)
}

// SetOutput redirects log lines to w.
func SetOutput(w io.Writer) {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
		LevelKey:   "level",
		LineEnding: zapcore.DefaultLineEnding,
		EncodeLevel: func(l zapcore.Level, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
	sugar.Store(zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)).Sugar())
}

func l() *zap.SugaredLogger { return sugar.Load() }

func Debug(format string, args ...any) { l().Debug(fmt.Sprintf(format, args...)) }
func Info(format string, args ...any)  { l().Info(fmt.Sprintf(format, args...)) }
func Warn(format string, args ...any)  { l().Warn(fmt.Sprintf(format, args...)) }
func Error(format string, args ...any) { l().Error(fmt.Sprintf(format, args...)) }

// Debugw and the other w variants take alternating keys and values.
func Debugw(msg string, kv ...any) { l().Debugw(msg, kv...) }
func Infow(msg string, kv ...any)  { l().Infow(msg, kv...) }
func Warnw(msg string, kv ...any)  { l().Warnw(msg, kv...) }
func Errorw(msg string, kv ...any) { l().Errorw(msg, kv...) }

// Sync flushes buffered entries.
func Sync() error { return l().Sync() }
