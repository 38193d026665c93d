package kitelog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is configured with datetime and caller information, and splits
// output to stdout and stderr based on level.
var Logger = New(os.Stdout, os.Stderr)

// New creates a JSON logger writing entries below error level to out and
// the rest to errOut.
func New(out, errOut io.Writer) *zap.Logger {
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel
	})

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewJSONEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(errOut)), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), isInfoLevel),
	)
	return zap.New(core, zap.AddCaller())
}

// ForCommand returns Logger tagged with the name of the running binary.
func ForCommand(name string) *zap.Logger {
	host, _ := os.Hostname()
	return Logger.With(zap.String("cmd", name), zap.String("hostname", host))
}

// OrNop returns l, or a no-op logger if l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
