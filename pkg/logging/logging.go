// Package logging builds the process logger and routes the go-ethereum
// log package, which the library packages log through, into it.
package logging

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a JSON logger writing to stderr at level.
func NewLogger(level string) (*zap.Logger, error) {
	return newLogger(level, zapcore.Lock(os.Stderr))
}

func newLogger(level string, w zapcore.WriteSyncer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, lvl)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Install makes l the default go-ethereum logger.
func Install(l *zap.Logger) {
	log.SetDefault(log.NewLogger(zapslog.NewHandler(l.Core())))
}
