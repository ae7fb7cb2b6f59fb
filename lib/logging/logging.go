// Package logging provides named, leveled loggers for the application.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	once  sync.Once
	root  *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// GetLogger returns a named logger. All loggers share one sink and one
// dynamic level, so SetLevel applies process-wide.
func GetLogger(name string) *zap.SugaredLogger {
	once.Do(initRoot)
	return root.Named(name).Sugar()
}

func initRoot() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	root = zap.New(core)
}

// --------------------------------------------------------------------------
// Level Handling
// --------------------------------------------------------------------------

// SetLevel sets the process-wide log level from a string.
func SetLevel(s string) error {
	lvl, err := parseLogLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// parseLogLevel converts a string level to a zapcore.Level
func parseLogLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warning", "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", s)
	}
}
