package utils

import (
	"log"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	loggerMu sync.Mutex
)

// InitializeLogger sets up the global logger. Production uses JSON output,
// everything else a coloured development console.
func InitializeLogger(environment, level string) *zap.Logger {
	var cfg zap.Config

	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			log.Printf("Unknown log level %q, using info", level)
		}
	}
	cfg.Level = lvl

	built, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	loggerMu.Lock()
	logger = built
	loggerMu.Unlock()
	return built
}

// GetLogger retrieves the global logger, creating a development logger on
// first use if InitializeLogger was never called.
func GetLogger() *zap.Logger {
	loggerMu.Lock()
	current := logger
	loggerMu.Unlock()
	if current == nil {
		return InitializeLogger("development", "debug")
	}
	return current
}

// LoggerOrNop returns l, or a no-op logger when l is nil.
func LoggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
