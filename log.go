package pdfquiz

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu       sync.RWMutex
	logger      = zap.NewNop().Sugar()
	verboseMode bool
)

// NewLogger builds a zap logger. mode is "prod"/"production" or anything else for
// development output; verbose lowers the level to debug.
func NewLogger(mode string, verbose bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// SetLogger replaces the package logger
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

// Logger returns the package logger
func Logger() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// SetVerbose sets the global verbose mode
func SetVerbose(verbose bool) {
	logMu.Lock()
	verboseMode = verbose
	logMu.Unlock()
}

// VerboseLog logs at debug level only when verbose mode is enabled
func VerboseLog(format string, v ...interface{}) {
	logMu.RLock()
	on := verboseMode
	logMu.RUnlock()
	if on {
		Logger().Debugf(format, v...)
	}
}
