package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process wide logger. It discards everything until Init runs so
// packages and tests can log without setup.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

// Init builds the logger. level is one of debug, info, warn, error.
func Init(level string, development bool) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}
