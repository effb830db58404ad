package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Init builds the process-wide sugared logger and redirects the standard
// library logger into it. level is one of debug, info, warn, error; format is
// "json" or "console". Only the first call has any effect.
func Init(level, format string) *zap.SugaredLogger {
	once.Do(func() {
		encoding := "console"
		if strings.EqualFold(strings.TrimSpace(format), "json") {
			encoding = "json"
		}
		cfg := zap.Config{
			Encoding:         encoding,
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"
		if encoding == "console" {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

		logger, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
		if err != nil {
			logger = zap.NewNop()
		}
		_ = zap.RedirectStdLog(logger)
		sugar = logger.Sugar()
	})
	return sugar
}

// Sugar returns the logger built by Init, or a no-op logger before Init.
func Sugar() *zap.SugaredLogger {
	if sugar == nil {
		return zap.NewNop().Sugar()
	}
	return sugar
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// ParseLevel maps a LOG_LEVEL style string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// UtteranceFields returns the canonical fields attached to every log line
// about a captured utterance.
func UtteranceFields(id string, samples, sampleRate int) []interface{} {
	durMs := 0
	if sampleRate > 0 {
		durMs = samples * 1000 / sampleRate
	}
	return []interface{}{"utterance_id", id, "samples", samples, "duration_ms", durMs}
}
