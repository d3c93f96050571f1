// Package logging owns the process-wide zap logger used by the engine,
// the gateway and the CLI.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables read when the logger is first built
const (
	envLevel  = "FUNNEL_LOG_LEVEL"
	envFormat = "FUNNEL_LOG_FORMAT"
	envSource = "FUNNEL_LOG_SOURCE"
)

var (
	initOnce sync.Once
	logger   *zap.Logger
	level    = zap.NewAtomicLevel()
	exitFunc = os.Exit
)

// settings is the logger shape derived from the environment
type settings struct {
	level  zapcore.Level
	json   bool
	source bool
}

func settingsFromEnv(getenv func(string) string) settings {
	format := strings.ToLower(getenv(envFormat))
	return settings{
		level:  parseLevel(getenv(envLevel)),
		json:   format == "json" || format == "structured",
		source: strings.EqualFold(getenv(envSource), "true"),
	}
}

// L returns the shared logger, building it from the environment on first use.
func L() *zap.Logger {
	initOnce.Do(func() {
		logger = newLogger(settingsFromEnv(os.Getenv))
	})
	return logger
}

// Named returns a child of the shared logger tagged with a component name
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// SetLevel changes the minimum level of the shared logger and every child
// already handed out.
func SetLevel(value string) {
	level.SetLevel(parseLevel(value))
}

// Sync flushes any buffered log entries
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

func newLogger(s settings) *zap.Logger {
	built, err := buildConfig(s).Build()
	if err != nil {
		built, _ = zap.NewDevelopment()
	}
	return built
}

func buildConfig(s settings) zap.Config {
	config := zap.NewProductionConfig()

	level.SetLevel(s.level)
	config.Level = level

	if s.json {
		config.Encoding = "json"
	} else {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Development = s.source

	// stdout carries command output
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config
}

func parseLevel(value string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Fatal logs at error level and exits with status 1.
func Fatal(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
	exitFunc(1)
}
