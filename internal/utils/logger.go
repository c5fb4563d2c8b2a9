package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LoggerInitializationFailedMessageFormat wraps logger construction failures.
	LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"
	// ApplicationExecutionFailedMessage prefixes fatal command errors.
	ApplicationExecutionFailedMessage = "application execution failed"

	consoleEncodingName = "console"
	messageFieldKey     = "message"
)

// NewApplicationLogger constructs a zap logger configured for human-readable
// console output at the requested level. An empty level name selects info.
func NewApplicationLogger(levelName string) (*zap.Logger, error) {
	logLevel := zapcore.InfoLevel
	if levelName != "" {
		parsedLevel, parseError := zapcore.ParseLevel(levelName)
		if parseError != nil {
			return nil, fmt.Errorf("unrecognized log level %q: %w", levelName, parseError)
		}
		logLevel = parsedLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(logLevel)
	config.Encoding = consoleEncodingName
	config.DisableCaller = true
	config.DisableStacktrace = true
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.TimeKey = ""
	config.EncoderConfig.LevelKey = ""
	config.EncoderConfig.NameKey = ""
	config.EncoderConfig.CallerKey = ""
	config.EncoderConfig.MessageKey = messageFieldKey
	config.EncoderConfig.StacktraceKey = ""
	return config.Build()
}
