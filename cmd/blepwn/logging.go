package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// configureLogger creates a logger with the level picked from, in order:
// --log-level, the verbose flag, then fallback (normally the config file's
// log_level). Without any of them the logger stays at panic level, which is
// silent for normal operations.
func configureLogger(cmd *cobra.Command, verboseFlagName, fallback string) (*logrus.Logger, error) {
	logLevel := logrus.PanicLevel

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool(verboseFlagName)

	switch {
	case logLevelStr != "":
		lvl, err := parseLogLevel(logLevelStr)
		if err != nil {
			return nil, err
		}
		logLevel = lvl
	case verbose:
		logLevel = logrus.DebugLevel
	case fallback != "":
		lvl, err := parseLogLevel(fallback)
		if err != nil {
			return nil, fmt.Errorf("config log_level: %w", err)
		}
		logLevel = lvl
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}

func parseLogLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "panic", "off":
		return logrus.PanicLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}
