package app

import (
	"strings"

	"github.com/rentwise/rentwise/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level and
// encoding, defaulting to info level JSON output.
func ConfigureLogging(level, format string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "console" {
		format = "json"
	}
	return logger.InitWithFormat(level, format)
}
