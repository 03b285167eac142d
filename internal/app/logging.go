package app

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/dshills/deuce/internal/config"
)

// Verbosity returns the commonlog verbosity for a configured level.
// Unknown levels log at info.
func Verbosity(level string) int {
	switch level {
	case config.LevelDebug:
		return 2
	case config.LevelWarn:
		return -1
	case config.LevelError:
		return -2
	default:
		return 1
	}
}

// ConfigureLogging sets up the commonlog backend from cfg. Logs go to
// stderr unless cfg names a file.
func ConfigureLogging(cfg config.LoggingConfig) {
	var path *string
	if cfg.File != "" {
		file := cfg.File
		path = &file
	}
	commonlog.Configure(Verbosity(cfg.Level), path)
}
