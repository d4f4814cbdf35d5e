// Package logging configures the global slog logger used throughout mp4merge.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dusted-go/logging/prettylog"
)

// Supported log formats.
const (
	LogText    string = "text"
	LogJSON    string = "json"
	LogPretty  string = "pretty"
	LogDiscard string = "discard"
)

// LogFormats lists the formats accepted by InitSlog.
var LogFormats = []string{LogText, LogJSON, LogPretty, LogDiscard}

// LogLevels lists the levels accepted by InitSlog.
var LogLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

var logLevel *slog.LevelVar

// InitSlog installs the global slog logger for the given level and format. It is only ever
// called by a command's main function; the merge package itself never touches slog.SetDefault,
// so it stays safe to embed in a host with its own logging setup.
func InitSlog(level, format string) error {
	logLevel = new(slog.LevelVar)

	var logger *slog.Logger
	switch format {
	case LogText:
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	case LogJSON:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	case LogPretty:
		f := func(groups []string, a slog.Attr) slog.Attr { return a }
		handler := prettylog.NewHandler(&slog.HandlerOptions{
			Level:       logLevel,
			AddSource:   false,
			ReplaceAttr: f,
		})
		logger = slog.New(handler)
	case LogDiscard:
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: logLevel}))
	default:
		return fmt.Errorf("logformat %q not known", format)
	}
	slog.SetDefault(logger)
	return SetLogLevel(level)
}

// SetLogLevel changes the level of the logger installed by InitSlog.
func SetLogLevel(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return err
	}
	logLevel.Set(l)
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("loglevel %q not known", level)
	}
}
