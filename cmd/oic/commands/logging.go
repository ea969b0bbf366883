package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var cliLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// SetupLogging configures the process logger from the global flags. Colour is
// dropped when the writer is not a terminal.
func SetupLogging(w io.Writer) error {
	noColor := viper.GetBool("no-color") || !isTerminal(w)
	color.NoColor = color.NoColor || viper.GetBool("no-color")

	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	logger, err := NewLogger(w, viper.GetString("log-format"), level, noColor)
	if err != nil {
		return err
	}

	cliLogger = logger

	return nil
}

// NewLogger returns a tint logger for text output or a JSON logger.
func NewLogger(w io.Writer, format string, level slog.Level, noColor bool) (*slog.Logger, error) {
	switch format {
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	case LogFormatText, "":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    noColor,
		})), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLogFormat, format)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// slogAdapter exposes a slog.Logger as the map-field oic.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func newSlogAdapter(logger *slog.Logger) *slogAdapter {
	return &slogAdapter{logger: logger}
}

func (a *slogAdapter) log(level slog.Level, msg string, fields map[string]interface{}) {
	if !a.logger.Enabled(context.Background(), level) {
		return
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}

	a.logger.Log(context.Background(), level, msg, args...)
}

func (a *slogAdapter) Debug(msg string, fields map[string]interface{}) {
	a.log(slog.LevelDebug, msg, fields)
}

func (a *slogAdapter) Info(msg string, fields map[string]interface{}) {
	a.log(slog.LevelInfo, msg, fields)
}

func (a *slogAdapter) Warn(msg string, fields map[string]interface{}) {
	a.log(slog.LevelWarn, msg, fields)
}

func (a *slogAdapter) Error(msg string, fields map[string]interface{}) {
	a.log(slog.LevelError, msg, fields)
}
