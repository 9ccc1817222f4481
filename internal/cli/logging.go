package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// SetupLogger builds the process logger from cfg, writing to w, and
// installs it as the global zerolog logger.
func SetupLogger(cfg LogConfig, w io.Writer) (zerolog.Logger, error) {
	var level zerolog.Level
	switch cfg.Level {
	case zerolog.LevelDebugValue:
		level = zerolog.DebugLevel
	case zerolog.LevelInfoValue:
		level = zerolog.InfoLevel
	case zerolog.LevelWarnValue, "":
		level = zerolog.WarnLevel
	case zerolog.LevelErrorValue:
		level = zerolog.ErrorLevel
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log level %s", cfg.Level)
	}

	var formatWriter io.Writer
	switch cfg.Format {
	case LogFormatJSON:
		formatWriter = w
	case LogFormatText, "":
		formatWriter = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %s", cfg.Format)
	}

	ctx := zerolog.New(formatWriter).Level(level).With().Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Int("pid", os.Getpid())
	}
	log.Logger = ctx.Logger()
	return log.Logger, nil
}
