package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger = zerolog.New(defaultWriter()).With().Timestamp().Logger()

var console io.Writer = defaultWriter()

func defaultWriter() io.Writer {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
}

// Init sets the global level. Unknown levels fall back to info.
func Init(logLevel string) {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	Logger = zerolog.New(console).Level(level).With().Timestamp().Logger()

	if level <= zerolog.DebugLevel {
		Logger = Logger.With().Caller().Logger()
		Logger.Debug().Msg("Caller reporting enabled in debug mode")
	}
}

// AddFileLogger additionally writes logs to a rotated file.
func AddFileLogger(path string) {
	fileLogger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxAge:     3,
		MaxBackups: 3,
	}

	console = zerolog.MultiLevelWriter(defaultWriter(), fileLogger)
	Logger = zerolog.New(console).
		Level(Logger.GetLevel()).
		With().
		Timestamp().
		Logger()
}

// SetOutput redirects the logger, mostly useful in tests. The returned
// function restores the previous output.
func SetOutput(w io.Writer) (restore func()) {
	prevConsole, prevLogger := console, Logger

	console = w
	Logger = Logger.Output(w)

	return func() {
		console, Logger = prevConsole, prevLogger
	}
}
