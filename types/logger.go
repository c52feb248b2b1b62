package types

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/journald"
)

const journaldSocket = "/run/systemd/journal/socket"

func isJournaldAvailable() bool {
	conn, err := net.Dial("unixgram", journaldSocket)
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}

// VerbosityLevel maps the number of -v flags to a log level.
// No flag only shows warnings and errors, one enables debug and two or more enable trace.
func VerbosityLevel(count int) zerolog.Level {
	switch {
	case count <= 0:
		return zerolog.WarnLevel
	case count == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// NewLogger creates a new logger with the given name and level.
// Console output goes to stderr so stdout only carries the final report.
// The log level can be overridden by setting the environment variable $NAME_DEBUG to any value.
// If journald is reachable, entries are also sent there so privileged runs leave a trace.
func NewLogger(name string, level zerolog.Level, quiet bool) Logger {
	var loggers []io.Writer

	if isJournaldAvailable() {
		loggers = append(loggers, journald.NewJournalDWriter())
	}

	if !quiet {
		loggers = append(loggers, zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
			w.TimeFormat = time.RFC3339
		}))
	}

	if os.Getenv(fmt.Sprintf("%s_DEBUG", strings.ToUpper(name))) != "" && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	multi := zerolog.MultiLevelWriter(loggers...)

	return Logger{
		Logger: zerolog.New(multi).With().Timestamp().Str("app", name).Logger().Level(level),
	}
}

func NewBufferLogger(b *bytes.Buffer) Logger {
	return Logger{
		Logger: zerolog.New(b).With().Timestamp().Logger().Level(zerolog.TraceLevel),
	}
}

func NewNullLogger() Logger {
	return Logger{
		Logger: zerolog.New(io.Discard).With().Timestamp().Logger(),
	}
}

// Logger wraps zerolog so components share one configured instance.
type Logger struct {
	zerolog.Logger
}

func (m *Logger) SetLevel(level zerolog.Level) {
	// Level returns a child logger so we need to overwrite ours
	m.Logger = m.Logger.Level(level)
}

func (m Logger) GetLevel() zerolog.Level {
	return m.Logger.GetLevel()
}

// IsDebug reports whether debug or more verbose output is enabled
func (m Logger) IsDebug() bool {
	return m.Logger.GetLevel() <= zerolog.DebugLevel
}
