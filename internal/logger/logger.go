// Package logger provides the process-wide logger for townhall.
// Messages go to stderr through zerolog: human-readable console output when
// attached to a terminal (or STAGE=local), JSON lines otherwise. Debug and
// Section output only appear in verbose mode.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Format selects how log lines are rendered.
type Format string

// Supported formats.
const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	format            = FormatAuto
	output  io.Writer = os.Stderr
	base              = build(os.Stderr, FormatAuto, false)
)

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = build(output, format, verbose)
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the destination writer. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build(output, format, verbose)
}

// SetFormat forces console or JSON rendering.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	format = f
	base = build(output, format, verbose)
}

// L returns the underlying structured logger for callers that attach fields.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// Debug logs a message in verbose mode only.
func Debug(msg string, args ...any) {
	L().Debug().Msg(sprintf(msg, args))
}

// Section marks the start of a pipeline stage in verbose mode.
func Section(name string) {
	L().Debug().Str("section", name).Msg("=== " + name + " ===")
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	L().Info().Msg(sprintf(msg, args))
}

// Warn logs a warning.
func Warn(msg string, args ...any) {
	L().Warn().Msg(sprintf(msg, args))
}

// Error logs an error together with a message.
func Error(err error, msg string, args ...any) {
	L().Error().Err(err).Msg(sprintf(msg, args))
}

func sprintf(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

func build(w io.Writer, f Format, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	if f == FormatAuto {
		f = FormatJSON
		if useConsole(w) {
			f = FormatConsole
		}
	}

	if f == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("app", "townhall").Logger()
}

func useConsole(w io.Writer) bool {
	if strings.EqualFold(os.Getenv("STAGE"), "local") {
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
