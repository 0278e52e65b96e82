// Package display is the daemon's log sink: a leveled, timestamped
// writer implementing scheduler.Logger, adjustable at runtime via
// SIGUSR1/SIGUSR2 or repeated -v/-q flags, using
// the same cyan/box styling the CLI used for its own output.
package display

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// Level uses a spaced numeric scale so that the -v/-q flags and the
// SIGUSR1/SIGUSR2 handlers can shift it in steps of 10 with room left
// between the named levels.
type Level int32

const (
	LevelDebug Level = 10
	LevelInfo  Level = 20
	LevelWarn  Level = 30
	LevelError Level = 40
)

// Logger is a minimal structured-ish log sink satisfying
// scheduler.Logger, plus a boxed Banner for daemon startup.
type Logger struct {
	out     io.Writer
	theme   *Theme
	level   int32 // atomic, holds a Level
	noColor bool
}

// New creates a Logger writing to out at the given starting level.
func New(out io.Writer, level Level, noColor bool) *Logger {
	l := &Logger{out: out, noColor: noColor}
	if noColor {
		l.theme = NoColorTheme()
	} else {
		l.theme = DefaultTheme()
	}
	atomic.StoreInt32(&l.level, int32(level))
	return l
}

// NewStderr creates a Logger writing to os.Stderr, the usual daemon
// destination (stdout is reserved for `umbrad report`'s CSV output).
func NewStderr(level Level, noColor bool) *Logger {
	return New(os.Stderr, level, noColor)
}

// SetLevel sets the log level directly.
func (l *Logger) SetLevel(lvl Level) { atomic.StoreInt32(&l.level, int32(lvl)) }

// Level returns the current log level.
func (l *Logger) Level() Level { return Level(atomic.LoadInt32(&l.level)) }

// Adjust shifts the level by step*10, clamped to [0, 100]; the daemon
// wires SIGUSR1/SIGUSR2 to steps of -1/+1.
func (l *Logger) Adjust(step int) {
	for {
		old := atomic.LoadInt32(&l.level)
		next := old + int32(step*10)
		if next < 0 {
			next = 0
		}
		if next > 100 {
			next = 100
		}
		if atomic.CompareAndSwapInt32(&l.level, old, next) {
			return
		}
	}
}

func (l *Logger) log(lvl Level, symbol string, color func(a ...interface{}) string, format string, args ...any) {
	if lvl < l.Level() {
		return
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "%s %s %s\n", l.theme.Dim(ts), color(symbol), msg)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, SymbolDebug, l.theme.Dim, format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, SymbolSuccess, l.theme.Success, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, SymbolWarning, l.theme.Warning, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, SymbolError, l.theme.Error, format, args...)
}

// Banner prints a boxed startup message (daemon name, version,
// resolved paths) to l.out regardless of the current log level.
func (l *Logger) Banner(title string, lines ...string) {
	width := terminalWidth()
	titleLine := BoxTopLeft + BoxHorizontal + " " + title + " " + repeat(BoxHorizontal, width-len(title)-4) + BoxTopRight
	fmt.Fprintln(l.out, l.theme.Border(titleLine))
	for _, line := range lines {
		fmt.Fprintf(l.out, "%s %s\n", l.theme.Border(BoxVertical), l.theme.Text(line))
	}
	fmt.Fprintln(l.out, l.theme.Border(BoxBottomLeft+repeat(BoxHorizontal, width)+BoxBottomRight))
}

// terminalWidth returns the width of the controlling terminal, falling
// back to 70 when stderr isn't a terminal or the width is unreasonable
// (the daemon's stderr is usually a log file, not a tty).
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || width < 40 {
		return 70
	}
	if width > 120 {
		return 120
	}
	return width
}

func repeat(s string, n int) string {
	if n < 0 {
		n = 0
	}
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

// ParseVerbosity turns a repeated -v/-q flag count into a starting
// Level: each -v subtracts 10 from the default (LevelInfo), each -q
// adds 10, clamped to [0, 100].
func ParseVerbosity(verboseCount, quietCount int) Level {
	lvl := int(LevelInfo) - 10*verboseCount + 10*quietCount
	if lvl < 0 {
		lvl = 0
	}
	if lvl > 100 {
		lvl = 100
	}
	return Level(lvl)
}
