// Package log defines the logging interface used across jarhunter. The
// default logger writes colored, leveled lines to stderr and can be replaced
// with SetLogger.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Logger is the leveled logging interface.
type Logger interface {
	Errorf(format string, args ...any)
	Error(args ...any)
	Warnf(format string, args ...any)
	Warn(args ...any)
	Infof(format string, args ...any)
	Info(args ...any)
	Debugf(format string, args ...any)
	Debug(args ...any)
}

// Level orders log verbosity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var logger Logger = NewConsoleLogger(os.Stderr, LevelInfo)

// SetLogger replaces the package logger.
func SetLogger(l Logger) { logger = l }

// Current returns the package logger.
func Current() Logger { return logger }

func Errorf(format string, args ...any) { logger.Errorf(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }
func Infof(format string, args ...any)  { logger.Infof(format, args...) }
func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Error(args ...any)                 { logger.Error(args...) }
func Warn(args ...any)                  { logger.Warn(args...) }
func Info(args ...any)                  { logger.Info(args...) }
func Debug(args ...any)                 { logger.Debug(args...) }

// Tracef logs at trace level when the package logger supports it.
func Tracef(format string, args ...any) {
	if t, ok := logger.(interface {
		Tracef(string, ...any)
	}); ok {
		t.Tracef(format, args...)
	}
}

// ConsoleLogger writes to w, dropping messages above its level.
type ConsoleLogger struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

func NewConsoleLogger(w io.Writer, level Level) *ConsoleLogger {
	return &ConsoleLogger{w: w, level: level}
}

// SetLevel changes the verbosity.
func (l *ConsoleLogger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *ConsoleLogger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

var (
	errorPrefix = color.New(color.FgRed, color.Bold).Sprint("[!]")
	warnPrefix  = color.New(color.FgYellow).Sprint("[-]")
	infoPrefix  = color.New(color.FgCyan).Sprint("[+]")
	debugPrefix = color.New(color.FgHiBlack).Sprint("[D]")
	tracePrefix = color.New(color.FgHiBlack).Sprint("[T]")
)

func (l *ConsoleLogger) write(level Level, prefix, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}
	fmt.Fprintf(l.w, "%s %s\n", prefix, msg)
}

func (l *ConsoleLogger) Errorf(format string, args ...any) {
	l.write(LevelError, errorPrefix, fmt.Sprintf(format, args...))
}

func (l *ConsoleLogger) Error(args ...any) {
	l.write(LevelError, errorPrefix, fmt.Sprint(args...))
}

func (l *ConsoleLogger) Warnf(format string, args ...any) {
	l.write(LevelWarn, warnPrefix, fmt.Sprintf(format, args...))
}

func (l *ConsoleLogger) Warn(args ...any) {
	l.write(LevelWarn, warnPrefix, fmt.Sprint(args...))
}

func (l *ConsoleLogger) Infof(format string, args ...any) {
	l.write(LevelInfo, infoPrefix, fmt.Sprintf(format, args...))
}

func (l *ConsoleLogger) Info(args ...any) {
	l.write(LevelInfo, infoPrefix, fmt.Sprint(args...))
}

func (l *ConsoleLogger) Debugf(format string, args ...any) {
	l.write(LevelDebug, debugPrefix, fmt.Sprintf(format, args...))
}

func (l *ConsoleLogger) Debug(args ...any) {
	l.write(LevelDebug, debugPrefix, fmt.Sprint(args...))
}

func (l *ConsoleLogger) Tracef(format string, args ...any) {
	l.write(LevelTrace, tracePrefix, fmt.Sprintf(format, args...))
}

// LevelFor maps the CLI verbosity switches to a level. silent wins.
func LevelFor(debug, trace, silent bool) Level {
	switch {
	case silent:
		return LevelError
	case trace:
		return LevelTrace
	case debug:
		return LevelDebug
	}
	return LevelInfo
}
