// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging configures the process-wide slog logger the control
// loop and its supporting components (the sandbox watcher, the CLI
// entrypoint) log through. The control loop's own record of what
// happened to a task is the append-only audit.Sink; this package is
// for the human/operator-facing tail -f view and never replaces it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const supervisorPackagePrefix = "github.com/kadirpekel/supervisor"

// ParseLevel converts a string log level (as set by --log-level) to a
// slog.Level. An unrecognized value is treated as "warn" rather than
// rejected, since a misspelled flag value shouldn't stop the loop from
// starting.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler hides logs emitted by third-party dependencies
// (go-redis, gobreaker, tree-sitter's cgo layer, fsnotify) unless the
// level is DEBUG. At info/warn/error, an operator tailing the log
// wants to see control-loop events, not a dependency's own chatter.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

// isOwnPackage reports whether pc's call site belongs to this module,
// by function name or by source path (component loggers created via
// Component() still resolve to their caller's PC, not this package's).
func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	fullName := fn.Name()
	file, _ := fn.FileLine(pc)
	return strings.Contains(fullName, supervisorPackagePrefix) || strings.Contains(file, "supervisor/")
}

// levelColor returns the ANSI color code for level, for terminal output.
func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m" // red
	case level >= slog.LevelWarn:
		return "\033[33m" // yellow
	case level >= slog.LevelInfo:
		return "\033[36m" // cyan
	default:
		return "\033[90m" // gray
	}
}

func isTerminal(file *os.File) bool {
	if fileInfo, err := file.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func normalizedLevel(l slog.Level) string {
	s := l.String()
	if s == "WARNING" {
		return "WARN"
	}
	return s
}

// lineHandler renders one line per record: "LEVEL message key=value ...",
// colorized when writing to a terminal. This is the loop's own output
// format - short lines an operator can scan while a task cycles
// through LOADING/DISPATCHING/VALIDATING - not slog's default
// key=value-everywhere text format.
type lineHandler struct {
	writer   io.Writer
	useColor bool
	attrs    []slog.Attr
}

func (h *lineHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }

func (h *lineHandler) Handle(ctx context.Context, record slog.Record) error {
	var buf strings.Builder
	if h.useColor {
		buf.WriteString(levelColor(record.Level))
	}
	buf.WriteString(strings.ToUpper(normalizedLevel(record.Level)))
	if h.useColor {
		buf.WriteString("\033[0m")
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	for _, a := range h.attrs {
		buf.WriteString(" " + a.Key + "=" + a.Value.String())
	}
	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attrs bound through Logger.With (such as Component's "component"
	// tag) are rendered ahead of each record's own attrs.
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler { return h }

// Init builds the process-wide slog logger: one line per record,
// colorized when output is a terminal, with third-party noise
// filtered below DEBUG. It also calls slog.SetDefault so any
// dependency that logs through the standard library's default logger
// is captured by the same filtering policy.
func Init(level slog.Level, output *os.File) {
	base := &lineHandler{writer: output, useColor: isTerminal(output)}
	defaultLogger = slog.New(&filteringHandler{handler: base, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the process-wide logger, initializing it at info
// level if Init hasn't run yet (e.g. in tests that exercise a
// component directly).
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr)
	}
	return defaultLogger
}

// Component returns a logger tagged with a "component" attribute, for
// call sites that want a consistent label in their output (e.g.
// "component=watcher", "component=controlloop") without repeating it
// on every call.
func Component(name string) *slog.Logger {
	return GetLogger().With("component", name)
}
