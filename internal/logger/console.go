// Package logger provides logging for task graph execution.
//
// The logger reports run progress at the task and summary levels.
// Implementations are thread-safe and write to any io.Writer; color is
// enabled automatically for terminal output.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/harrison/overture/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread
// safety. All output is prefixed with [HH:MM:SS] timestamps. It supports
// log level filtering to control message verbosity. Color output is
// automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided
// io.Writer. If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns true for os.Stdout and os.Stderr when they are TTYs.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		// The color library's detection also honors NO_COLOR.
		return !color.NoColor
	}
	return false
}

// normalizeLogLevel converts a log level string to lowercase and validates
// it. Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}
	return "info"
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, colorizeLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}

	cl.writer.Write([]byte(formatted))
}

func colorizeLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// TaskStarted logs the start of a task at DEBUG level.
// Format: "[HH:MM:SS] Starting <name>: <command>"
func (cl *ConsoleLogger) TaskStarted(task models.Task) {
	if cl.writer == nil || !cl.shouldLog("debug") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var message string
	if cl.colorOutput {
		name := color.New(color.Bold).Sprint(task.Name)
		message = fmt.Sprintf("[%s] Starting %s: %s\n", ts, name, task.CommandLine())
	} else {
		message = fmt.Sprintf("[%s] Starting %s: %s\n", ts, task.Name, task.CommandLine())
	}
	cl.writer.Write([]byte(message))
}

// TaskFinished logs a task's terminal state at INFO level, with the exit
// code and duration for anything other than success.
// Format: "[HH:MM:SS] <name>: <state> (<duration>)"
func (cl *ConsoleLogger) TaskFinished(rec *models.RunRecord, state models.NodeState) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	detail := formatDuration(rec.Duration())
	if state != models.StateSucceeded {
		detail = fmt.Sprintf("exit %d, %s", rec.ExitCode, detail)
	}

	var message string
	if cl.colorOutput {
		message = fmt.Sprintf("[%s] %s: %s (%s)\n", ts, rec.TaskName, colorizeState(state), detail)
	} else {
		message = fmt.Sprintf("[%s] %s: %s (%s)\n", ts, rec.TaskName, state, detail)
	}
	cl.writer.Write([]byte(message))
}

// TaskSkipped logs a skipped task and the reason at INFO level.
// Format: "[HH:MM:SS] <name>: skipped (<reason>)"
func (cl *ConsoleLogger) TaskSkipped(name, reason string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var message string
	if cl.colorOutput {
		skipped := color.New(color.FgYellow).Sprint("skipped")
		message = fmt.Sprintf("[%s] %s: %s (%s)\n", ts, name, skipped, reason)
	} else {
		message = fmt.Sprintf("[%s] %s: skipped (%s)\n", ts, name, reason)
	}
	cl.writer.Write([]byte(message))
}

func colorizeState(state models.NodeState) string {
	switch state {
	case models.StateSucceeded:
		return color.New(color.FgGreen).Sprint(state)
	case models.StateFailed:
		return color.New(color.FgRed).Sprint(state)
	case models.StateSkipped, models.StateCancelled:
		return color.New(color.FgYellow).Sprint(state)
	default:
		return string(state)
	}
}

// LogSummary logs the run summary with completion statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(report *models.RunReport) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	counts := report.Counts()
	durationStr := formatDuration(report.Duration())

	var output string
	if cl.colorOutput {
		header := color.New(color.Bold).Sprint("=== Run Summary ===")
		output = fmt.Sprintf("[%s] %s\n", ts, header)
		output += fmt.Sprintf("[%s] Total tasks: %d\n", ts, len(report.States))
		output += fmt.Sprintf("[%s] %s\n", ts, color.New(color.FgGreen).Sprintf("Succeeded: %d", counts[models.StateSucceeded]))
		if failed := counts[models.StateFailed]; failed > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, color.New(color.FgRed).Sprintf("Failed: %d", failed))
		} else {
			output += fmt.Sprintf("[%s] Failed: %d\n", ts, failed)
		}
		if skipped := counts[models.StateSkipped]; skipped > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, color.New(color.FgYellow).Sprintf("Skipped: %d", skipped))
		}
		if cancelled := counts[models.StateCancelled]; cancelled > 0 {
			output += fmt.Sprintf("[%s] %s\n", ts, color.New(color.FgYellow).Sprintf("Cancelled: %d", cancelled))
		}
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)
	} else {
		output = fmt.Sprintf("[%s] === Run Summary ===\n", ts)
		output += fmt.Sprintf("[%s] Total tasks: %d\n", ts, len(report.States))
		output += fmt.Sprintf("[%s] Succeeded: %d\n", ts, counts[models.StateSucceeded])
		output += fmt.Sprintf("[%s] Failed: %d\n", ts, counts[models.StateFailed])
		if skipped := counts[models.StateSkipped]; skipped > 0 {
			output += fmt.Sprintf("[%s] Skipped: %d\n", ts, skipped)
		}
		if cancelled := counts[models.StateCancelled]; cancelled > 0 {
			output += fmt.Sprintf("[%s] Cancelled: %d\n", ts, cancelled)
		}
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, durationStr)
	}

	for _, name := range report.Order {
		rec := report.Records[name]
		if rec == nil {
			continue
		}
		for _, d := range rec.Diagnostics {
			line := fmt.Sprintf("[%s]   %s:%d:%d: %s: %s", ts, d.File, d.Line, d.Column, d.Severity, d.Message)
			if d.Pattern != "" {
				line += fmt.Sprintf(" [%s]", d.Pattern)
			}
			output += line + "\n"
		}
	}

	cl.writer.Write([]byte(output))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration renders a duration rounded for display: milliseconds
// under a second, one decimal of seconds under a minute, minutes and
// seconds beyond that.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
