package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/overture/internal/models"
)

func TestNormalizeLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "debug"},
		{"DEBUG", "debug"},
		{"  Warn  ", "warn"},
		{"", "info"},
		{"verbose", "info"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeLogLevel(tt.input), "input %q", tt.input)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "warn")

	cl.LogDebug("hidden")
	cl.LogInfo("hidden too")
	cl.LogWarn("shown")
	cl.LogError("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown")
	assert.Contains(t, out, "[ERROR] also shown")
}

func TestLogMessageFormat(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "trace")

	cl.LogTrace("tracing")

	// "[HH:MM:SS] [TRACE] tracing"
	assert.Regexp(t, `^\[\d{2}:\d{2}:\d{2}\] \[TRACE\] tracing\n$`, buf.String())
}

func TestNilWriterDiscards(t *testing.T) {
	cl := NewConsoleLogger(nil, "info")
	cl.LogInfo("nowhere")
	cl.TaskSkipped("a", "because")
}

func TestTaskLifecycleLogging(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "debug")

	task := models.Task{Name: "build", Command: "cargo", Args: []string{"build"}}
	cl.TaskStarted(task)

	start := time.Now()
	rec := &models.RunRecord{
		TaskName:  "build",
		Outcome:   models.OutcomeFailure,
		ExitCode:  101,
		StartedAt: start,
		EndedAt:   start.Add(250 * time.Millisecond),
	}
	cl.TaskFinished(rec, models.StateFailed)
	cl.TaskSkipped("deploy", "dependency build failed")

	out := buf.String()
	assert.Contains(t, out, "Starting build: cargo build")
	assert.Contains(t, out, "build: failed (exit 101, 250ms)")
	assert.Contains(t, out, "deploy: skipped (dependency build failed)")
}

func TestTaskStartedBelowDebugIsSilent(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	cl.TaskStarted(models.Task{Name: "quiet", Command: "true"})
	assert.Empty(t, buf.String())
}

func TestLogSummary(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	start := time.Now()
	report := &models.RunReport{
		RootTask:  "all",
		StartedAt: start,
		EndedAt:   start.Add(3 * time.Second),
		States: map[string]models.NodeState{
			"gen":   models.StateSucceeded,
			"build": models.StateFailed,
			"test":  models.StateSkipped,
		},
		Records: map[string]*models.RunRecord{
			"build": {
				TaskName: "build",
				Diagnostics: []models.Diagnostic{
					{File: "main.rs", Line: 3, Column: 7, Severity: models.SeverityError, Message: "boom", Pattern: "rustc"},
				},
			},
		},
		Order: []string{"gen", "build"},
	}

	cl.LogSummary(report)

	out := buf.String()
	assert.Contains(t, out, "=== Run Summary ===")
	assert.Contains(t, out, "Total tasks: 3")
	assert.Contains(t, out, "Succeeded: 1")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Skipped: 1")
	assert.Contains(t, out, "main.rs:3:7: error: boom [rustc]")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2.5s", formatDuration(2500*time.Millisecond))
	assert.Equal(t, "1m5s", formatDuration(65*time.Second))
}
