package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultStatusFile is the status document the UI polls for the latest run
const DefaultStatusFile = "bot_log.json"

// Status is the compact document written next to every pipeline artifact
type Status struct {
	PipelineText string    `json:"pipeline_text"`
	PipelineFile string    `json:"pipeline_file"`
	RunID        string    `json:"run_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Log accumulates the narrative of one engine invocation.
// A Log is owned by a single invocation and discarded after Flush.
type Log struct {
	mu         sync.Mutex
	lines      []string
	dir        string
	statusFile string
	runID      string
	now        func() time.Time
	file       string
}

// New creates an empty pipeline log that will flush into dir
func New(dir, statusFile, runID string, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	if statusFile == "" {
		statusFile = DefaultStatusFile
	}
	return &Log{
		dir:        dir,
		statusFile: statusFile,
		runID:      runID,
		now:        now,
	}
}

// Line appends a timestamped entry
func (l *Log) Line(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, l.stamp(text))
}

// Linef is Line with formatting
func (l *Log) Linef(format string, args ...any) {
	l.Line(fmt.Sprintf(format, args...))
}

func (l *Log) stamp(text string) string {
	return fmt.Sprintf("[%s] %s", l.now().UTC().Format(time.RFC3339), text)
}

// Mark returns a position that TextSince can later slice from
func (l *Log) Mark() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Lines returns a copy of every entry so far
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Text returns the newline-joined narrative
func (l *Log) Text() string {
	return l.TextSince(0)
}

// TextSince returns the narrative appended after mark
func (l *Log) TextSince(mark int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if mark < 0 || mark > len(l.lines) {
		mark = 0
	}
	return joinLines(l.lines[mark:])
}

// File is the artifact location, empty until Flush succeeds
func (l *Log) File() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file
}

// RunID identifies the invocation in artifact names and the status document
func (l *Log) RunID() string {
	return l.runID
}

// Flush writes the artifact and the status document.
// If dir is not writable both are written to the working directory instead.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC()
	name := fmt.Sprintf("bot_pipeline_%s%s.txt", ts.Format("20060102_150405"), shortRunID(l.runID))

	path, err := writeWithFallback(l.dir, name, []byte(joinLines(l.lines)))
	if err != nil {
		l.lines = append(l.lines, l.stamp(fmt.Sprintf("Error escribiendo pipeline en archivo: %v", err)))
		return fmt.Errorf("failed to write pipeline file: %w", err)
	}
	l.file = path

	final := l.stamp("Pipeline escrito en " + path)
	l.lines = append(l.lines, final)
	if err := appendLine(path, final); err != nil {
		return fmt.Errorf("failed to append final pipeline line: %w", err)
	}

	status, err := json.MarshalIndent(Status{
		PipelineText: joinLines(l.lines),
		PipelineFile: path,
		RunID:        l.runID,
		UpdatedAt:    ts,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pipeline status: %w", err)
	}

	if _, err := writeWithFallback(l.dir, l.statusFile, status); err != nil {
		return fmt.Errorf("failed to write pipeline status: %w", err)
	}

	return nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func shortRunID(runID string) string {
	if runID == "" {
		return ""
	}
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return "_" + runID
}

func writeWithFallback(dir, name string, content []byte) (string, error) {
	path := filepath.Join(dir, name)
	err := os.MkdirAll(dir, 0755)
	if err == nil {
		err = os.WriteFile(path, content, 0644)
	}
	if err == nil {
		return path, nil
	}

	cwd, cwdErr := os.Getwd()
	if cwdErr != nil {
		return "", err
	}
	path = filepath.Join(cwd, name)
	if fallbackErr := os.WriteFile(path, content, 0644); fallbackErr != nil {
		return "", fmt.Errorf("%w (fallback: %v)", err, fallbackErr)
	}
	return path, nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
