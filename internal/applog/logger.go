// Package applog writes DL-FI's structured operation log: one JSON
// line per event, rotated through lumberjack. It is the archive's
// <archive_root>/.dlfi/dlfi.log, not a developer debug log.
package applog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger emits newline-delimited JSON log entries.
type Logger struct {
	out     *log.Logger
	backing *lumberjack.Logger
}

type entry struct {
	Time   string         `json:"time"`
	Level  string         `json:"level"`
	Event  string         `json:"event"`
	Error  string         `json:"error,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// New opens (creating if necessary) the log file at path, rotated at
// maxSizeMB with maxBackups old files kept for maxAgeDays.
func New(path string, maxSizeMB, maxBackups, maxAgeDays int) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &Logger{out: log.New(lj, "", 0), backing: lj}, nil
}

func (l *Logger) write(level, event string, err error, fields map[string]any) {
	if l == nil {
		return
	}
	e := entry{Time: time.Now().UTC().Format(time.RFC3339Nano), Level: level, Event: event, Fields: fields}
	if err != nil {
		e.Error = err.Error()
	}
	data, merr := json.Marshal(e)
	if merr != nil {
		return
	}
	l.out.Println(string(data))
}

// Info records a routine event.
func (l *Logger) Info(event string, fields map[string]any) { l.write("info", event, nil, fields) }

// Warn records a tolerated failure: something was skipped, not aborted.
func (l *Logger) Warn(event string, err error, fields map[string]any) { l.write("warn", event, err, fields) }

// Error records a failure that aborted the enclosing operation.
func (l *Logger) Error(event string, err error, fields map[string]any) { l.write("error", event, err, fields) }

// Close flushes and closes the underlying rotated file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.backing.Close()
}
