package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// EventType represents the type of event
type EventType string

const (
	EventLoad       EventType = "load"
	EventReject     EventType = "reject"
	EventDuplicate  EventType = "duplicate"
	EventFit        EventType = "fit"
	EventReload     EventType = "reload"
	EventRecommend  EventType = "recommend"
	EventUnresolved EventType = "unresolved"
	EventProvider   EventType = "provider"
	EventError      EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in the recommendation pipeline
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	RequestID  string            `json:"request_id,omitempty"`
	PlaylistID string            `json:"playlist_id,omitempty"`
	TrackID    string            `json:"track_id,omitempty"`
	Table      string            `json:"table,omitempty"`
	Row        int               `json:"row,omitempty"`
	Field      string            `json:"field,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Count      int               `json:"count,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogReject logs a catalog or genre row that failed parsing
func (l *EventLogger) LogReject(table string, row int, field, reason string) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventReject,
		Table:  table,
		Row:    row,
		Field:  field,
		Reason: reason,
	})
}

// LogDuplicate logs rows collapsed into a surviving track
func (l *EventLogger) LogDuplicate(trackID, key string, collapsed int) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventDuplicate,
		TrackID: trackID,
		Count:   collapsed,
		Extra: map[string]string{
			"dedup_key": key,
		},
	})
}

// LogLoad logs the outcome of one catalog normalization pass
func (l *EventLogger) LogLoad(source string, tracks, rejected, duplicates int, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventLoad,
		Count:    tracks,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"source":     source,
			"rejected":   fmt.Sprintf("%d", rejected),
			"duplicates": fmt.Sprintf("%d", duplicates),
		},
	})
}

// LogFit logs a fitted feature space
func (l *EventLogger) LogFit(spaceID string, dimension, tracks int) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventFit,
		Count: tracks,
		Extra: map[string]string{
			"space_id":  spaceID,
			"dimension": fmt.Sprintf("%d", dimension),
		},
	})
}

// LogReload logs a snapshot swap (or a failed attempt)
func (l *EventLogger) LogReload(spaceID string, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventReload,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra: map[string]string{
			"space_id": spaceID,
		},
	})
}

// LogRecommend logs a finished recommendation request
func (l *EventLogger) LogRecommend(requestID, playlistID string, returned int, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventRecommend,
		RequestID:  requestID,
		PlaylistID: playlistID,
		Count:      returned,
		Duration:   duration.Milliseconds(),
		Error:      errMsg,
	})
}

// LogUnresolved logs playlist entries that were dropped from a profile
func (l *EventLogger) LogUnresolved(requestID, playlistID string, dropped int) error {
	if dropped == 0 {
		return nil
	}
	return l.Log(&Event{
		Level:      LevelDebug,
		Event:      EventUnresolved,
		RequestID:  requestID,
		PlaylistID: playlistID,
		Count:      dropped,
	})
}

// LogProvider logs an external provider failure
func (l *EventLogger) LogProvider(requestID, provider string, err error) error {
	return l.Log(&Event{
		Level:     LevelWarning,
		Event:     EventProvider,
		RequestID: requestID,
		Error:     err.Error(),
		Extra: map[string]string{
			"provider": provider,
		},
	})
}

// LogError records a failure outside a request or reload, e.g. a background
// re-import. stage names the step that failed.
func (l *EventLogger) LogError(stage string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: EventError,
		Error: err.Error(),
		Extra: map[string]string{"stage": stage},
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}

// ParseLevel maps CLI verbosity onto an event level
func ParseLevel(verbose, quiet bool) EventLevel {
	switch {
	case quiet:
		return LevelWarning
	case verbose:
		return LevelDebug
	default:
		return LevelInfo
	}
}
