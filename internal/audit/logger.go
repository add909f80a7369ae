// Package audit appends one JSON line per sync step to the server's audit log.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"dxm/internal/errs"
)

// Phase marks where in an operation an event was recorded.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseCommit   Phase = "commit"
	PhaseRollback Phase = "rollback"
	PhaseSkip     Phase = "skip"
)

// Logger writes events for a single dxm invocation. Every event carries the
// same run id.
type Logger struct {
	path  string
	runID string
	mu    sync.Mutex
}

type Event struct {
	Timestamp string            `json:"timestamp"`
	RunID     string            `json:"run_id"`
	Operation string            `json:"operation"`
	Phase     Phase             `json:"phase"`
	Status    string            `json:"status"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func New(path string) *Logger {
	return &Logger{path: path, runID: uuid.NewString()}
}

// RunID identifies the invocation the logger belongs to.
func (l *Logger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

func (l *Logger) Log(ev Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	ev.RunID = l.runID
	blob, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(blob, '\n'))
	return err
}

// Record logs a successful step. Write failures are dropped so auditing
// never fails the operation it describes.
func (l *Logger) Record(op string, phase Phase, msg string, fields map[string]string) {
	_ = l.Log(Event{Operation: op, Phase: phase, Status: "ok", Message: msg, Fields: fields})
}

// Failure logs err against op, keeping its stable code when it has one.
func (l *Logger) Failure(op string, phase Phase, err error, fields map[string]string) {
	ev := Event{Operation: op, Phase: phase, Status: "error", Message: err.Error(), Fields: fields}
	var coded *errs.Error
	if errors.As(err, &coded) {
		ev.Code = coded.Code
	}
	_ = l.Log(ev)
}

// ReadEvents loads every event in the log at path. A missing log is empty.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, scanner.Err()
}
