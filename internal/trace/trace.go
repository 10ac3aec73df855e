// Package trace is a rotating flight recorder for rule firings: every
// matcher decision can be logged as a JSON line for later replay or
// debugging, independent of whatever payload the rule actually ran.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// MaxRotatedFiles bounds how many trace files Start keeps around.
	MaxRotatedFiles = 3
	// DefaultDir is used when Recorder is constructed with an empty path.
	DefaultDir = "traces"
)

// Event is one recorded decision: a rule fired (or a hook aborted it) for
// a given opcode/fact set.
type Event struct {
	Timestamp     time.Time   `json:"ts"`
	Type          string      `json:"type"`
	RuleName      string      `json:"rule_name"`
	CriteriaCount int         `json:"criteria_count,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}

// Recorder manages a rotating set of JSON-lines trace files.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
}

// NewRecorder creates a recorder rooted at basePath, creating the
// directory if needed. An empty basePath uses DefaultDir.
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = DefaultDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath}, nil
}

// Start begins a new trace file named after runID, rotating old files so
// only the newest MaxRotatedFiles-1 survive alongside it.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	filename := fmt.Sprintf("trace_%s_%d.jsonl", runID, time.Now().UnixMilli())
	path := filepath.Join(r.basePath, filename)
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Log appends one event. A Recorder with no active Start-ed file silently
// drops the event (tracing is an optional diagnostic, never load-bearing).
func (r *Recorder) Log(eventType, ruleName string, criteriaCount int, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}

	evt := Event{
		Timestamp:     time.Now(),
		Type:          eventType,
		RuleName:      ruleName,
		CriteriaCount: criteriaCount,
		Data:          data,
	}
	_ = r.encoder.Encode(evt)
}

// HookFunc returns a rule.HookFunc-shaped closure (the caller imports the
// rule package and supplies the cast) that logs eventType whenever it
// fires, always returning true so it never itself aborts a chain.
func (r *Recorder) HookFunc(eventType string) func(hookCtx, payloadCtx any) bool {
	return func(hookCtx, payloadCtx any) bool {
		name, _ := hookCtx.(string)
		r.Log(eventType, name, 0, payloadCtx)
		return true
	}
}

func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	var traces []struct {
		Name string
		Time time.Time
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, struct {
			Name string
			Time time.Time
		}{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].Time.After(traces[j].Time)
	})

	if len(traces) >= MaxRotatedFiles {
		keep := MaxRotatedFiles - 1
		if keep < 0 {
			keep = 0
		}
		for i := keep; i < len(traces); i++ {
			path := filepath.Join(r.basePath, traces[i].Name)
			_ = os.Remove(path)
		}
	}
	return nil
}

// Close finishes the current trace file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
