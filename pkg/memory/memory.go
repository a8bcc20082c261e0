// Package memory records advisory incident notes for cross-agent
// correlation: HOLD decisions and deploy failures land here so other booty
// agents (and govctl status) can surface recent release friction. Writes
// are best-effort; correctness never depends on this store.
package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Note kinds.
const (
	KindHold          = "hold"
	KindDeployFailure = "deploy_failure"
)

// Note is one incident record.
type Note struct {
	Kind      string `json:"kind"`
	Repo      string `json:"repo"`
	SHA       string `json:"sha"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Recorder appends notes to a per-repository JSONL file.
type Recorder struct {
	dir string
	now func() time.Time
}

// NewRecorder creates a Recorder rooted at dir.
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("memory: directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("memory: init directory: %w", err)
	}
	return &Recorder{dir: dir, now: time.Now}, nil
}

func (r *Recorder) path(repo string) string {
	return filepath.Join(r.dir, strings.ReplaceAll(repo, "/", "__")+".jsonl")
}

// Record appends a note. The timestamp is filled in when absent.
func (r *Recorder) Record(note Note) error {
	if note.CreatedAt == "" {
		note.CreatedAt = r.now().UTC().Format(time.RFC3339)
	}
	line, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("memory: encode note: %w", err)
	}
	f, err := os.OpenFile(r.path(note.Repo), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("memory: open note file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("memory: append note: %w", err)
	}
	return nil
}

// Recent returns up to limit notes for repo, newest last. Corrupt lines are
// skipped.
func (r *Recorder) Recent(repo string, limit int) ([]Note, error) {
	f, err := os.Open(r.path(repo))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: open note file: %w", err)
	}
	defer f.Close()

	var notes []Note
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var n Note
		if err := json.Unmarshal(scanner.Bytes(), &n); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("memory: read notes: %w", err)
	}
	if limit > 0 && len(notes) > limit {
		notes = notes[len(notes)-limit:]
	}
	return notes, nil
}
