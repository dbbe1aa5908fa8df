// Package history implements C7: the JSON-file session store under
// <project-root>/.volition/history/<id>.json, grounded on the prior
// storage/sessions.go — same atomic-write-then-rename discipline, same
// PID lock-file convention, generalized from "sessions" to the
// persisted-session-file schema.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

const (
	configFileName = "Volition.toml"
	historyDirName = ".volition/history"
)

// ErrNotFound distinguishes a missing session id from a corrupt one
// (spec.md §4.6 load contract).
var ErrNotFound = errors.New("session not found")

// record is the on-disk shape (spec.md §6): {id, created_at, updated_at,
// task, messages[]}, plus whatever other top-level keys a newer build
// wrote. Those extra keys are round-tripped via the Store's side cache
// (see extraFields/marshalWithExtra) rather than the record struct
// itself, since session.State has no field to carry them through a
// caller that mutates and re-saves the same *session.State.
type record struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
	Task      string                  `json:"task"`
	Messages  []chatmodel.ChatMessage `json:"messages"`
}

// knownRecordFields are the top-level JSON keys record declares; every
// other key found on load is preserved as an extra field.
var knownRecordFields = map[string]bool{
	"id": true, "created_at": true, "updated_at": true, "task": true, "messages": true,
}

// Summary is the lightweight listing shape from spec.md §4.6's list op.
type Summary struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Task         string
	MessageCount int
}

// Store is the C7 collaborator. One Store per project root.
type Store struct {
	dir string

	// extra holds unrecognized top-level JSON fields keyed by session
	// id, populated on Load and merged back in on the next Save for
	// that id (spec.md §6: "additional fields are preserved on
	// round-trip"). A session this Store never loaded has no entry and
	// saves with no extras, same as before.
	extra map[string]map[string]json.RawMessage
}

// DiscoverProjectRoot walks upward from start until a directory
// containing Volition.toml is found; if none is found, start itself is
// used (spec.md §4.6).
func DiscoverProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, configFileName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return start, nil
		}
		dir = parent
	}
}

// Open creates (if needed) and returns a Store rooted at
// <projectRoot>/.volition/history.
func Open(projectRoot string) (*Store, error) {
	dir := filepath.Join(projectRoot, historyDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &Store{dir: dir, extra: make(map[string]map[string]json.RawMessage)}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save performs a full-rewrite, atomic via write-temp-then-rename
// (spec.md §4.6).
func (s *Store) Save(state *session.State) error {
	rec := record{
		ID:        state.ID,
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.UpdatedAt,
		Task:      state.Task,
		Messages:  state.Messages,
	}

	data, err := marshalWithExtra(rec, s.extra[state.ID])
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", state.ID, err)
	}

	final := s.path(state.ID)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session %s: %w", state.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("committing session %s: %w", state.ID, err)
	}
	return nil
}

// Load reads and parses a single session file.
func (s *Store) Load(id string) (*session.State, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", id, err)
	}

	if extra, err := extraFields(data); err == nil && len(extra) > 0 {
		s.extra[id] = extra
	}

	return &session.State{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Task:      rec.Task,
		Messages:  rec.Messages,
	}, nil
}

// extraFields returns the top-level JSON keys in data that record
// doesn't declare.
func extraFields(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for key := range raw {
		if knownRecordFields[key] {
			delete(raw, key)
		}
	}
	return raw, nil
}

// marshalWithExtra encodes rec and splices extra's keys back in
// alongside the known fields. extra may be nil.
func marshalWithExtra(rec record, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return json.MarshalIndent(rec, "", "  ")
	}

	known, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]json.RawMessage, len(extra)+5)
	for key, value := range extra {
		merged[key] = value
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for key, value := range knownMap {
		merged[key] = value
	}

	return json.MarshalIndent(merged, "", "  ")
}

// List enumerates session files, sorted newest-first by UpdatedAt, and
// truncated to limit if limit > 0.
func (s *Store) List(limit int) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading history directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}

		summaries = append(summaries, Summary{
			ID:           rec.ID,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
			Task:         rec.Task,
			MessageCount: len(rec.Messages),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Delete is best-effort: a missing file is not an error.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	delete(s.extra, id)
	return nil
}

// Preview renders a short single-line human summary of a session.
func Preview(state *session.State) string {
	task := state.Task
	if task == "" {
		task = "(no task)"
	}
	if len(task) > 60 {
		task = task[:60] + "..."
	}
	return fmt.Sprintf("%s  %s  %d messages  %s", state.ID, state.UpdatedAt.Format(time.RFC3339), len(state.Messages), task)
}
