package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	state := session.New("say hello")
	state.AppendSystem("you are an agent")
	state.AppendUser("say hello")

	if err := s.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(state.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ID != state.ID || loaded.Task != state.Task {
		t.Fatalf("round trip mismatch: got %+v", loaded)
	}
	if len(loaded.Messages) != len(state.Messages) {
		t.Fatalf("expected %d messages, got %d", len(state.Messages), len(loaded.Messages))
	}
}

func TestSaveLoadRoundTripPreservesUnknownFields(t *testing.T) {
	s := newTestStore(t)

	state := session.New("say hello")
	if err := s.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(s.path(state.ID))
	if err != nil {
		t.Fatalf("reading session file: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshaling session file: %v", err)
	}
	doc["model_hint"] = json.RawMessage(`"gpt-5"`)
	augmented, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("remarshaling session file: %v", err)
	}
	if err := os.WriteFile(s.path(state.ID), augmented, 0o600); err != nil {
		t.Fatalf("writing augmented session file: %v", err)
	}

	loaded, err := s.Load(state.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded.Task = "say hello again"
	if err := s.Save(loaded); err != nil {
		t.Fatalf("Save after load: %v", err)
	}

	raw, err = os.ReadFile(s.path(state.ID))
	if err != nil {
		t.Fatalf("reading session file after resave: %v", err)
	}
	doc = nil
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshaling resaved session file: %v", err)
	}
	hint, ok := doc["model_hint"]
	if !ok || string(hint) != `"gpt-5"` {
		t.Fatalf("expected model_hint to survive the load/save round trip, got %+v", doc)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load("does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	older := session.New("first")
	newer := session.New("second")
	newer.UpdatedAt = older.UpdatedAt.Add(time.Hour)

	if err := s.Save(older); err != nil {
		t.Fatalf("Save older: %v", err)
	}
	if err := s.Save(newer); err != nil {
		t.Fatalf("Save newer: %v", err)
	}

	summaries, err := s.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != newer.ID {
		t.Fatalf("expected newest session first, got %s", summaries[0].ID)
	}
}

func TestDeleteIsBestEffort(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("never-existed"); err != nil {
		t.Fatalf("expected no error deleting missing session, got %v", err)
	}
}

func TestLockAndUnlock(t *testing.T) {
	s := newTestStore(t)
	id := "session-1"

	locked, err := s.Locked(id)
	if err != nil || locked {
		t.Fatalf("expected unlocked before Lock, got locked=%v err=%v", locked, err)
	}

	if err := s.Lock(id); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	locked, err = s.Locked(id)
	if err != nil {
		t.Fatalf("Locked: %v", err)
	}
	if !locked {
		t.Fatal("expected locked by current process (alive pid)")
	}

	if err := s.Unlock(id); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	locked, _ = s.Locked(id)
	if locked {
		t.Fatal("expected unlocked after Unlock")
	}
}

func TestDiscoverProjectRootFindsConfigUpward(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, configFileName), []byte(""), 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	found, err := DiscoverProjectRoot(nested)
	if err != nil {
		t.Fatalf("DiscoverProjectRoot: %v", err)
	}
	if found != root {
		t.Fatalf("expected %q, got %q", root, found)
	}
}

func TestPreviewMentionsTaskAndID(t *testing.T) {
	state := session.New("investigate the flaky test")
	state.AppendAssistant(chatmodel.ChatResponse{Content: "done"})

	line := Preview(state)
	if line == "" {
		t.Fatal("expected non-empty preview")
	}
	if !strings.Contains(line, state.ID) || !strings.Contains(line, state.Task) {
		t.Fatalf("expected preview to mention id %q and task %q, got %q", state.ID, state.Task, line)
	}
}
