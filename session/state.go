// Package session implements C4: the mutable per-run record an
// orchestrator carries through a run — message history, the tool calls
// a model turn left pending, and whether the run has reached a terminal
// state.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/volition-run/volition/chatmodel"
)

// State is the orchestrator's per-run record (spec.md §4.4). Its id is a
// time-ordered UUID so session files list in creation order by name
// alone; CreatedAt/UpdatedAt are independent of the id's embedded time
// for portability across id schemes (history files may carry a plain
// UUID v4 produced by an older build — see §4.6).
type State struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	Task     string
	Messages []chatmodel.ChatMessage

	// PendingToolCalls holds the tool calls the last model turn emitted,
	// not yet executed. Empty once ExecuteTools has run for that turn.
	PendingToolCalls []chatmodel.ToolCall

	Terminal bool
}

// New starts a fresh session for the given task, with a time-ordered
// UUID id (falls back to a random v4 if v7 generation fails, which only
// happens if the system clock or entropy source is unavailable).
func New(task string) *State {
	id, err := uuid.NewV7()
	idStr := id.String()
	if err != nil {
		idStr = uuid.NewString()
	}

	now := time.Now()
	return &State{
		ID:        idStr,
		CreatedAt: now,
		UpdatedAt: now,
		Task:      task,
	}
}

// Validate checks the invariant from spec.md §4.4: if PendingToolCalls
// is non-empty, the last message must be an assistant message whose
// tool-call list is exactly that set (same ids, any order).
func (s *State) Validate() error {
	if len(s.PendingToolCalls) == 0 {
		return nil
	}

	if len(s.Messages) == 0 {
		return fmt.Errorf("session %s: pending tool calls but no messages", s.ID)
	}

	last := s.Messages[len(s.Messages)-1]
	if last.Role != chatmodel.RoleAssistant {
		return fmt.Errorf("session %s: pending tool calls but last message is role %q, not assistant", s.ID, last.Role)
	}

	if len(last.ToolCalls) != len(s.PendingToolCalls) {
		return fmt.Errorf("session %s: pending tool calls (%d) do not match last assistant message's tool calls (%d)", s.ID, len(s.PendingToolCalls), len(last.ToolCalls))
	}

	want := make(map[string]bool, len(s.PendingToolCalls))
	for _, c := range s.PendingToolCalls {
		want[c.ID] = true
	}
	for _, c := range last.ToolCalls {
		if !want[c.ID] {
			return fmt.Errorf("session %s: pending tool call id %q not present in last assistant message", s.ID, c.ID)
		}
	}

	return nil
}

// AppendAssistant records a model turn and sets PendingToolCalls to its
// tool calls (possibly empty).
func (s *State) AppendAssistant(resp chatmodel.ChatResponse) {
	msg := resp.AsMessage()
	s.Messages = append(s.Messages, msg)
	s.PendingToolCalls = append([]chatmodel.ToolCall{}, resp.ToolCalls...)
	s.UpdatedAt = time.Now()
}

// AppendToolResults appends tool-role messages in the exact order given
// and clears PendingToolCalls — the caller (C6) is responsible for
// passing results in declared-call order regardless of execution order
// (spec.md §5 ordering guarantee, scenario 3).
func (s *State) AppendToolResults(results []chatmodel.ToolResult) {
	for _, r := range results {
		s.Messages = append(s.Messages, chatmodel.ChatMessage{
			Role:       chatmodel.RoleTool,
			Content:    r.Payload,
			ToolCallID: r.CallID,
			Name:       r.Name,
		})
	}
	s.PendingToolCalls = nil
	s.UpdatedAt = time.Now()
}

// AppendSystem and AppendUser seed a new session's first two messages.
func (s *State) AppendSystem(content string) {
	s.Messages = append(s.Messages, chatmodel.ChatMessage{Role: chatmodel.RoleSystem, Content: content})
	s.UpdatedAt = time.Now()
}

func (s *State) AppendUser(content string) {
	s.Messages = append(s.Messages, chatmodel.ChatMessage{Role: chatmodel.RoleUser, Content: content})
	s.UpdatedAt = time.Now()
}

// Clone returns a copy whose message and pending-call slices are
// independent of s, so appending to the clone cannot mutate s's
// committed messages.
func (s *State) Clone() *State {
	clone := &State{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Task:      s.Task,
		Terminal:  s.Terminal,
		Messages:  append([]chatmodel.ChatMessage{}, s.Messages...),
	}
	if s.PendingToolCalls != nil {
		clone.PendingToolCalls = append([]chatmodel.ToolCall{}, s.PendingToolCalls...)
	}
	return clone
}
