package session

import "github.com/volition-run/volition/chatmodel"

// SummaryMarker prefixes a compacted-history message's content, matching
// the marker a reload path special-cases to skip re-rendering
// already-folded messages.
const SummaryMarker = "<conversation_summary>"

// Compactor reduces a message list's size once token usage crosses a
// threshold (SPEC_FULL.md §10: context/token-budget compaction carried
// over from the original agent core, additive to spec.md §3/§5). The
// orchestrator calls it after an assistant turn, never mid-tool-call, so
// a compactor is never asked to fold away a message still holding
// pending tool calls.
type Compactor interface {
	Compact(messages []chatmodel.ChatMessage) []chatmodel.ChatMessage
}

// NoopCompactor never compacts; setting it behaves the same as leaving
// the orchestrator's Compactor nil, which is the default: compaction is
// strictly opt-in.
type NoopCompactor struct{}

func (NoopCompactor) Compact(messages []chatmodel.ChatMessage) []chatmodel.ChatMessage {
	return messages
}

// SummarizingCompactor folds every message but the trailing Keep messages
// into one system-role summary message tagged with SummaryMarker.
// Summarize produces the replacement text, typically by asking the model
// itself for a summary of the folded span.
type SummarizingCompactor struct {
	Keep      int
	Summarize func(folded []chatmodel.ChatMessage) string
}

// Compact returns messages unchanged if there's nothing meaningful to
// fold (no Summarize func, or not enough history beyond what Keep
// preserves).
func (c SummarizingCompactor) Compact(messages []chatmodel.ChatMessage) []chatmodel.ChatMessage {
	if c.Summarize == nil || c.Keep < 0 || len(messages) <= c.Keep+1 {
		return messages
	}

	keepFrom := len(messages) - c.Keep
	folded := messages[:keepFrom]
	tail := messages[keepFrom:]

	summary := chatmodel.ChatMessage{
		Role:    chatmodel.RoleSystem,
		Content: SummaryMarker + " " + c.Summarize(folded),
	}

	out := make([]chatmodel.ChatMessage, 0, 1+len(tail))
	out = append(out, summary)
	out = append(out, tail...)
	return out
}
