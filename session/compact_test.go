package session

import (
	"strings"
	"testing"

	"github.com/volition-run/volition/chatmodel"
)

func TestNoopCompactorLeavesMessagesUnchanged(t *testing.T) {
	messages := []chatmodel.ChatMessage{
		{Role: chatmodel.RoleSystem, Content: "s"},
		{Role: chatmodel.RoleUser, Content: "u"},
	}
	got := NoopCompactor{}.Compact(messages)
	if len(got) != len(messages) {
		t.Fatalf("expected unchanged length, got %d", len(got))
	}
}

func TestSummarizingCompactorFoldsOlderMessages(t *testing.T) {
	messages := []chatmodel.ChatMessage{
		{Role: chatmodel.RoleSystem, Content: "system prompt"},
		{Role: chatmodel.RoleUser, Content: "turn 1"},
		{Role: chatmodel.RoleAssistant, Content: "reply 1"},
		{Role: chatmodel.RoleUser, Content: "turn 2"},
		{Role: chatmodel.RoleAssistant, Content: "reply 2"},
	}

	c := SummarizingCompactor{
		Keep: 2,
		Summarize: func(folded []chatmodel.ChatMessage) string {
			return "folded " + string(rune('0'+len(folded))) + " messages"
		},
	}

	got := c.Compact(messages)
	if len(got) != 3 {
		t.Fatalf("expected summary + 2 kept messages, got %d: %+v", len(got), got)
	}
	if !strings.HasPrefix(got[0].Content, SummaryMarker) {
		t.Fatalf("expected summary marker prefix, got %q", got[0].Content)
	}
	if got[1].Content != "turn 2" || got[2].Content != "reply 2" {
		t.Fatalf("expected tail preserved verbatim, got %+v", got[1:])
	}
}

func TestSummarizingCompactorNoopsBelowKeepThreshold(t *testing.T) {
	messages := []chatmodel.ChatMessage{
		{Role: chatmodel.RoleSystem, Content: "s"},
		{Role: chatmodel.RoleUser, Content: "u"},
	}
	c := SummarizingCompactor{Keep: 5, Summarize: func([]chatmodel.ChatMessage) string { return "x" }}

	got := c.Compact(messages)
	if len(got) != len(messages) {
		t.Fatalf("expected unchanged length below threshold, got %d", len(got))
	}
}

func TestSummarizingCompactorNoopsWithoutSummarizeFunc(t *testing.T) {
	messages := make([]chatmodel.ChatMessage, 10)
	c := SummarizingCompactor{Keep: 2}

	got := c.Compact(messages)
	if len(got) != len(messages) {
		t.Fatalf("expected unchanged length without Summarize, got %d", len(got))
	}
}
