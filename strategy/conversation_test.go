package strategy

import (
	"testing"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

func TestConversationFirstTurnDelegatesToInner(t *testing.T) {
	conv := NewConversation(NewCompleteTask("sys"), nil)
	state := session.New("hello")

	step := conv.Initialize(state)
	if step.Kind != StepCallModel {
		t.Fatalf("expected CallModel, got %s", step.Kind)
	}
	if step.Messages[0].Role != chatmodel.RoleSystem {
		t.Fatalf("expected first-turn system message, got %+v", step.Messages[0])
	}
}

func TestConversationSecondTurnDoesNotRepeatSystemPrompt(t *testing.T) {
	conv := NewConversation(NewCompleteTask("sys"), []chatmodel.ChatMessage{
		{Role: chatmodel.RoleSystem, Content: "sys"},
		{Role: chatmodel.RoleUser, Content: "first goal"},
		{Role: chatmodel.RoleAssistant, Content: "done"},
	})
	state := session.New("second goal")

	step := conv.Initialize(state)
	if step.Kind != StepCallModel {
		t.Fatalf("expected CallModel, got %s", step.Kind)
	}

	systemCount := 0
	for _, m := range step.Messages {
		if m.Role == chatmodel.RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Fatalf("expected exactly one system message across turns, got %d", systemCount)
	}
	if step.Messages[len(step.Messages)-1].Content != "second goal" {
		t.Fatalf("expected new goal appended as last message, got %+v", step.Messages[len(step.Messages)-1])
	}
}

func TestConversationEmptyInputEnds(t *testing.T) {
	conv := NewConversation(NewCompleteTask("sys"), nil)
	state := session.New("")

	step := conv.Initialize(state)
	if step.Kind != StepComplete {
		t.Fatalf("expected Complete on empty input, got %s", step.Kind)
	}
}

func TestConversationNewDiscardsHistory(t *testing.T) {
	conv := NewConversation(NewCompleteTask("sys"), []chatmodel.ChatMessage{
		{Role: chatmodel.RoleSystem, Content: "sys"},
	})
	state := session.New("new")

	step := conv.Initialize(state)
	if step.Kind != StepCallModel {
		t.Fatalf("expected CallModel, got %s", step.Kind)
	}
	if len(step.Messages) != 2 {
		t.Fatalf("expected fresh system+user messages after 'new', got %+v", step.Messages)
	}
}
