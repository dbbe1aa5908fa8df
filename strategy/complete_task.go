package strategy

import (
	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

// CompleteTask is the minimal built-in strategy (spec.md §4.4): call the
// model, execute whatever tools it asks for, repeat until it answers
// with no tool calls.
type CompleteTask struct {
	SystemPrompt string
}

func NewCompleteTask(systemPrompt string) *CompleteTask {
	return &CompleteTask{SystemPrompt: systemPrompt}
}

func (c *CompleteTask) Initialize(state *session.State) NextStep {
	messages := []chatmodel.ChatMessage{
		{Role: chatmodel.RoleSystem, Content: c.SystemPrompt},
		{Role: chatmodel.RoleUser, Content: state.Task},
	}
	return CallModel(messages)
}

func (c *CompleteTask) OnModelResponse(state *session.State, response chatmodel.ChatResponse) NextStep {
	if len(response.ToolCalls) > 0 {
		return ExecuteTools(response.ToolCalls)
	}
	return Complete(state.Messages, response.Content)
}

func (c *CompleteTask) OnToolResults(state *session.State, results []chatmodel.ToolResult) NextStep {
	return CallModel(state.Messages)
}

func (c *CompleteTask) OnDelegationResult(state *session.State, output DelegationOutput) NextStep {
	return Fail(errUnreachableDelegation)
}
