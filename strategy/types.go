// Package strategy implements C5: the pluggable decision layer that
// drives the orchestrator's run loop. A Strategy never touches a
// provider or tool-server directly; it only reads SessionState and
// returns a NextStep for the orchestrator to act on. Grounded on the
// teacher's provider/interface.go pattern of a small interface plus
// independent, focused implementations per concern.
package strategy

import (
	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

// StepKind tags the variant carried by a NextStep.
type StepKind string

const (
	StepCallModel     StepKind = "call_model"
	StepExecuteTools  StepKind = "execute_tools"
	StepDelegate      StepKind = "delegate"
	StepComplete      StepKind = "complete"
	StepFail          StepKind = "fail"
)

// NextStep is the tagged variant a Strategy returns (spec.md §4.4). Only
// the field(s) matching Kind are meaningful.
type NextStep struct {
	Kind StepKind

	// CallModel
	Messages    []chatmodel.ChatMessage
	ProviderKey string
	// Tools, when non-nil, overrides the orchestrator's default
	// tool-server catalog union for this call — used by strategies like
	// PlanExecute that must restrict the model to a fixed internal tool
	// set rather than the session's full tool catalog.
	Tools []chatmodel.ToolDefinition

	// ExecuteTools
	Calls []chatmodel.ToolCall

	// Delegate
	Delegation *DelegationInput

	// Complete
	FinalMessages []chatmodel.ChatMessage
	FinalResult   string

	// Fail
	Err error
}

// DelegationInput names the nested strategy to construct and seeds its
// state (spec.md §4.4's Delegate variant).
type DelegationInput struct {
	StrategyKind    string
	InitialMessages []chatmodel.ChatMessage
	Goal            string

	// Provider, when non-empty, overrides every CallModel step the
	// nested strategy emits (spec.md P7 — a delegating strategy picks
	// the provider for its delegate's scope, e.g. PlanExecute's
	// execution_provider). Empty leaves the nested strategy's own
	// ProviderKey choices untouched.
	Provider string
}

// DelegationOutput is handed to on_delegation_result after a nested
// strategy loop yields Complete.
type DelegationOutput struct {
	FinalMessages []chatmodel.ChatMessage
	FinalResult   string
}

// Strategy is the four-method decision interface (spec.md §4.4).
type Strategy interface {
	Initialize(state *session.State) NextStep
	OnModelResponse(state *session.State, response chatmodel.ChatResponse) NextStep
	OnToolResults(state *session.State, results []chatmodel.ToolResult) NextStep
	OnDelegationResult(state *session.State, output DelegationOutput) NextStep
}

func CallModel(messages []chatmodel.ChatMessage) NextStep {
	return NextStep{Kind: StepCallModel, Messages: messages}
}

func CallModelWithProvider(messages []chatmodel.ChatMessage, providerKey string) NextStep {
	return NextStep{Kind: StepCallModel, Messages: messages, ProviderKey: providerKey}
}

func ExecuteTools(calls []chatmodel.ToolCall) NextStep {
	return NextStep{Kind: StepExecuteTools, Calls: calls}
}

func Delegate(input DelegationInput) NextStep {
	return NextStep{Kind: StepDelegate, Delegation: &input}
}

func Complete(finalMessages []chatmodel.ChatMessage, finalResult string) NextStep {
	return NextStep{Kind: StepComplete, FinalMessages: finalMessages, FinalResult: finalResult}
}

func Fail(err error) NextStep {
	return NextStep{Kind: StepFail, Err: err}
}
