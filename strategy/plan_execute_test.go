package strategy

import (
	"testing"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

func TestPlanExecuteFullRun(t *testing.T) {
	p := NewPlanExecute("planner", "executor", "you plan things")
	state := session.New("do X")

	init := p.Initialize(state)
	if init.Kind != StepCallModel || init.ProviderKey != "planner" {
		t.Fatalf("expected CallModel on planner, got %+v", init)
	}

	planCall := chatmodel.ToolCall{ID: "c1", Name: ToolSubmitPlan, Arguments: `{"plan":"do X"}`}
	step := p.OnModelResponse(state, chatmodel.ChatResponse{ToolCalls: []chatmodel.ToolCall{planCall}})
	if step.Kind != StepExecuteTools {
		t.Fatalf("expected ExecuteTools for submit_plan, got %+v", step)
	}

	step = p.OnToolResults(state, []chatmodel.ToolResult{
		{CallID: "c1", Name: ToolSubmitPlan, Status: chatmodel.ToolResultSuccess, Payload: `{"plan":"do X"}`},
	})
	if step.Kind != StepCallModel || step.ProviderKey != "planner" {
		t.Fatalf("expected CallModel on planner for evaluation prompt, got %+v", step)
	}

	evalCall := chatmodel.ToolCall{ID: "c2", Name: ToolSubmitEvaluation, Arguments: `{"score":0.9,"reasoning":"ok"}`}
	step = p.OnModelResponse(state, chatmodel.ChatResponse{ToolCalls: []chatmodel.ToolCall{evalCall}})
	if step.Kind != StepExecuteTools {
		t.Fatalf("expected ExecuteTools for submit_evaluation, got %+v", step)
	}

	step = p.OnToolResults(state, []chatmodel.ToolResult{
		{CallID: "c2", Name: ToolSubmitEvaluation, Status: chatmodel.ToolResultSuccess, Payload: `{"score":0.9,"reasoning":"ok"}`},
	})
	if step.Kind != StepDelegate {
		t.Fatalf("expected Delegate after score >= threshold, got %+v", step)
	}
	if step.Delegation.Goal != "do X" {
		t.Fatalf("unexpected delegation goal: %q", step.Delegation.Goal)
	}
	if step.Delegation.Provider != "executor" {
		t.Fatalf("expected delegation to pin the execution provider, got %q", step.Delegation.Provider)
	}

	final := p.OnDelegationResult(state, DelegationOutput{FinalResult: "did X"})
	if final.Kind != StepComplete || final.FinalResult != "did X" {
		t.Fatalf("expected Complete(did X), got %+v", final)
	}
}

func TestPlanExecuteRevisesBelowThreshold(t *testing.T) {
	p := NewPlanExecute("planner", "executor", "you plan things")
	state := session.New("do X")

	p.Initialize(state)
	p.OnModelResponse(state, chatmodel.ChatResponse{ToolCalls: []chatmodel.ToolCall{{ID: "c1", Name: ToolSubmitPlan, Arguments: `{"plan":"v1"}`}}})
	p.OnToolResults(state, []chatmodel.ToolResult{{CallID: "c1", Name: ToolSubmitPlan, Payload: `{"plan":"v1"}`}})

	p.OnModelResponse(state, chatmodel.ChatResponse{ToolCalls: []chatmodel.ToolCall{{ID: "c2", Name: ToolSubmitEvaluation, Arguments: `{"score":0.3,"reasoning":"weak"}`}}})
	step := p.OnToolResults(state, []chatmodel.ToolResult{{CallID: "c2", Name: ToolSubmitEvaluation, Payload: `{"score":0.3,"reasoning":"weak"}`}})

	if step.Kind != StepCallModel || step.ProviderKey != "planner" {
		t.Fatalf("expected revision CallModel on planner, got %+v", step)
	}
	if p.phase != phaseAwaitingPlanSubmit {
		t.Fatalf("expected phase back to awaiting plan submission, got %s", p.phase)
	}
}
