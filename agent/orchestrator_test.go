package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
	"github.com/volition-run/volition/strategy"
	"github.com/volition-run/volition/toolserver"
)

// scriptedModel returns one scripted response per call, in order.
type scriptedModel struct {
	responses []chatmodel.ChatResponse
	errs      []error
	calls     int
}

func (m *scriptedModel) Complete(ctx context.Context, req chatmodel.ChatRequest) (chatmodel.ChatResponse, error) {
	i := m.calls
	m.calls++
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], err
	}
	return chatmodel.ChatResponse{}, fmt.Errorf("scriptedModel: no response scripted for call %d", i)
}

// fakeToolExecutor is a ToolExecutor test double that never spawns a
// real subprocess — it answers every call from a fixed payload map
// keyed by tool name.
type fakeToolExecutor struct {
	tools    []chatmodel.ToolDefinition
	payloads map[string]string
}

func (f *fakeToolExecutor) Catalog() ([]chatmodel.ToolDefinition, error) {
	return f.tools, nil
}

func (f *fakeToolExecutor) Call(ctx context.Context, call chatmodel.ToolCall) (chatmodel.ToolResult, error) {
	payload, ok := f.payloads[call.Name]
	if !ok {
		return chatmodel.ToolResult{}, &toolserver.ToolCallError{CallID: call.ID, Name: call.Name, Kind: toolserver.ToolCallErrorUnknownTool, Err: fmt.Errorf("no such tool")}
	}
	return chatmodel.ToolResult{CallID: call.ID, Name: call.Name, Status: chatmodel.ToolResultSuccess, Payload: payload}, nil
}

func newEmptyToolRegistry(t *testing.T) ToolExecutor {
	t.Helper()
	return &fakeToolExecutor{}
}

// Scenario 1: single-turn, no tools.
func TestScenarioSingleTurnNoTools(t *testing.T) {
	model := &scriptedModel{responses: []chatmodel.ChatResponse{{Content: "Hello."}}}
	providers, err := chatmodel.NewRegistry(map[string]chatmodel.Model{"p": model}, "p")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	orch := &Orchestrator{Providers: providers, ToolServers: newEmptyToolRegistry(t)}
	state := session.New("Say hello.")
	strat := strategy.NewCompleteTask("you are an agent")

	result := orch.Run(context.Background(), strat, state)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.FinalResult != "Hello." {
		t.Fatalf("expected %q, got %q", "Hello.", result.FinalResult)
	}
	if len(state.Messages) != 3 {
		t.Fatalf("expected history length 3 (system,user,assistant), got %d: %+v", len(state.Messages), state.Messages)
	}
}

// Scenario 2: tool call round-trip.
func TestScenarioToolCallRoundTrip(t *testing.T) {
	model := &scriptedModel{responses: []chatmodel.ChatResponse{
		{ToolCalls: []chatmodel.ToolCall{{ID: "c1", Name: "fs.read_file", Arguments: `{"path":"a.txt"}`}}},
		{Content: "It says: file contents"},
	}}
	providers, _ := chatmodel.NewRegistry(map[string]chatmodel.Model{"p": model}, "p")

	orch := &Orchestrator{
		Providers:   providers,
		ToolServers: &fakeToolExecutor{payloads: map[string]string{"fs.read_file": "file contents"}},
	}

	state := session.New("read a.txt")
	strat := strategy.NewCompleteTask("sys")

	result := orch.Run(context.Background(), strat, state)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.FinalResult != "It says: file contents" {
		t.Fatalf("unexpected final result: %q", result.FinalResult)
	}

	roles := rolesOf(state.Messages)
	want := []chatmodel.Role{chatmodel.RoleSystem, chatmodel.RoleUser, chatmodel.RoleAssistant, chatmodel.RoleTool, chatmodel.RoleAssistant}
	if !rolesEqual(roles, want) {
		t.Fatalf("expected roles %v, got %v", want, roles)
	}
	if state.Messages[3].ToolCallID != "c1" {
		t.Fatalf("expected tool message to correlate to c1, got %q", state.Messages[3].ToolCallID)
	}
}

func rolesOf(messages []chatmodel.ChatMessage) []chatmodel.Role {
	roles := make([]chatmodel.Role, len(messages))
	for i, m := range messages {
		roles[i] = m.Role
	}
	return roles
}

func rolesEqual(a, b []chatmodel.Role) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// P5: ExecuteTools calls mismatched against pending calls must fail
// without executing any tool.
func TestP5MismatchedExecuteToolsFails(t *testing.T) {
	model := &scriptedModel{responses: []chatmodel.ChatResponse{
		{ToolCalls: []chatmodel.ToolCall{{ID: "c1", Name: "t"}}},
	}}
	providers, _ := chatmodel.NewRegistry(map[string]chatmodel.Model{"p": model}, "p")

	orch := &Orchestrator{Providers: providers, ToolServers: newEmptyToolRegistry(t)}
	state := session.New("goal")
	strat := &mismatchingStrategy{}

	result := orch.Run(context.Background(), strat, state)
	var se *strategy.StrategyError
	if !errors.As(result.Err, &se) {
		t.Fatalf("expected StrategyError, got %v", result.Err)
	}
}

type mismatchingStrategy struct{}

func (m *mismatchingStrategy) Initialize(state *session.State) strategy.NextStep {
	return strategy.CallModel([]chatmodel.ChatMessage{{Role: chatmodel.RoleUser, Content: state.Task}})
}

func (m *mismatchingStrategy) OnModelResponse(state *session.State, response chatmodel.ChatResponse) strategy.NextStep {
	return strategy.ExecuteTools([]chatmodel.ToolCall{{ID: "does-not-match", Name: "t"}})
}

func (m *mismatchingStrategy) OnToolResults(state *session.State, results []chatmodel.ToolResult) strategy.NextStep {
	return strategy.Fail(fmt.Errorf("unreachable"))
}

func (m *mismatchingStrategy) OnDelegationResult(state *session.State, output strategy.DelegationOutput) strategy.NextStep {
	return strategy.Fail(fmt.Errorf("unreachable"))
}

// Scenario 5: provider 5xx then success.
func TestScenarioProviderRetriesThenSucceeds(t *testing.T) {
	calls := 0
	inner := chatmodel.Model(retryingModel(func() (chatmodel.ChatResponse, error) {
		calls++
		if calls == 1 {
			return chatmodel.ChatResponse{}, &chatmodel.ProviderError{Provider: "p", Kind: chatmodel.ProviderErrorNetwork, Err: fmt.Errorf("503")}
		}
		return chatmodel.ChatResponse{Content: "done"}, nil
	}))
	wrapped := chatmodel.WithRetry(inner, 2, nil)

	providers, _ := chatmodel.NewRegistry(map[string]chatmodel.Model{"p": wrapped}, "p")
	orch := &Orchestrator{Providers: providers, ToolServers: newEmptyToolRegistry(t)}

	state := session.New("goal")
	strat := strategy.NewCompleteTask("sys")

	result := orch.Run(context.Background(), strat, state)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 model invocations, got %d", calls)
	}
}

type retryingModel func() (chatmodel.ChatResponse, error)

func (f retryingModel) Complete(ctx context.Context, req chatmodel.ChatRequest) (chatmodel.ChatResponse, error) {
	return f()
}

// P4: iteration cap with no Interaction aborts with a cap-reached error.
func TestP4IterationCapReached(t *testing.T) {
	model := &neverCompleteModel{}
	providers, _ := chatmodel.NewRegistry(map[string]chatmodel.Model{"p": model}, "p")

	orch := &Orchestrator{Providers: providers, ToolServers: newEmptyToolRegistry(t), IterationCap: 3}
	state := session.New("goal")
	strat := &alwaysCallModelStrategy{}

	result := orch.Run(context.Background(), strat, state)

	var capErr *CapReachedError
	if !errors.As(result.Err, &capErr) {
		t.Fatalf("expected CapReachedError, got %v", result.Err)
	}
	if model.calls > 4 {
		t.Fatalf("expected run to terminate within cap+1 model calls, got %d", model.calls)
	}
}

type neverCompleteModel struct{ calls int }

func (m *neverCompleteModel) Complete(ctx context.Context, req chatmodel.ChatRequest) (chatmodel.ChatResponse, error) {
	m.calls++
	return chatmodel.ChatResponse{Content: "still working"}, nil
}

type alwaysCallModelStrategy struct{}

func (a *alwaysCallModelStrategy) Initialize(state *session.State) strategy.NextStep {
	return strategy.CallModel([]chatmodel.ChatMessage{{Role: chatmodel.RoleUser, Content: state.Task}})
}

func (a *alwaysCallModelStrategy) OnModelResponse(state *session.State, response chatmodel.ChatResponse) strategy.NextStep {
	return strategy.CallModel(state.Messages)
}

func (a *alwaysCallModelStrategy) OnToolResults(state *session.State, results []chatmodel.ToolResult) strategy.NextStep {
	return strategy.CallModel(state.Messages)
}

func (a *alwaysCallModelStrategy) OnDelegationResult(state *session.State, output strategy.DelegationOutput) strategy.NextStep {
	return strategy.Fail(fmt.Errorf("unreachable"))
}

// Scenario 3: two concurrent tool calls in one assistant turn must be
// appended in declared-call order regardless of which resolves first.
func TestScenarioConcurrentToolCallsPreserveOrder(t *testing.T) {
	model := &scriptedModel{responses: []chatmodel.ChatResponse{
		{ToolCalls: []chatmodel.ToolCall{{ID: "a", Name: "s1.t1"}, {ID: "b", Name: "s2.t2"}}},
		{Content: "both done"},
	}}
	providers, _ := chatmodel.NewRegistry(map[string]chatmodel.Model{"p": model}, "p")

	orch := &Orchestrator{
		Providers: providers,
		ToolServers: &fakeToolExecutor{payloads: map[string]string{
			"s1.t1": "result-1",
			"s2.t2": "result-2",
		}},
	}

	state := session.New("run two tools")
	strat := strategy.NewCompleteTask("sys")

	result := orch.Run(context.Background(), strat, state)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}

	var toolMsgs []chatmodel.ChatMessage
	for _, m := range state.Messages {
		if m.Role == chatmodel.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 || toolMsgs[0].ToolCallID != "a" || toolMsgs[1].ToolCallID != "b" {
		t.Fatalf("expected tool messages in call order a,b; got %+v", toolMsgs)
	}
}

// Scenario 4: PlanExecute delegation to a CompleteTask sub-strategy.
func TestScenarioPlanExecuteDelegation(t *testing.T) {
	planner := &scriptedModel{responses: []chatmodel.ChatResponse{
		{ToolCalls: []chatmodel.ToolCall{{ID: "p1", Name: strategy.ToolSubmitPlan, Arguments: `{"plan":"do X"}`}}},
		{ToolCalls: []chatmodel.ToolCall{{ID: "p2", Name: strategy.ToolSubmitEvaluation, Arguments: `{"score":0.9,"reasoning":"ok"}`}}},
	}}
	executor := &scriptedModel{responses: []chatmodel.ChatResponse{
		{Content: "did X"},
	}}

	providers, err := chatmodel.NewRegistry(map[string]chatmodel.Model{"planner": planner, "executor": executor}, "planner")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	strategies := func(kind string) (strategy.Strategy, error) {
		if kind != "complete_task" {
			return nil, fmt.Errorf("unknown strategy kind %q", kind)
		}
		return strategy.NewCompleteTask("sys"), nil
	}

	orch := &Orchestrator{
		Providers:   providers,
		ToolServers: newEmptyToolRegistry(t),
		Strategies:  strategies,
	}

	state := session.New("do X")
	strat := strategy.NewPlanExecute("planner", "executor", "you plan")

	result := orch.Run(context.Background(), strat, state)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.FinalResult != "did X" {
		t.Fatalf("expected final result %q, got %q", "did X", result.FinalResult)
	}
	if planner.calls != 2 {
		t.Fatalf("expected planner used for exactly 2 CallModel steps, got %d", planner.calls)
	}
	if executor.calls < 1 {
		t.Fatalf("expected executor used for at least 1 CallModel step, got %d", executor.calls)
	}
}
