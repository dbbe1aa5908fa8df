// Package agent implements C6: the orchestrator that owns the provider
// registry, the tool-server registry, a top-level strategy, and the
// current session state, and drives the main run loop described in
// the agent-core run loop. Grounded on an overall main.go wiring pattern (it
// owns the same collaborators) generalized from a TUI event loop to a
// synchronous run-to-completion call.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
	"github.com/volition-run/volition/strategy"
	"github.com/volition-run/volition/toolserver"
)

// DefaultIterationCap is the per-run model-call cap from spec.md §4.5.
const DefaultIterationCap = 20

// ToolExecutor is what the orchestrator needs from C2/C3's tool-server
// registry: the namespaced tool catalog and per-call dispatch. A
// *toolserver.Registry satisfies this; tests substitute a fake so a
// run can be driven without spawning real subprocesses.
type ToolExecutor interface {
	Catalog() ([]chatmodel.ToolDefinition, error)
	Call(ctx context.Context, call chatmodel.ToolCall) (chatmodel.ToolResult, error)
}

// Interaction is the injected user-interaction collaborator consulted
// when a run hits its iteration cap (spec.md §4.5 step 3). A nil
// Interaction means "no UI available": the run aborts with a cap-
// reached error.
type Interaction interface {
	// ExtendOrAbort asks whether to extend the iteration cap by one more
	// model call. Returning false aborts the run.
	ExtendOrAbort(ctx context.Context, state *session.State, iterations int) bool
}

// StrategyFactory constructs a nested strategy by kind, for Delegate
// steps (spec.md §4.4's Delegate variant names a strategy_kind the
// orchestrator must be able to build).
type StrategyFactory func(kind string) (strategy.Strategy, error)

// Orchestrator is the C6 collaborator.
type Orchestrator struct {
	Providers    *chatmodel.Registry
	ToolServers  ToolExecutor
	Strategies   StrategyFactory
	Interaction  Interaction
	IterationCap int
	Logger       *zap.Logger

	// Compactor and CompactionThreshold implement the context/token-budget
	// compaction described in SPEC_FULL.md §10. A nil Compactor or a
	// non-positive threshold disables compaction entirely (the default).
	Compactor           session.Compactor
	CompactionThreshold int64
}

// CapReachedError is a SessionError kind (spec.md §7): the run exhausted
// its iteration cap without an available (or accepting) Interaction.
type CapReachedError struct {
	Iterations int
}

func (e *CapReachedError) Error() string {
	return fmt.Sprintf("iteration cap reached after %d model calls", e.Iterations)
}

// Result is the orchestrator's terminal output: either a final result
// string or an error, always paired with the session state reached so
// far (spec.md §7: "the message history is preserved, not cleared").
type Result struct {
	FinalResult string
	State       *session.State
	Err         error
}

// Run drives strat to completion against state (spec.md §4.5's main
// loop). It is reentrant for nested Delegate loops: the caller
// constructs a fresh Orchestrator (or reuses this one — Providers and
// ToolServers are read-only during a run) with a new strategy and a
// fresh session.New state for the nested goal.
func (o *Orchestrator) Run(ctx context.Context, strat strategy.Strategy, state *session.State) Result {
	if o.IterationCap <= 0 {
		o.IterationCap = DefaultIterationCap
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	iterations := 0
	step := strat.Initialize(state)

	for {
		select {
		case <-ctx.Done():
			return Result{State: state, Err: ctx.Err()}
		default:
		}

		switch step.Kind {
		case strategy.StepCallModel:
			if err := state.Validate(); err != nil {
				return Result{State: state, Err: err}
			}

			iterations++
			if iterations > o.IterationCap {
				if o.Interaction == nil || !o.Interaction.ExtendOrAbort(ctx, state, iterations) {
					return Result{State: state, Err: &CapReachedError{Iterations: iterations}}
				}
			}

			state.Messages = step.Messages
			response, err := o.callModel(ctx, step)
			if err != nil {
				return Result{State: state, Err: err}
			}

			state.AppendAssistant(response)
			logger.Debug("model responded", zap.Int("tool_calls", len(response.ToolCalls)))

			if o.Compactor != nil && o.CompactionThreshold > 0 &&
				len(state.PendingToolCalls) == 0 &&
				response.Usage != nil && response.Usage.InputTokens >= o.CompactionThreshold {
				before := len(state.Messages)
				state.Messages = o.Compactor.Compact(state.Messages)
				if len(state.Messages) != before {
					logger.Debug("compacted session history", zap.Int("before", before), zap.Int("after", len(state.Messages)))
				}
			}

			step = strat.OnModelResponse(state, response)

		case strategy.StepExecuteTools:
			if !sameCalls(step.Calls, state.PendingToolCalls) {
				return Result{State: state, Err: &strategy.StrategyError{Reason: "ExecuteTools calls do not match the pending tool calls of the last assistant message"}}
			}

			results, err := o.executeTools(ctx, step.Calls)
			if err != nil {
				return Result{State: state, Err: err}
			}

			state.AppendToolResults(results)
			step = strat.OnToolResults(state, results)

		case strategy.StepDelegate:
			output, err := o.delegate(ctx, step.Delegation, state)
			if err != nil {
				return Result{State: state, Err: err}
			}
			step = strat.OnDelegationResult(state, output)

		case strategy.StepComplete:
			state.Terminal = true
			if step.FinalMessages != nil {
				state.Messages = step.FinalMessages
			}
			return Result{FinalResult: step.FinalResult, State: state}

		case strategy.StepFail:
			return Result{State: state, Err: step.Err}

		default:
			return Result{State: state, Err: fmt.Errorf("unknown NextStep kind %q", step.Kind)}
		}
	}
}

func (o *Orchestrator) callModel(ctx context.Context, step strategy.NextStep) (chatmodel.ChatResponse, error) {
	model, err := o.Providers.Get(step.ProviderKey)
	if err != nil {
		return chatmodel.ChatResponse{}, err
	}

	tools := step.Tools
	if tools == nil {
		tools, err = o.ToolServers.Catalog()
		if err != nil {
			return chatmodel.ChatResponse{}, err
		}
	}

	return model.Complete(ctx, chatmodel.ChatRequest{Messages: step.Messages, Tools: tools})
}

// executeTools runs every call concurrently via errgroup but writes
// each result into its declared-order slot, so the appended tool
// messages always match call order regardless of completion order
// (spec.md §5, scenario 3).
func (o *Orchestrator) executeTools(ctx context.Context, calls []chatmodel.ToolCall) ([]chatmodel.ToolResult, error) {
	results := make([]chatmodel.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			if result, ok := handleStrategyInternalTool(call); ok {
				results[i] = result
				return nil
			}

			result, err := o.ToolServers.Call(gctx, call)
			if err != nil {
				var tce *toolserver.ToolCallError
				if errors.As(err, &tce) {
					results[i] = chatmodel.ToolResult{CallID: call.ID, Name: call.Name, Status: chatmodel.ToolResultFailure, Payload: tce.Error()}
					return nil
				}
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) delegate(ctx context.Context, input *strategy.DelegationInput, parent *session.State) (strategy.DelegationOutput, error) {
	if o.Strategies == nil {
		return strategy.DelegationOutput{}, fmt.Errorf("orchestrator has no strategy factory configured for delegation")
	}

	nested, err := o.Strategies(input.StrategyKind)
	if err != nil {
		return strategy.DelegationOutput{}, err
	}
	nested = strategy.WithProvider(nested, input.Provider)

	nestedState := session.New(input.Goal)
	nestedState.Messages = append([]chatmodel.ChatMessage{}, input.InitialMessages...)

	result := o.Run(ctx, nested, nestedState)
	if result.Err != nil {
		return strategy.DelegationOutput{}, result.Err
	}

	return strategy.DelegationOutput{FinalMessages: result.State.Messages, FinalResult: result.FinalResult}, nil
}

// handleStrategyInternalTool resolves submit_plan/submit_evaluation
// calls locally: they are not declared by any tool-server, they are
// PlanExecute's own control-flow tools (spec.md §4.4), so the
// orchestrator echoes the call's arguments back as the result payload
// rather than routing them through the tool-server registry.
func handleStrategyInternalTool(call chatmodel.ToolCall) (chatmodel.ToolResult, bool) {
	switch call.Name {
	case strategy.ToolSubmitPlan, strategy.ToolSubmitEvaluation:
		return chatmodel.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Status:  chatmodel.ToolResultSuccess,
			Payload: call.Arguments,
		}, true
	default:
		return chatmodel.ToolResult{}, false
	}
}

func sameCalls(proposed, pending []chatmodel.ToolCall) bool {
	if len(proposed) != len(pending) {
		return false
	}
	want := make(map[string]bool, len(pending))
	for _, c := range pending {
		want[c.ID] = true
	}
	for _, c := range proposed {
		if !want[c.ID] {
			return false
		}
	}
	return true
}
