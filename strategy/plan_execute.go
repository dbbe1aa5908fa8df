package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

// planPhase is PlanExecute's internal state machine (spec.md §4.4).
type planPhase string

const (
	phaseNeedsPlan           planPhase = "needs_plan"
	phaseAwaitingPlanSubmit  planPhase = "awaiting_plan_submission"
	phaseAwaitingEvaluation  planPhase = "awaiting_evaluation"
	phaseExecuting          planPhase = "executing"
	phaseRevising           planPhase = "revising"
	phaseDone               planPhase = "done"
)

const (
	ToolSubmitPlan       = "submit_plan"
	ToolSubmitEvaluation = "submit_evaluation"

	// DefaultEvaluationThreshold is the score a plan must meet or exceed
	// to advance from AwaitingEvaluation to Executing.
	DefaultEvaluationThreshold = 0.7
)

var submitPlanTool = chatmodel.ToolDefinition{
	Name:        ToolSubmitPlan,
	Description: "Submit the proposed plan for this task.",
	Parameters: map[string]chatmodel.Parameter{
		"plan": {Type: chatmodel.ParameterTypeString, Description: "the plan, in prose"},
	},
	Required: []string{"plan"},
}

var submitEvaluationTool = chatmodel.ToolDefinition{
	Name:        ToolSubmitEvaluation,
	Description: "Submit an evaluation of the current plan.",
	Parameters: map[string]chatmodel.Parameter{
		"score":     {Type: chatmodel.ParameterTypeNumber, Description: "quality score in [0,1]"},
		"reasoning": {Type: chatmodel.ParameterTypeString, Description: "why this score"},
	},
	Required: []string{"score", "reasoning"},
}

// PlanExecute is the built-in two-phase strategy (spec.md §4.4): a
// planning model proposes and self-evaluates a plan; once the
// evaluation clears a threshold, the plan and goal are delegated to a
// CompleteTask sub-strategy run under the execution provider.
type PlanExecute struct {
	PlanningProvider  string
	ExecutionProvider string
	SystemPrompt      string
	Threshold         float64

	phase    planPhase
	plan     string
	revision int
}

func NewPlanExecute(planningProvider, executionProvider, systemPrompt string) *PlanExecute {
	return &PlanExecute{
		PlanningProvider:  planningProvider,
		ExecutionProvider: executionProvider,
		SystemPrompt:      systemPrompt,
		Threshold:         DefaultEvaluationThreshold,
		phase:             phaseNeedsPlan,
	}
}

func (p *PlanExecute) Initialize(state *session.State) NextStep {
	p.phase = phaseAwaitingPlanSubmit
	messages := []chatmodel.ChatMessage{
		{Role: chatmodel.RoleSystem, Content: p.SystemPrompt},
		{Role: chatmodel.RoleUser, Content: fmt.Sprintf("Goal: %s\n\nPropose a plan and submit it with %s.", state.Task, ToolSubmitPlan)},
	}
	return NextStep{Kind: StepCallModel, Messages: messages, ProviderKey: p.PlanningProvider, Tools: p.ToolsForPhase()}
}

func (p *PlanExecute) OnModelResponse(state *session.State, response chatmodel.ChatResponse) NextStep {
	switch p.phase {
	case phaseAwaitingPlanSubmit:
		call := findCall(response.ToolCalls, ToolSubmitPlan)
		if call == nil {
			return Fail(&StrategyError{Reason: fmt.Sprintf("expected %s during %s, model returned none", ToolSubmitPlan, p.phase)})
		}
		return ExecuteTools(response.ToolCalls)

	case phaseAwaitingEvaluation:
		call := findCall(response.ToolCalls, ToolSubmitEvaluation)
		if call == nil {
			return Fail(&StrategyError{Reason: fmt.Sprintf("expected %s during %s, model returned none", ToolSubmitEvaluation, p.phase)})
		}
		return ExecuteTools(response.ToolCalls)

	default:
		return Fail(&StrategyError{Reason: fmt.Sprintf("unexpected model response during phase %s", p.phase)})
	}
}

func (p *PlanExecute) OnToolResults(state *session.State, results []chatmodel.ToolResult) NextStep {
	switch p.phase {
	case phaseAwaitingPlanSubmit:
		plan, err := extractPlan(results)
		if err != nil {
			return Fail(&StrategyError{Reason: err.Error()})
		}
		p.plan = plan
		p.phase = phaseAwaitingEvaluation

		messages := append(append([]chatmodel.ChatMessage{}, state.Messages...), chatmodel.ChatMessage{
			Role:    chatmodel.RoleUser,
			Content: fmt.Sprintf("Evaluate this plan and submit your evaluation with %s.", ToolSubmitEvaluation),
		})
		return NextStep{Kind: StepCallModel, Messages: messages, ProviderKey: p.PlanningProvider, Tools: p.ToolsForPhase()}

	case phaseAwaitingEvaluation:
		score, _, err := extractEvaluation(results)
		if err != nil {
			return Fail(&StrategyError{Reason: err.Error()})
		}

		if score >= p.Threshold {
			p.phase = phaseExecuting
			return Delegate(DelegationInput{
				StrategyKind: "complete_task",
				Goal:         state.Task,
				InitialMessages: []chatmodel.ChatMessage{
					{Role: chatmodel.RoleUser, Content: fmt.Sprintf("Goal: %s\n\nFollow this plan:\n%s", state.Task, p.plan)},
				},
				Provider: p.ExecutionProvider,
			})
		}

		p.phase = phaseRevising
		p.revision++
		messages := append(append([]chatmodel.ChatMessage{}, state.Messages...), chatmodel.ChatMessage{
			Role:    chatmodel.RoleUser,
			Content: fmt.Sprintf("Score was below threshold (%.2f < %.2f). Revise the plan and submit it again with %s.", score, p.Threshold, ToolSubmitPlan),
		})
		p.phase = phaseAwaitingPlanSubmit
		return NextStep{Kind: StepCallModel, Messages: messages, ProviderKey: p.PlanningProvider, Tools: p.ToolsForPhase()}

	default:
		return Fail(&StrategyError{Reason: fmt.Sprintf("unexpected tool results during phase %s", p.phase)})
	}
}

func (p *PlanExecute) OnDelegationResult(state *session.State, output DelegationOutput) NextStep {
	if p.phase != phaseExecuting {
		return Fail(&StrategyError{Reason: fmt.Sprintf("unexpected delegation result during phase %s", p.phase)})
	}
	p.phase = phaseDone
	return Complete(output.FinalMessages, output.FinalResult)
}

// ToolsForPhase returns the tool catalog the orchestrator should offer
// the model for the current phase — only submit_plan or
// submit_evaluation are ever exposed, never both, and never the
// underlying tool-server catalog (spec.md §4.4 says PlanExecute's model
// turns are constrained to these two tools).
func (p *PlanExecute) ToolsForPhase() []chatmodel.ToolDefinition {
	switch p.phase {
	case phaseAwaitingPlanSubmit:
		return []chatmodel.ToolDefinition{submitPlanTool}
	case phaseAwaitingEvaluation:
		return []chatmodel.ToolDefinition{submitEvaluationTool}
	default:
		return nil
	}
}

func findCall(calls []chatmodel.ToolCall, name string) *chatmodel.ToolCall {
	for i := range calls {
		if calls[i].Name == name {
			return &calls[i]
		}
	}
	return nil
}

func extractPlan(results []chatmodel.ToolResult) (string, error) {
	for _, r := range results {
		if r.Name != ToolSubmitPlan {
			continue
		}
		var args struct {
			Plan string `json:"plan"`
		}
		if err := json.Unmarshal([]byte(r.Payload), &args); err == nil && args.Plan != "" {
			return args.Plan, nil
		}
		return r.Payload, nil
	}
	return "", fmt.Errorf("no %s result found", ToolSubmitPlan)
}

func extractEvaluation(results []chatmodel.ToolResult) (float64, string, error) {
	for _, r := range results {
		if r.Name != ToolSubmitEvaluation {
			continue
		}
		var args struct {
			Score     float64 `json:"score"`
			Reasoning string  `json:"reasoning"`
		}
		if err := json.Unmarshal([]byte(r.Payload), &args); err != nil {
			return 0, "", fmt.Errorf("parsing %s payload: %w", ToolSubmitEvaluation, err)
		}
		return args.Score, args.Reasoning, nil
	}
	return 0, "", fmt.Errorf("no %s result found", ToolSubmitEvaluation)
}
