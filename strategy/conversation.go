package strategy

import (
	"strings"

	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

// Conversation wraps any inner Strategy to carry a persistent message
// list across user turns (spec.md §4.4), used for resumption
// (scenario 6): a session reopened by id is wrapped in Conversation with
// its loaded history, and the new user turn is appended before the
// inner strategy runs once.
type Conversation struct {
	inner   Strategy
	carried []chatmodel.ChatMessage
}

func NewConversation(inner Strategy, carried []chatmodel.ChatMessage) *Conversation {
	return &Conversation{inner: inner, carried: append([]chatmodel.ChatMessage{}, carried...)}
}

// specialCommand classifies the empty-input/exit/quit/new commands that
// Conversation intercepts before invoking the inner strategy.
type specialCommand int

const (
	commandNone specialCommand = iota
	commandEnd
	commandNewSession
)

func classifyInput(input string) specialCommand {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	switch trimmed {
	case "", "exit", "quit":
		return commandEnd
	case "new":
		return commandNewSession
	default:
		return commandNone
	}
}

// Initialize starts (or resumes) the wrapped conversation. On the very
// first turn (no carried history), the inner strategy builds the
// opening messages as usual, including its system prompt. On every
// later turn, Conversation itself appends the new user message to the
// carried history and calls CallModel directly — the inner strategy's
// own Initialize is not re-invoked, so its system message is not
// re-emitted (spec.md scenario 6: "the system prompt appears only
// once"). If the task is empty, "exit" or "quit", Initialize
// short-circuits to Complete without touching the inner strategy; if it
// is "new", the carried history is discarded and the turn proceeds as a
// first turn.
func (c *Conversation) Initialize(state *session.State) NextStep {
	switch classifyInput(state.Task) {
	case commandEnd:
		return Complete(c.carried, "")
	case commandNewSession:
		c.carried = nil
	}

	if len(c.carried) == 0 {
		step := c.inner.Initialize(state)
		if step.Kind == StepCallModel {
			c.carried = append([]chatmodel.ChatMessage{}, step.Messages...)
		}
		return step
	}

	c.carried = append(c.carried, chatmodel.ChatMessage{Role: chatmodel.RoleUser, Content: state.Task})
	state.Messages = append([]chatmodel.ChatMessage{}, c.carried...)
	return CallModel(c.carried)
}

func (c *Conversation) OnModelResponse(state *session.State, response chatmodel.ChatResponse) NextStep {
	step := c.inner.OnModelResponse(state, response)
	c.absorb(step)
	return step
}

func (c *Conversation) OnToolResults(state *session.State, results []chatmodel.ToolResult) NextStep {
	step := c.inner.OnToolResults(state, results)
	c.absorb(step)
	return step
}

// absorb updates the carried history once a step reports the session's
// final message list, so the next turn resumes from it.
func (c *Conversation) absorb(step NextStep) {
	if step.Kind == StepComplete {
		c.carried = step.FinalMessages
	}
}

func (c *Conversation) OnDelegationResult(state *session.State, output DelegationOutput) NextStep {
	step := c.inner.OnDelegationResult(state, output)
	if step.Kind == StepComplete {
		c.carried = step.FinalMessages
	}
	return step
}

// Carried exposes the accumulated history, e.g. for persisting between
// turns.
func (c *Conversation) Carried() []chatmodel.ChatMessage { return c.carried }
