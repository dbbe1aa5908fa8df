package strategy

import (
	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/session"
)

// providerOverride pins every CallModel step a wrapped Strategy emits to
// a fixed provider, regardless of what ProviderKey that strategy itself
// chose. Used by delegation (spec.md §4.4 Delegate variant, P7) so a
// delegating strategy's provider choice for its delegate's scope
// actually takes effect, rather than the delegate falling back to the
// registry default.
type providerOverride struct {
	inner    Strategy
	provider string
}

// WithProvider wraps s so every CallModel step it returns uses
// provider. An empty provider returns s unwrapped.
func WithProvider(s Strategy, provider string) Strategy {
	if provider == "" {
		return s
	}
	return &providerOverride{inner: s, provider: provider}
}

func (p *providerOverride) pin(step NextStep) NextStep {
	if step.Kind == StepCallModel {
		step.ProviderKey = p.provider
	}
	return step
}

func (p *providerOverride) Initialize(state *session.State) NextStep {
	return p.pin(p.inner.Initialize(state))
}

func (p *providerOverride) OnModelResponse(state *session.State, response chatmodel.ChatResponse) NextStep {
	return p.pin(p.inner.OnModelResponse(state, response))
}

func (p *providerOverride) OnToolResults(state *session.State, results []chatmodel.ToolResult) NextStep {
	return p.pin(p.inner.OnToolResults(state, results))
}

func (p *providerOverride) OnDelegationResult(state *session.State, output DelegationOutput) NextStep {
	return p.pin(p.inner.OnDelegationResult(state, output))
}
