package strategy

import "errors"

// StrategyError is the error kind for invariant violations by a
// Strategy implementation (spec.md §7): e.g. a strategy naming
// ExecuteTools(calls) that does not match the last assistant message's
// pending tool calls.
type StrategyError struct {
	Reason string
}

func (e *StrategyError) Error() string { return "strategy invariant violated: " + e.Reason }

var errUnreachableDelegation = errors.New("on_delegation_result is unreachable for this strategy")
