package kgextract

import "errors"

// ErrRetriesExhausted is returned when the create-request retry budget is
// spent without a successful POST.
var ErrRetriesExhausted = errors.New("kgextract: retries exhausted")

// ErrPollBudgetExceeded is returned when a background job does not reach a
// terminal status within the configured polling budget.
var ErrPollBudgetExceeded = errors.New("kgextract: polling budget exceeded")

// ErrTerminalResponse is returned when the provider reports a terminal
// failed/cancelled status.
var ErrTerminalResponse = errors.New("kgextract: terminal response status")

// errNoStructuredOutput is declared but no code path returns it:
// extractStructuredOutput reports a miss with a bool, and callers see a
// type-default value and a logged warning instead of an error.
var errNoStructuredOutput = errors.New("kgextract: no parsable structured output in payload")
