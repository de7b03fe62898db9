package suggest

import "errors"

var (
	// ErrNoModel indicates engine construction without a model definition.
	ErrNoModel = errors.New("no model specified")

	// ErrBadModel indicates a model definition that failed verification.
	ErrBadModel = errors.New("invalid model definition")

	// ErrNoPreconditions indicates a model without triggering preconditions.
	ErrNoPreconditions = errors.New("no triggering preconditions specified")

	// ErrRuleCompile indicates a rule pattern that failed to compile. No
	// partial rule sets: any failure aborts initialization.
	ErrRuleCompile = errors.New("rule pattern compilation failed")

	// ErrNoMessages indicates a request whose clamped history selects no
	// messages.
	ErrNoMessages = errors.New("no messages selected for suggestion")

	// ErrRuleMatch indicates a matcher error or a failed capturing-group
	// extraction during the rule pass; the request's actions are discarded.
	ErrRuleMatch = errors.New("rule matching failed")

	// ErrRanking indicates the ranker failed; all actions are discarded.
	ErrRanking = errors.New("ranking failed")
)
