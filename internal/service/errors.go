package service

import "errors"

// Validation errors: malformed or out-of-range input, surfaced immediately
// with no mutation performed. Never retried.
var (
	ErrNoParticipants        = errors.New("participant set is empty")
	ErrWeightsNotNormalized  = errors.New("weights do not sum to 1.0")
	ErrMissingWeight         = errors.New("participant has no weight")
	ErrNoSubmissions         = errors.New("belief has no submissions")
	ErrProbabilityOutOfRange = errors.New("probability outside [0,1]")
)

// State-conflict errors: the request is well-formed but the system is not in
// a state where it applies. Surfaced as a no-op result, never retried.
var (
	ErrBeliefNotActive          = errors.New("belief is not active")
	ErrInsufficientParticipants = errors.New("belief has fewer than two participants")
	ErrAlreadyRedistributed     = errors.New("redistribution already applied for this epoch")
)

// IsValidation reports whether err is a malformed-input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoParticipants) ||
		errors.Is(err, ErrWeightsNotNormalized) ||
		errors.Is(err, ErrMissingWeight) ||
		errors.Is(err, ErrNoSubmissions) ||
		errors.Is(err, ErrProbabilityOutOfRange)
}

// IsStateConflict reports whether err is a wrong-state condition that should
// surface as a no-op rather than a failure.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrBeliefNotActive) ||
		errors.Is(err, ErrInsufficientParticipants) ||
		errors.Is(err, ErrAlreadyRedistributed)
}
