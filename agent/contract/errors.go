package contract

import "errors"

var (
	// ErrValidationPending rejects a new turn while a diagnostic result is
	// awaiting human confirmation.
	ErrValidationPending = errors.New("a pending validation must be resolved first")

	// ErrNoPendingValidation rejects a validation submission when nothing
	// is held for this session.
	ErrNoPendingValidation = errors.New("no validation is pending")

	// ErrMalformedInput marks an empty or undecodable upload.
	ErrMalformedInput = errors.New("malformed input")

	// ErrAmbiguousModality marks an image whose modality could not be
	// determined confidently. Recovered by routing to the conversation
	// agent, never surfaced to the caller.
	ErrAmbiguousModality = errors.New("image modality is ambiguous")

	// ErrAgentExecution marks a downstream agent failure.
	ErrAgentExecution = errors.New("agent execution failed")

	// ErrValidation marks invalid request arguments.
	ErrValidation = errors.New("validation failed")
)
