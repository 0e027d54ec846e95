package contract

import "errors"

// Sentinel errors for the contract's error taxonomy. Operations wrap these
// with fmt.Errorf("...: %w", ...) so callers and tests can match with
// errors.Is while keeping descriptive messages.
var (
	// Input-validation errors: rejected before any state change or audit write.
	ErrInvalidPatient   = errors.New("invalid patient identity")
	ErrInvalidRequester = errors.New("invalid requester identity")
	ErrInvalidDataType  = errors.New("invalid data type")
	ErrInvalidVersion   = errors.New("invalid data version")
	ErrInvalidDuration  = errors.New("invalid consent duration")

	// Not-found errors: a normal negative result for read-only checks, a
	// propagated failure for retrieval paths.
	ErrRecordNotFound = errors.New("data record not found")

	// Authorization errors raised by the role gate before any state change.
	ErrNotAuthorized = errors.New("caller not authorized")

	// Registration conflicts.
	ErrAlreadyRegistered = errors.New("identity already registered")
)
