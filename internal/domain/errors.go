package domain

import "errors"

// Validation and lookup failures surface as one of these sentinel errors,
// wrapped with context via fmt.Errorf("...: %w", Err...). Callers branch with
// errors.Is.
var (
	// ErrInvalidConfig marks bad model or chunking parameters, rejected
	// before any write is attempted.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidIdentifier marks a derived resource name that violates the
	// store's naming rules.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrModelNotFound marks a lookup of an unregistered model.
	ErrModelNotFound = errors.New("model not found")
	// ErrCollectionModelMismatch marks a collection opened under a different
	// model than it was created with.
	ErrCollectionModelMismatch = errors.New("collection model mismatch")
	// ErrDocumentNotFound marks a document with no stored chunks.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmptyDocument marks an ingestion attempt with no effective content.
	ErrEmptyDocument = errors.New("empty document")
	// ErrInvalidInput marks an ambiguous or missing content source.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized marks failed authentication.
	ErrUnauthorized = errors.New("unauthorized")
)

// TransientError wraps a network or 5xx failure from the store or the
// embedding provider. Provisioning steps are idempotent, so callers may
// retry; the core itself never does.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Op + ": transient store error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is caller-retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
