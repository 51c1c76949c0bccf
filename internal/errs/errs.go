// Package errs defines the closed taxonomy of error kinds shared across the
// core's components, so callers can test provenance with errors.Is
// regardless of which package raised the error.
package errs

import "errors"

// Kind is one of the fixed error categories the core recognises.
type Kind struct {
	name string
}

func (k Kind) Error() string { return k.name }

var (
	UnknownTool           = Kind{"unknown_tool"}
	UnknownModel          = Kind{"unknown_model"}
	InvalidArgs           = Kind{"invalid_args"}
	Unauthorised          = Kind{"unauthorised"}
	Cancelled             = Kind{"cancelled"}
	Timeout               = Kind{"timeout"}
	TransientModelFailure = Kind{"transient_model_failure"}
	AllModelsFailed       = Kind{"all_models_failed"}
	CycleDetected         = Kind{"cycle_detected"}
	ManifestInvalid       = Kind{"manifest_invalid"}
	CorruptedTrace        = Kind{"corrupted_trace"}
	BufferUnderflow       = Kind{"buffer_underflow"}
)

// Wrap attaches a Kind to an underlying cause so errors.Is(err, Kind) and the
// original error text both survive.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrapped{kind: kind, cause: cause}
}

type wrapped struct {
	kind  Kind
	cause error
}

func (w *wrapped) Error() string { return w.kind.name + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() error { return w.cause }
func (w *wrapped) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == w.kind
}

// Of reports the Kind carried by err, if any.
func Of(err error) (Kind, bool) {
	if err == nil {
		return Kind{}, false
	}
	var w *wrapped
	if errors.As(err, &w) {
		return w.kind, true
	}
	if k, ok := err.(Kind); ok {
		return k, true
	}
	return Kind{}, false
}
