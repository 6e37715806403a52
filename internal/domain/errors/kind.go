package errors

import "errors"

// Kind is the closed error taxonomy surfaced to the Mini-App. It is decided
// from the error value, never from a localized message.
type Kind string

const (
	KindNone             Kind = ""
	KindValidation       Kind = "validation_error"
	KindPrecondition     Kind = "precondition_error"
	KindTransport        Kind = "transport_error"
	KindServerRejection  Kind = "server_rejection"
	KindAlreadySubmitted Kind = "already_submitted"
	KindParse            Kind = "parse_error"
	KindNotFound         Kind = "not_found"
	KindUnauthorized     Kind = "unauthorized"
	KindInternal         Kind = "internal_error"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		validationErr   *ValidationError
		preconditionErr *PreconditionError
		transportErr    *TransportError
		rejectionErr    *ServerRejectionError
		parseErr        *ParseError
	)

	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownFlow),
		errors.Is(err, ErrUnknownStep),
		errors.Is(err, ErrStepOutOfOrder):
		return KindValidation
	case errors.Is(err, ErrAlreadySubmitted),
		errors.Is(err, ErrSubmissionInFlight),
		errors.Is(err, ErrRequestIDAlreadySet):
		return KindAlreadySubmitted
	case errors.As(err, &preconditionErr):
		return KindPrecondition
	case errors.As(err, &transportErr),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrUpstreamTimeout):
		return KindTransport
	case errors.As(err, &rejectionErr), errors.Is(err, ErrFlowDisabled):
		return KindServerRejection
	case errors.As(err, &parseErr):
		return KindParse
	case errors.Is(err, ErrDraftNotFound), errors.Is(err, ErrNoRequest):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}
