package reservations

import "fmt"

type Kind int

const (
	KindMissingField Kind = iota + 1
	KindUnacceptedParameter
	KindInvalidTimeOrder
	KindConflictDetected
	KindInvalidIDFormat
	KindIncompleteTimeRange
	KindInvalidValue
	KindUnknownReference
)

func (k Kind) String() string {
	switch k {
	case KindMissingField:
		return "missing_field"
	case KindUnacceptedParameter:
		return "unaccepted_parameter"
	case KindInvalidTimeOrder:
		return "invalid_time_order"
	case KindConflictDetected:
		return "conflict_detected"
	case KindInvalidIDFormat:
		return "invalid_id_format"
	case KindIncompleteTimeRange:
		return "incomplete_time_range"
	case KindInvalidValue:
		return "invalid_value"
	case KindUnknownReference:
		return "unknown_reference"
	default:
		return "unknown"
	}
}

const (
	MsgUnacceptedParameter = "Unaccepted parameter used"
	MsgInvalidTimeOrder    = "start should not be greater then end"
	MsgConflict            = "Client or serviceprovider are booked!"
	MsgIncompleteTimeRange = "Time query needs both start and end values"
	MsgUnknownReference    = "clientId or providerId does not exist"
)

// ValidationError is a rejection of a request. Its message is safe to show
// to callers.
type ValidationError struct {
	Kind  Kind
	Field string
	msg   string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(kind Kind, field, msg string) error {
	return &ValidationError{Kind: kind, Field: field, msg: msg}
}

func missingFieldError(field string) error {
	return validationError(KindMissingField, field, fmt.Sprintf("%s undefined", field))
}

func invalidValueError(field, what string) error {
	return validationError(KindInvalidValue, field, fmt.Sprintf("%s is not a valid %s", field, what))
}

func unacceptedParameterError(field string) error {
	return validationError(KindUnacceptedParameter, field, MsgUnacceptedParameter)
}

func invalidTimeOrderError() error {
	return validationError(KindInvalidTimeOrder, FieldStart, MsgInvalidTimeOrder)
}

func conflictError() error {
	return validationError(KindConflictDetected, "", MsgConflict)
}

func unknownReferenceError() error {
	return validationError(KindUnknownReference, "", MsgUnknownReference)
}
