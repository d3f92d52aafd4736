package types

// FieldError pins a validation failure to the request field that caused it.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

// ValidationError carries every field failure from one request, so the
// remote panel can mark all offending inputs in a single round trip.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError returns an empty collection ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Errors: []FieldError{}}
}

// Add records one failed field.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message, Value: value})
}
