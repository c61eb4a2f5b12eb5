package protocol

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a decoded payload against its schema tags. Payloads that
// fail validation are rejected whole, never partially processed.
func Validate(v any) error {
	return validate.Struct(v)
}
