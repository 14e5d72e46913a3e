// Package schema validates event payloads before they are published.
package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks struct payloads against their validate tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with required-struct checking enabled.
func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns an error naming every field that failed.
func (v *Validator) Validate(event any) error {
	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("invalid event %T: %w", event, err)
	}
	return nil
}
