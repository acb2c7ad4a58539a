package services

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type emailInput struct {
	Email string `validate:"required,email"`
}

type codeInput struct {
	Code string `validate:"len=6"`
}

// Phone numbers are North-American: ten digits, the +1 country code is
// added before sending.
type phoneInput struct {
	Phone string `validate:"required,len=10,number"`
}

var fieldMessages = map[string]string{
	"Email": "Please enter a valid email address",
	"Code":  "Please enter a 6-digit code",
	"Phone": "Please enter a valid Canadian phone number (without the country code).",
}

// ValidationError reports input rejected before anything was sent.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, messageFor(fe))
	}
	return strings.Join(msgs, "; ")
}

// Fields maps each rejected field to its message.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fe.Field()] = messageFor(fe)
	}
	return fields
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return msg
	}
	return fe.Field() + " is invalid"
}

func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{Errors: ve}
		}
		return err
	}
	return nil
}
