package detection

import (
	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/errors"
)

// ErrInvalidInput marks text rejected before classification.
var ErrInvalidInput = errors.NewStd("invalid input")

// ErrModelNotLoaded is returned when no classifier exists for the type.
var ErrModelNotLoaded = classifier.ErrModelNotLoaded

// RequestError carries a message meant for the API client while still
// matching its sentinel with errors.Is.
type RequestError struct {
	Message  string
	sentinel error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.sentinel }

func invalidInput(t classifier.ContentType) error {
	var msg string
	switch t {
	case classifier.Email:
		msg = "Please enter a valid email text"
	case classifier.SMS:
		msg = "Please enter a valid SMS message"
	default:
		msg = "Please enter a valid URL"
	}
	return errors.New(&RequestError{Message: msg, sentinel: ErrInvalidInput}).
		Component("detection").
		Category(errors.CategoryValidation).
		Context("content_type", string(t)).
		Build()
}

func modelNotLoaded(t classifier.ContentType) error {
	return errors.New(&RequestError{
		Message:  t.DisplayName() + " model not loaded. Please train the model first.",
		sentinel: ErrModelNotLoaded,
	}).
		Component("detection").
		Category(errors.CategoryModelLoad).
		Context("content_type", string(t)).
		Build()
}
