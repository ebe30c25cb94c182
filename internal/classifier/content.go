// Package classifier runs the local spam detection models.
//
// Each content type (email, SMS, URL) has its own TensorFlow Lite model and
// tokenizer. A Classifier turns raw text into a padded index sequence,
// runs the model and reports the spam probability.
package classifier

import (
	"strings"

	"github.com/tphakala/spamguard-go/internal/errors"
)

// ContentType identifies which model a text is scored with.
type ContentType string

const (
	Email ContentType = "email"
	SMS   ContentType = "sms"
	URL   ContentType = "url"
)

// AllContentTypes lists the supported types in display order.
var AllContentTypes = []ContentType{Email, SMS, URL}

// ErrUnknownContentType is returned by ParseContentType.
var ErrUnknownContentType = errors.NewStd("unknown content type")

// ParseContentType accepts "email", "sms" or "url" in any case.
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case Email:
		return Email, nil
	case SMS:
		return SMS, nil
	case URL:
		return URL, nil
	}
	return "", errors.New(ErrUnknownContentType).
		Component("classifier").
		Category(errors.CategoryValidation).
		Context("content_type", s).
		Build()
}

// DisplayName is the human readable label used in API responses.
func (t ContentType) DisplayName() string {
	switch t {
	case Email:
		return "Email"
	case SMS:
		return "SMS"
	case URL:
		return "URL"
	}
	return string(t)
}

// MinLength is the shortest trimmed input accepted for the type.
func (t ContentType) MinLength() int {
	if t == SMS {
		return 3
	}
	return 5
}

// Subject names the input in user facing messages, e.g. "Email text".
func (t ContentType) Subject() string {
	if t == URL {
		return "URL"
	}
	return t.DisplayName() + " text"
}
