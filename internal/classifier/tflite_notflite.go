//go:build notflite

// This file is used when building with -tags notflite, on hosts without the
// TensorFlow Lite C library. Every model load fails, so the server starts
// with all classifiers unloaded and predictions answer 503.

package classifier

import (
	"fmt"

	"github.com/tphakala/spamguard-go/internal/errors"
)

// ErrTFLiteUnavailable is returned by LoadTFLiteModel in notflite builds.
var ErrTFLiteUnavailable = errors.NewStd("built without TensorFlow Lite support")

// LoadTFLiteModel always fails in notflite builds.
func LoadTFLiteModel(path string, _ ModelOptions) (Predictor, error) {
	return nil, errors.New(fmt.Errorf("%w: cannot load %s", ErrTFLiteUnavailable, path)).
		Component("classifier").
		Category(errors.CategoryModelLoad).
		Context("model_path", path).
		Build()
}
