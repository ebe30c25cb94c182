package classifier

import (
	"context"
	"time"

	"github.com/tphakala/spamguard-go/internal/observability/metrics"
	"github.com/tphakala/spamguard-go/internal/textprep"
)

// SpamThreshold is the probability above which the model calls a text spam.
const SpamThreshold = 0.5

// Prediction is the local model's verdict for one input.
type Prediction struct {
	// Probability is the raw model output, P(spam).
	Probability float64
	IsSpam      bool
	// Confidence is the probability of the predicted class.
	Confidence float64
}

// Classifier binds a model to the tokenizer it was trained with.
type Classifier struct {
	Type      ContentType
	Tokenizer *textprep.Tokenizer
	Predictor Predictor
	MaxLen    int

	metrics *metrics.ClassifierMetrics
}

// Preprocess normalises text the way training data was normalised.
func (c *Classifier) Preprocess(text string) string {
	if c.Type == URL {
		return textprep.CleanURL(text)
	}
	return textprep.CleanText(text)
}

// Sequence returns the padded model input for text.
func (c *Classifier) Sequence(text string) []int32 {
	seq := c.Tokenizer.TextToSequence(c.Preprocess(text))
	return textprep.PadSequence(seq, c.MaxLen)
}

// Classify scores text with the local model.
func (c *Classifier) Classify(ctx context.Context, text string) (Prediction, error) {
	start := time.Now()

	p, err := c.Predictor.Predict(ctx, c.Sequence(text))
	if err != nil {
		c.metrics.RecordPrediction(string(c.Type), time.Since(start).Seconds(), false, err)
		return Prediction{}, err
	}

	pred := NewPrediction(float64(p))
	c.metrics.RecordPrediction(string(c.Type), time.Since(start).Seconds(), pred.IsSpam, nil)
	return pred, nil
}

// NewPrediction applies the spam threshold to a raw probability.
func NewPrediction(p float64) Prediction {
	pred := Prediction{Probability: p, IsSpam: p > SpamThreshold}
	if pred.IsSpam {
		pred.Confidence = p
	} else {
		pred.Confidence = 1 - p
	}
	return pred
}
