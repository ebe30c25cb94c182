package detection

import (
	"math"
	"time"

	"github.com/tphakala/spamguard-go/internal/classifier"
)

// Labels reported in Result.Label and stored as history results.
const (
	LabelSpam       = "Spam"
	LabelPhishing   = "Phishing"
	LabelLegitimate = "Legitimate"
)

// Stage names reported in Result.Stage.
const (
	StageModel        = "Stage 1: Deep Learning Model"
	StageVerification = "Stage 2: AI Verification"
	StageURL          = "AI Verification"
)

// VerificationModel marks results decided by the local model alone.
const VerificationModel = "Model Detection"

// Result is the outcome of one classification as returned to API clients.
type Result struct {
	Success         bool     `json:"success"`
	IsSpam          bool     `json:"is_spam"`
	Confidence      float64  `json:"confidence"`
	Label           string   `json:"label"`
	Type            string   `json:"type"`
	Verification    string   `json:"verification"`
	Stage           string   `json:"stage"`
	Reason          string   `json:"reason,omitempty"`
	ModelConfidence *float64 `json:"model_confidence,omitempty"`
	ModelSaid       string   `json:"model_said,omitempty"`

	// Timestamp is when the decision was made; not serialised.
	Timestamp time.Time `json:"-"`
}

// Event is the published form of a Result. It never carries the input.
type Event struct {
	Type         string    `json:"type"`
	Label        string    `json:"label"`
	IsSpam       bool      `json:"is_spam"`
	Confidence   float64   `json:"confidence"`
	Verification string    `json:"verification"`
	Stage        string    `json:"stage"`
	Timestamp    time.Time `json:"timestamp"`
}

// Event converts r for publishing.
func (r *Result) Event() Event {
	return Event{
		Type:         r.Type,
		Label:        r.Label,
		IsSpam:       r.IsSpam,
		Confidence:   r.Confidence,
		Verification: r.Verification,
		Stage:        r.Stage,
		Timestamp:    r.Timestamp,
	}
}

// percent converts a [0,1] confidence to a percentage with two decimals
func percent(c float64) float64 {
	return round2(c * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// spamLabel is the positive label for t
func spamLabel(t classifier.ContentType) string {
	if t == classifier.URL {
		return LabelPhishing
	}
	return LabelSpam
}

func label(t classifier.ContentType, spam bool) string {
	if spam {
		return spamLabel(t)
	}
	return LabelLegitimate
}
