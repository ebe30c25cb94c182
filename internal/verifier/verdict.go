// Package verifier asks a large language model for a second opinion on
// texts the local models consider legitimate, and on every URL.
package verifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
)

const (
	// DefaultConfidence is used when the reply carries no usable confidence.
	DefaultConfidence = 75.0
	// FallbackConfidence accompanies a verdict produced without the LLM.
	FallbackConfidence = 50.0

	defaultReason = "AI analysis completed"

	markerClassification = "CLASSIFICATION:"
	markerConfidence     = "CONFIDENCE:"
	markerReason         = "REASON:"
)

// ErrAPIKeyNotConfigured is the fallback cause when no provider key is set.
var ErrAPIKeyNotConfigured = errors.NewStd("API key not configured")

// Verdict is the LLM's classification of one input.
type Verdict struct {
	IsSpam bool
	// Confidence is a percentage in [0, 100].
	Confidence float64
	Reason     string
	// VerifiedBy names the source, e.g. "Gemini AI".
	VerifiedBy string
}

// Verifier classifies a text with an external model.
type Verifier interface {
	Verify(ctx context.Context, t classifier.ContentType, text string) (Verdict, error)
	// Name is the provider's display name, e.g. "Gemini".
	Name() string
}

// Source is the VerifiedBy label for a provider name.
func Source(provider string) string {
	return provider + " AI"
}

// Fallback is the verdict used when verification could not be performed.
// It never reports spam.
func Fallback(source string, err error) Verdict {
	return Verdict{
		IsSpam:     false,
		Confidence: FallbackConfidence,
		Reason:     fmt.Sprintf("Verification service unavailable: %v", err),
		VerifiedBy: source + " (Error)",
	}
}

// ParseResponse extracts a Verdict from a reply that should contain
// CLASSIFICATION, CONFIDENCE and REASON lines. Replies missing either of
// the first two are judged by keyword instead.
func ParseResponse(reply, source string) Verdict {
	reply = strings.TrimSpace(reply)

	var classification, confidence, reason string
	var haveClass, haveConf, haveReason bool
	for line := range strings.SplitSeq(reply, "\n") {
		if !haveClass && strings.Contains(line, markerClassification) {
			classification, haveClass = markerValue(line), true
		}
		if !haveConf && strings.Contains(line, markerConfidence) {
			confidence, haveConf = markerValue(line), true
		}
		if !haveReason && strings.Contains(line, markerReason) {
			reason, haveReason = markerValue(line), true
		}
	}

	v := Verdict{VerifiedBy: source, Confidence: DefaultConfidence, Reason: defaultReason}
	if !haveClass || !haveConf {
		v.IsSpam = containsSpamWord(reply)
		return v
	}

	v.IsSpam = containsSpamWord(classification)
	if c, ok := parseDigits(confidence); ok {
		v.Confidence = c
	}
	if haveReason {
		v.Reason = reason
	}
	v.Confidence = min(100, max(0, v.Confidence))
	return v
}

// markerValue returns the text after the first colon, trimmed
func markerValue(line string) string {
	_, after, _ := strings.Cut(line, ":")
	return strings.TrimSpace(after)
}

func containsSpamWord(s string) bool {
	s = strings.ToUpper(s)
	return strings.Contains(s, "SPAM") || strings.Contains(s, "PHISHING")
}

// parseDigits concatenates every decimal digit in s, so "85%" and "[85]"
// both read as 85.
func parseDigits(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// GetLogger returns the verifier module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("verifier")
}
