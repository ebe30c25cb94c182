package errors

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives built errors
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu        sync.RWMutex
	telemetryReporter TelemetryReporter

	// hasActiveReporting lets Build skip the reporter lookup entirely
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter installs the global reporter. Pass nil to disable.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the installed reporter, which may be nil
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return telemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	r := GetTelemetryReporter()
	if r == nil || !r.IsEnabled() || ee.IsReported() {
		return
	}
	r.ReportError(ee)
}

// reportable categories; validation and not-found are user errors
func shouldReport(category ErrorCategory) bool {
	switch category {
	case CategoryValidation, CategoryNotFound, CategoryConflict, CategoryAuth:
		return false
	}
	return true
}

// SentryReporter forwards enhanced errors to Sentry after scrubbing
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a reporter. Sentry itself must already be
// initialised with InitSentry.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends ee to Sentry with component and category tags
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || !shouldReport(ee.Category) {
		return
	}

	message := basicURLScrub(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	level := levelForCategory(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = basicURLScrub(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetLevel(level)
		scope.SetFingerprint([]string{ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", ee.GetComponent(), ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func levelForCategory(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryVerifier, CategoryTimeout, CategoryFileIO, CategoryMQTTConnection, CategoryMQTTPublish:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

// InitSentry initialises the Sentry SDK and installs a SentryReporter
func InitSentry(dsn, release, environment string) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			// request bodies carry user messages
			event.Request = nil
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	SetTelemetryReporter(NewSentryReporter(true))
	return nil
}

// FlushSentry waits up to timeout for queued events
func FlushSentry(timeout time.Duration) {
	if r, ok := GetTelemetryReporter().(*SentryReporter); ok && r.IsEnabled() {
		sentry.Flush(timeout)
	}
}

var (
	urlQueryRegex   = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	apiKeyRegex     = regexp.MustCompile(`(?i)(api[_-]?key|token|auth|key)[=:]\S+`)
	googleKeyRegex  = regexp.MustCompile(`AIza[0-9A-Za-z\-_]{30,}`)
	bearerRegex     = regexp.MustCompile(`(?i)bearer\s+\S+`)
	emailAddrRegex  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	longHexKeyRegex = regexp.MustCompile(`[0-9a-fA-F]{32,}`)
)

// basicURLScrub strips query strings, keys and e-mail addresses from messages
func basicURLScrub(message string) string {
	s := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	s = bearerRegex.ReplaceAllString(s, "Bearer [REDACTED]")
	s = googleKeyRegex.ReplaceAllString(s, "[API_KEY_REDACTED]")
	s = apiKeyRegex.ReplaceAllString(s, "[API_KEY_REDACTED]")
	s = longHexKeyRegex.ReplaceAllString(s, "[API_KEY_REDACTED]")
	s = emailAddrRegex.ReplaceAllString(s, "[EMAIL_REDACTED]")
	return s
}
