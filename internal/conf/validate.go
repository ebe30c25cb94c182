package conf

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"

	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"
)

// ValidationError collects every configuration problem found
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings checks the whole configuration and normalises enum values
func ValidateSettings(s *Settings) error {
	ve := ValidationError{}
	add := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	add(validateServerSettings(&s.Server))
	add(validateDatabaseSettings(&s.Database))
	add(validateModelSettings(&s.Models))
	add(validateVerifierSettings(&s.Verifier, s.Server.WriteTimeout))
	add(validateSecuritySettings(&s.Security))
	add(validateUploadSettings(&s.Upload))
	add(validateMQTTSettings(&s.MQTT))
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		add(fmt.Errorf("sentry.dsn is required when sentry is enabled"))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateServerSettings(s *ServerSettings) error {
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return fmt.Errorf("server.listen %q is not host:port: %w", s.Listen, err)
	}
	if s.BodyLimit != "" {
		// echo panics on an unparsable limit, surface it here instead
		if _, err := bytes.Parse(s.BodyLimit); err != nil {
			return fmt.Errorf("server.bodylimit %q is invalid: %w", s.BodyLimit, err)
		}
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("server.ratelimit must not be negative")
	}
	return nil
}

func validateDatabaseSettings(s *DatabaseSettings) error {
	s.Type = strings.ToLower(s.Type)
	switch s.Type {
	case DatabaseSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case DatabaseMySQL:
		if s.MySQL.Host == "" || s.MySQL.Database == "" || s.MySQL.Username == "" {
			return fmt.Errorf("database.mysql host, database and username are required")
		}
		if s.MySQL.Port <= 0 || s.MySQL.Port > 65535 {
			return fmt.Errorf("database.mysql.port %d is out of range", s.MySQL.Port)
		}
	default:
		return fmt.Errorf("database.type %q must be %q or %q", s.Type, DatabaseSQLite, DatabaseMySQL)
	}
	return nil
}

func validateModelSettings(s *ModelSettings) error {
	if s.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if s.Threads < 0 {
		return fmt.Errorf("models.threads must not be negative")
	}
	for name, t := range map[string]ModelTypeSettings{"email": s.Email, "sms": s.SMS, "url": s.URL} {
		if t.Enabled && t.MaxLen <= 0 {
			return fmt.Errorf("models.%s.maxlen must be positive", name)
		}
	}
	return nil
}

func validateVerifierSettings(s *VerifierSettings, writeTimeout time.Duration) error {
	if !s.Enabled {
		return nil
	}
	s.Provider = strings.ToLower(s.Provider)
	switch s.Provider {
	case ProviderGemini:
		if s.Gemini.Model == "" {
			return fmt.Errorf("verifier.gemini.model is required")
		}
	case ProviderOpenRouter:
		if len(s.OpenRouter.Models) == 0 {
			return fmt.Errorf("verifier.openrouter.models must list at least one model")
		}
		if s.OpenRouter.Endpoint == "" {
			return fmt.Errorf("verifier.openrouter.endpoint is required")
		}
	default:
		return fmt.Errorf("verifier.provider %q must be %q or %q", s.Provider, ProviderGemini, ProviderOpenRouter)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("verifier.timeout must be positive")
	}
	if writeTimeout > 0 && s.Timeout >= writeTimeout {
		return fmt.Errorf("verifier.timeout %s must be shorter than server.writetimeout %s", s.Timeout, writeTimeout)
	}
	if s.RateLimit < 0 || s.Burst < 0 || s.MaxConcurrent < 0 {
		return fmt.Errorf("verifier ratelimit, burst and maxconcurrent must not be negative")
	}
	return nil
}

func validateSecuritySettings(s *SecuritySettings) error {
	if len(s.JWTSecret) < 16 {
		return fmt.Errorf("security.jwtsecret must be at least 16 characters")
	}
	if len(s.SessionSecret) < 16 {
		return fmt.Errorf("security.sessionsecret must be at least 16 characters")
	}
	if s.TokenTTL <= 0 {
		return fmt.Errorf("security.tokenttl must be positive")
	}
	return nil
}

func validateUploadSettings(s *UploadSettings) error {
	if s.MaxSize <= 0 {
		return fmt.Errorf("upload.maxsize must be positive")
	}
	if s.MaxPDFPages <= 0 || s.MaxOCRPages <= 0 {
		return fmt.Errorf("upload.maxpdfpages and upload.maxocrpages must be positive")
	}
	if s.OCRDPI < 72 || s.OCRDPI > 600 {
		return fmt.Errorf("upload.ocrdpi %d must be between 72 and 600", s.OCRDPI)
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) error {
	if !s.Enabled {
		return nil
	}
	if s.Broker == "" || s.Topic == "" {
		return fmt.Errorf("mqtt.broker and mqtt.topic are required when mqtt is enabled")
	}
	if s.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", s.QoS)
	}
	return nil
}
