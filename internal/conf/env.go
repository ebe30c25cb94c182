package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps an environment variable onto a config key
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		// Provider keys use the names their SDKs document
		{"verifier.gemini.apikey", "GEMINI_API_KEY", nil},
		{"verifier.openrouter.apikey", "OPENROUTER_API_KEY", nil},
		{"verifier.provider", "SPAMGUARD_VERIFIER_PROVIDER", validateEnvProvider},

		{"security.jwtsecret", "SPAMGUARD_JWT_SECRET", nil},
		{"security.sessionsecret", "SPAMGUARD_SESSION_SECRET", nil},

		{"server.listen", "SPAMGUARD_LISTEN", nil},
		{"models.dir", "SPAMGUARD_MODELS_DIR", nil},
		{"models.threads", "SPAMGUARD_MODELS_THREADS", validateEnvThreads},
		{"models.usexnnpack", "SPAMGUARD_MODELS_USEXNNPACK", validateEnvBool},

		{"database.type", "SPAMGUARD_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "SPAMGUARD_DATABASE_PATH", nil},
		{"database.mysql.password", "SPAMGUARD_MYSQL_PASSWORD", nil},

		{"mqtt.broker", "SPAMGUARD_MQTT_BROKER", validateEnvURL},
		{"mqtt.password", "SPAMGUARD_MQTT_PASSWORD", nil},
		{"sentry.dsn", "SPAMGUARD_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars binds every entry and reports invalid values without failing
func bindEnvVars() error {
	var warnings []string

	for _, b := range getEnvBindings() {
		if err := viper.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if value := os.Getenv(b.EnvVar); value != "" {
			if err := b.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", b.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvThreads(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateEnvProvider(value string) error {
	switch strings.ToLower(value) {
	case ProviderGemini, ProviderOpenRouter:
		return nil
	}
	return fmt.Errorf("must be %q or %q", ProviderGemini, ProviderOpenRouter)
}

func validateEnvDatabaseType(value string) error {
	switch strings.ToLower(value) {
	case DatabaseSQLite, DatabaseMySQL:
		return nil
	}
	return fmt.Errorf("must be %q or %q", DatabaseSQLite, DatabaseMySQL)
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

// configureEnvironmentVariables enables SPAMGUARD_<SECTION>_<KEY> overrides
// for every key plus the explicit bindings above.
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix("SPAMGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}
