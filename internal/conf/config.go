// Package conf loads and validates spamguard configuration.
package conf

import (
	"crypto/rand"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/spamguard-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the root configuration structure
type Settings struct {
	Debug bool `yaml:"debug"`

	Server    ServerSettings       `yaml:"server"`
	Database  DatabaseSettings     `yaml:"database"`
	Models    ModelSettings        `yaml:"models"`
	Verifier  VerifierSettings     `yaml:"verifier"`
	Security  SecuritySettings     `yaml:"security"`
	Upload    UploadSettings       `yaml:"upload"`
	MQTT      MQTTSettings         `yaml:"mqtt"`
	Sentry    SentrySettings       `yaml:"sentry"`
	Telemetry TelemetrySettings    `yaml:"telemetry"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

// ServerSettings configures the HTTP listener
type ServerSettings struct {
	Listen          string        `yaml:"listen"`          // host:port
	BodyLimit       string        `yaml:"bodylimit"`       // echo body limit, e.g. "20M"
	CORSOrigins     []string      `yaml:"corsorigins"`     // allowed origins, empty allows all
	RateLimit       float64       `yaml:"ratelimit"`       // prediction requests per second per client, 0 disables
	ReadTimeout     time.Duration `yaml:"readtimeout"`     //
	WriteTimeout    time.Duration `yaml:"writetimeout"`    // must exceed verifier.timeout
	ShutdownTimeout time.Duration `yaml:"shutdowntimeout"` //
}

// DatabaseSettings selects and configures the history store
type DatabaseSettings struct {
	Type   string         `yaml:"type"` // sqlite or mysql
	SQLite SQLiteSettings `yaml:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql"`
}

type SQLiteSettings struct {
	Path string `yaml:"path"`
}

type MySQLSettings struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"maxopenconns"`
	MaxIdleConns int    `yaml:"maxidleconns"`
}

// ModelSettings configures the TFLite classifiers
type ModelSettings struct {
	Dir        string            `yaml:"dir"`        // directory holding <type>_model.tflite and <type>_tokenizer.json
	Threads    int               `yaml:"threads"`    // interpreter threads, 0 uses physical core count
	UseXNNPACK bool              `yaml:"usexnnpack"` // enable the XNNPACK delegate
	Email      ModelTypeSettings `yaml:"email"`
	SMS        ModelTypeSettings `yaml:"sms"`
	URL        ModelTypeSettings `yaml:"url"`
}

// ModelTypeSettings configures one content type
type ModelTypeSettings struct {
	Enabled bool `yaml:"enabled"`
	MaxLen  int  `yaml:"maxlen"` // padded sequence length the model was trained with
}

// VerifierSettings configures second-stage AI verification
type VerifierSettings struct {
	Enabled       bool               `yaml:"enabled"`
	Provider      string             `yaml:"provider"` // gemini or openrouter
	Timeout       time.Duration      `yaml:"timeout"`
	RateLimit     float64            `yaml:"ratelimit"` // requests per second, 0 disables
	Burst         int                `yaml:"burst"`
	MaxConcurrent int64              `yaml:"maxconcurrent"`
	CacheTTL      time.Duration      `yaml:"cachettl"` // 0 disables caching
	Gemini        GeminiSettings     `yaml:"gemini"`
	OpenRouter    OpenRouterSettings `yaml:"openrouter"`
}

type GeminiSettings struct {
	APIKey  string `yaml:"apikey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseurl"` // optional API endpoint override
}

type OpenRouterSettings struct {
	APIKey   string   `yaml:"apikey"`
	Endpoint string   `yaml:"endpoint"`
	Models   []string `yaml:"models"` // tried in order
	Referer  string   `yaml:"referer"`
	Title    string   `yaml:"title"`
}

// SecuritySettings configures authentication
type SecuritySettings struct {
	SessionSecret string        `yaml:"sessionsecret"`
	JWTSecret     string        `yaml:"jwtsecret"`
	TokenTTL      time.Duration `yaml:"tokenttl"`
	CookieSecure  bool          `yaml:"cookiesecure"`
}

// UploadSettings configures document text extraction
type UploadSettings struct {
	MaxSize       int64  `yaml:"maxsize"` // bytes
	TesseractPath string `yaml:"tesseractpath"`
	PdftoppmPath  string `yaml:"pdftoppmpath"`
	MaxPDFPages   int    `yaml:"maxpdfpages"`
	MaxOCRPages   int    `yaml:"maxocrpages"`
	OCRDPI        int    `yaml:"ocrdpi"`
	OCRLanguage   string `yaml:"ocrlanguage"`
}

// MQTTSettings configures publishing of classification events
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientid"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retain   bool   `yaml:"retain"`
	QoS      byte   `yaml:"qos"`
}

type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// TelemetrySettings configures the Prometheus endpoint
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment and bound flags.
// An empty configFile searches the default paths and writes the embedded
// default config to the first of them when nothing is found.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	ensureSecrets(settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// bad env values are reported but do not stop startup
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir with fresh secrets
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	content := strings.NewReplacer(
		`sessionsecret: ""`, fmt.Sprintf("sessionsecret: %q", GenerateRandomSecret()),
		`jwtsecret: ""`, fmt.Sprintf("jwtsecret: %q", GenerateRandomSecret()),
	).Replace(string(data))

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))

	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// DefaultConfigYAML returns the embedded default configuration
func DefaultConfigYAML() []byte {
	data, _ := fs.ReadFile(configFiles, "config.yaml")
	return data
}

// ensureSecrets fills empty secrets with random values for this process only
func ensureSecrets(s *Settings) {
	if s.Security.SessionSecret == "" {
		s.Security.SessionSecret = GenerateRandomSecret()
		GetLogger().Warn("security.sessionsecret not set, sessions will not survive restarts")
	}
	if s.Security.JWTSecret == "" {
		s.Security.JWTSecret = GenerateRandomSecret()
		GetLogger().Warn("security.jwtsecret not set, tokens will not survive restarts")
	}
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig atomically writes settings to configPath.
// Comments in the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// MaskedYAML renders settings as YAML with every credential replaced
func MaskedYAML(settings *Settings) ([]byte, error) {
	masked := *settings
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&masked.Security.SessionSecret)
	mask(&masked.Security.JWTSecret)
	mask(&masked.Verifier.Gemini.APIKey)
	mask(&masked.Verifier.OpenRouter.APIKey)
	mask(&masked.Database.MySQL.Password)
	mask(&masked.MQTT.Password)
	mask(&masked.Sentry.DSN)
	return yaml.Marshal(&masked)
}

// GenerateRandomSecret returns 256 bits of URL-safe base64 randomness
func GenerateRandomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		GetLogger().Error("failed to generate random secret", logger.Error(err))
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// GetLogger returns the configuration module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
