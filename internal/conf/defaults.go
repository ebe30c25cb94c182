package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with validation and the classifier package
const (
	DefaultEmailMaxLen = 150
	DefaultSMSMaxLen   = 100
	DefaultURLMaxLen   = 80

	DefaultUploadMaxSize = 16 * 1024 * 1024

	DefaultGeminiModel        = "gemini-2.0-flash-exp"
	DefaultOpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"
)

// DefaultOpenRouterModels are tried in order until one answers
var DefaultOpenRouterModels = []string{
	"google/gemini-2.0-flash-001",
	"google/gemini-2.0-flash-lite-001",
	"google/gemini-2.5-flash-preview",
}

func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("server.listen", "0.0.0.0:5000")
	viper.SetDefault("server.bodylimit", "20M")
	viper.SetDefault("server.corsorigins", []string{})
	viper.SetDefault("server.ratelimit", 0)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 90*time.Second)
	viper.SetDefault("server.shutdowntimeout", 10*time.Second)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "spamguard.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.database", "spamguard")
	viper.SetDefault("database.mysql.maxopenconns", 10)
	viper.SetDefault("database.mysql.maxidleconns", 5)

	viper.SetDefault("models.dir", "models")
	viper.SetDefault("models.threads", 0)
	viper.SetDefault("models.usexnnpack", false)
	viper.SetDefault("models.email.enabled", true)
	viper.SetDefault("models.email.maxlen", DefaultEmailMaxLen)
	viper.SetDefault("models.sms.enabled", true)
	viper.SetDefault("models.sms.maxlen", DefaultSMSMaxLen)
	viper.SetDefault("models.url.enabled", true)
	viper.SetDefault("models.url.maxlen", DefaultURLMaxLen)

	viper.SetDefault("verifier.enabled", true)
	viper.SetDefault("verifier.provider", "gemini")
	viper.SetDefault("verifier.timeout", 30*time.Second)
	viper.SetDefault("verifier.ratelimit", 5.0)
	viper.SetDefault("verifier.burst", 5)
	viper.SetDefault("verifier.maxconcurrent", 4)
	viper.SetDefault("verifier.cachettl", 10*time.Minute)
	viper.SetDefault("verifier.gemini.model", DefaultGeminiModel)
	viper.SetDefault("verifier.openrouter.endpoint", DefaultOpenRouterEndpoint)
	viper.SetDefault("verifier.openrouter.models", DefaultOpenRouterModels)
	viper.SetDefault("verifier.openrouter.referer", "http://localhost:5000")
	viper.SetDefault("verifier.openrouter.title", "Spam Detector")

	viper.SetDefault("security.tokenttl", 24*time.Hour)
	viper.SetDefault("security.cookiesecure", false)

	viper.SetDefault("upload.maxsize", DefaultUploadMaxSize)
	viper.SetDefault("upload.tesseractpath", "tesseract")
	viper.SetDefault("upload.pdftoppmpath", "pdftoppm")
	viper.SetDefault("upload.maxpdfpages", 50)
	viper.SetDefault("upload.maxocrpages", 10)
	viper.SetDefault("upload.ocrdpi", 150)
	viper.SetDefault("upload.ocrlanguage", "eng")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "spamguard/classifications")
	viper.SetDefault("mqtt.clientid", "spamguard")
	viper.SetDefault("mqtt.qos", 0)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.path", "/metrics")

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", true)
	viper.SetDefault("logging.fileoutput.path", "logs/spamguard.log")
	viper.SetDefault("logging.fileoutput.level", "info")
}
