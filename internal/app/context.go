// Package app wires configuration, logging and the spamguard components
// together for the CLI commands.
package app

import (
	"fmt"
	"time"

	"github.com/tphakala/spamguard-go/internal/buildinfo"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// Context carries state shared by every command. Settings is nil until
// Initialize has run.
type Context struct {
	Build    *buildinfo.Context
	Settings *conf.Settings

	central *logger.CentralLogger
}

// NewContext creates a Context for the given build.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Initialize loads configuration, installs the global logger and, when
// enabled, Sentry reporting.
func (c *Context) Initialize(configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	c.central = central
	c.Settings = settings

	if settings.Sentry.Enabled && settings.Sentry.DSN != "" {
		if err := errors.InitSentry(settings.Sentry.DSN, c.Build.Version(), settings.Sentry.Environment); err != nil {
			// error reporting is optional
			GetLogger().Warn("sentry disabled", logger.Error(err))
		}
	}

	GetLogger().Debug("configuration loaded",
		logger.String("version", c.Build.Version()),
		logger.Bool("debug", settings.Debug))
	return nil
}

// Shutdown flushes pending error reports and log buffers.
func (c *Context) Shutdown() {
	errors.FlushSentry(sentryFlushTimeout)
	if c.central != nil {
		_ = c.central.Close()
	}
}

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}
