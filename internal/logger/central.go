package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata" // timezone names must resolve on hosts without zoneinfo
)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs the process-wide CentralLogger.
// Call once during startup after configuration is loaded.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cl
}

// Global returns the installed CentralLogger. Before SetGlobal it is a
// console logger at info level.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		// no files and local time, so this cannot fail
		global, _ = NewCentralLogger(&LoggingConfig{
			Console:       &ConsoleOutput{Enabled: true, Level: DefaultLogLevel},
			FileOutput:    &FileOutput{},
			ModuleOutputs: map[string]ModuleOutput{"access": {}, "auth": {}},
		})
	}
	return global
}

// CentralLogger owns the log files and hands out module loggers.
type CentralLogger struct {
	cfg  *LoggingConfig
	tz   *time.Location
	base slog.Handler

	mu      sync.RWMutex
	writers map[string]*BufferedFileWriter // keyed by file path
}

// NewCentralLogger opens the outputs described by cfg. Missing sections
// get defaults.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := resolveTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{cfg: cfg, tz: tz, writers: make(map[string]*BufferedFileWriter)}
	if err := cl.openWriters(); err != nil {
		_ = cl.Close()
		return nil, err
	}
	cl.base = cl.baseHandler()
	return cl, nil
}

func resolveTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

// openWriters opens each configured file once. Outputs naming the same
// path, the main file included, share a writer.
func (cl *CentralLogger) openWriters() error {
	var paths []string
	if f := cl.cfg.FileOutput; f.Enabled {
		paths = append(paths, f.Path)
	}
	for _, out := range cl.cfg.ModuleOutputs {
		if out.Enabled {
			paths = append(paths, out.FilePath)
		}
	}

	for _, path := range paths {
		if path == "" || cl.writers[path] != nil {
			continue
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		w, err := NewBufferedFileWriter(path)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		cl.writers[path] = w
	}
	return nil
}

func (cl *CentralLogger) baseHandler() slog.Handler {
	var handlers []slog.Handler
	if c := cl.cfg.Console; c.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(c.Level), cl.tz))
	}
	if f := cl.cfg.FileOutput; f.Enabled && cl.writers[f.Path] != nil {
		handlers = append(handlers, newJSONHandler(cl.writers[f.Path], parseLogLevel(f.Level), cl.tz))
	}
	if len(handlers) == 0 {
		return newTextHandler(os.Stdout, parseLogLevel(cl.cfg.DefaultLevel), cl.tz)
	}
	return fanOut(handlers)
}

// Module returns a logger for name. A module with an enabled output of its
// own writes only there, plus the console when ConsoleAlso is set. Every
// other module uses the shared console and main file handlers.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level := cl.levelFor(name)
	handler := cl.base

	if out, ok := cl.cfg.ModuleOutputs[name]; ok && out.Enabled {
		var handlers []slog.Handler
		if w := cl.writers[out.FilePath]; w != nil {
			handlers = append(handlers, newJSONHandler(w, level, cl.tz))
		}
		if out.ConsoleAlso && cl.cfg.Console.Enabled {
			handlers = append(handlers, newTextHandler(os.Stdout, level, cl.tz))
		}
		if len(handlers) > 0 {
			handler = fanOut(handlers)
		}
	}

	return &moduleLogger{module: name, logger: slog.New(handler), level: level}
}

// levelFor picks the module output level, then ModuleLevels, then DefaultLevel.
func (cl *CentralLogger) levelFor(name string) slog.Level {
	if out, ok := cl.cfg.ModuleOutputs[name]; ok && out.Level != "" {
		return parseLogLevel(out.Level)
	}
	if level, ok := cl.cfg.ModuleLevels[name]; ok {
		return parseLogLevel(level)
	}
	return parseLogLevel(cl.cfg.DefaultLevel)
}

// Flush writes buffered records to the OS without fsync.
func (cl *CentralLogger) Flush() error {
	return cl.eachWriter(false, (*BufferedFileWriter).Flush)
}

// Close flushes and closes every log file.
func (cl *CentralLogger) Close() error {
	return cl.eachWriter(true, (*BufferedFileWriter).Close)
}

func (cl *CentralLogger) eachWriter(closing bool, fn func(*BufferedFileWriter) error) error {
	if cl == nil {
		return nil
	}
	if closing {
		cl.mu.Lock()
		defer cl.mu.Unlock()
	} else {
		cl.mu.RLock()
		defer cl.mu.RUnlock()
	}

	var errs []error
	for path, w := range cl.writers {
		if err := fn(w); err != nil {
			errs = append(errs, fmt.Errorf("log file %s: %w", path, err))
		}
	}
	if closing {
		cl.writers = nil
	}
	return errors.Join(errs...)
}

func fanOut(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return newMultiWriterHandler(handlers...)
}
