// Package extract turns uploaded documents into plain text for
// classification.
package extract

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// Default limits applied when settings leave them zero.
const (
	DefaultMaxSize     = 16 << 20
	DefaultMaxPDFPages = 50
	DefaultMaxOCRPages = 10
	DefaultOCRDPI      = 150
)

// AllowedExtensions lists the accepted upload types, without the dot.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "pdf", "docx", "doc", "txt", "eml"}

var imageExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp"}

var (
	// ErrUnsupportedType rejects files whose extension is not allowed.
	ErrUnsupportedType = errors.NewStd("File type not supported. Allowed: images, PDF, DOCX, TXT")
	// ErrExtraction marks every other extraction failure.
	ErrExtraction = errors.NewStd("text extraction failed")
	// ErrTooLarge rejects input above the configured size.
	ErrTooLarge = errors.NewStd("File too large")
)

// Error carries a message meant for the uploader.
type Error struct {
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// fail builds an extraction error with a user-facing message
func fail(format, msg string, cause error) error {
	b := errors.New(&Error{Message: msg, cause: ErrExtraction}).
		Component("extract").
		Category(errors.CategoryFileParsing).
		Context("format", format)
	if cause != nil {
		b = b.Context("cause", cause.Error())
	}
	return b.Build()
}

// Config holds extraction limits and external tool locations.
type Config struct {
	MaxSize       int64
	TesseractPath string
	PdftoppmPath  string
	MaxPDFPages   int
	MaxOCRPages   int
	OCRDPI        int
	OCRLanguage   string
}

// ConfigFromSettings maps upload settings, filling defaults.
func ConfigFromSettings(s *conf.UploadSettings) Config {
	c := Config{
		MaxSize:       s.MaxSize,
		TesseractPath: s.TesseractPath,
		PdftoppmPath:  s.PdftoppmPath,
		MaxPDFPages:   s.MaxPDFPages,
		MaxOCRPages:   s.MaxOCRPages,
		OCRDPI:        s.OCRDPI,
		OCRLanguage:   s.OCRLanguage,
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MaxPDFPages <= 0 {
		c.MaxPDFPages = DefaultMaxPDFPages
	}
	if c.MaxOCRPages <= 0 {
		c.MaxOCRPages = DefaultMaxOCRPages
	}
	if c.OCRDPI <= 0 {
		c.OCRDPI = DefaultOCRDPI
	}
	if c.TesseractPath == "" {
		c.TesseractPath = "tesseract"
	}
	if c.PdftoppmPath == "" {
		c.PdftoppmPath = "pdftoppm"
	}
	return c
}

// Extractor converts uploads to text.
type Extractor struct {
	cfg    Config
	runner CommandRunner
	log    logger.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRunner replaces the external command runner.
func WithRunner(r CommandRunner) Option {
	return func(e *Extractor) { e.runner = r }
}

// New creates an Extractor.
func New(cfg Config, opts ...Option) *Extractor {
	e := &Extractor{cfg: cfg, runner: execRunner{}, log: GetLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extension returns the lower-case extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Allowed reports whether filename has an accepted extension.
func Allowed(filename string) bool {
	return slices.Contains(AllowedExtensions, Extension(filename))
}

// Extract reads r and returns the text of the document named filename.
func (e *Extractor) Extract(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := Extension(filename)
	if !slices.Contains(AllowedExtensions, ext) {
		return "", errors.New(ErrUnsupportedType).
			Component("extract").
			Category(errors.CategoryValidation).
			Context("extension", ext).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(r, e.cfg.MaxSize+1))
	if err != nil {
		return "", errors.New(err).
			Component("extract").
			Category(errors.CategoryFileIO).
			Context("operation", "read_upload").
			Build()
	}
	if int64(len(data)) > e.cfg.MaxSize {
		return "", errors.New(ErrTooLarge).
			Component("extract").
			Category(errors.CategoryLimit).
			Context("max_size", e.cfg.MaxSize).
			Build()
	}

	e.log.Debug("extracting text",
		logger.String("extension", ext),
		logger.Int("size", len(data)))

	switch {
	case slices.Contains(imageExtensions, ext):
		return e.image(ctx, ext, data)
	case ext == "pdf":
		return e.pdf(ctx, data)
	case ext == "docx":
		return docx(bytes.NewReader(data), int64(len(data)))
	case ext == "doc":
		return "", fail("doc", "Old .doc format not supported. Please convert to .docx or .txt", nil)
	case ext == "eml":
		return eml(data)
	default:
		return plainText(data)
	}
}

// SecureFilename reduces name to a safe base name made of ASCII letters,
// digits, '.', '_' and '-'. Whitespace becomes '_'. The result may be empty.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// GetLogger returns the extract module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("extract")
}
