package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args...) //nolint:gosec // tool paths come from settings
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// ocrFile runs tesseract on an image file and returns the trimmed text
func (e *Extractor) ocrFile(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout"}
	if e.cfg.OCRLanguage != "" {
		args = append(args, "-l", e.cfg.OCRLanguage)
	}
	out, err := e.runner.Run(ctx, e.cfg.TesseractPath, args...)
	if err != nil {
		return "", errors.New(err).
			Component("extract").
			Category(errors.CategoryCommand).
			Context("tool", "tesseract").
			Build()
	}
	return strings.TrimSpace(string(out)), nil
}

// withTempFile writes data to a private temporary directory for the
// duration of fn
func withTempFile(ext string, data []byte, fn func(dir, path string) error) error {
	dir, err := os.MkdirTemp("", "spamguard-extract-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "upload."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return fn(dir, path)
}

func (e *Extractor) image(ctx context.Context, ext string, data []byte) (string, error) {
	var text string
	err := withTempFile(ext, data, func(_, path string) error {
		var err error
		text, err = e.ocrFile(ctx, path)
		return err
	})
	if err != nil {
		e.log.Warn("image OCR failed", logger.Error(err))
		return "", fail("image", "Error extracting text from image: "+err.Error(), err)
	}
	if text == "" {
		return "", fail("image", "No text found in image (OCR returned empty result)", nil)
	}
	return text, nil
}

// ocrPDF rasterises the first pages of a PDF and OCRs each one. Pages
// without text are skipped.
func (e *Extractor) ocrPDF(ctx context.Context, data []byte) (string, error) {
	var parts []string
	err := withTempFile("pdf", data, func(dir, path string) error {
		prefix := filepath.Join(dir, "page")
		_, err := e.runner.Run(ctx, e.cfg.PdftoppmPath,
			"-f", "1",
			"-l", strconv.Itoa(e.cfg.MaxOCRPages),
			"-r", strconv.Itoa(e.cfg.OCRDPI),
			"-png", path, prefix)
		if err != nil {
			return errors.New(err).
				Component("extract").
				Category(errors.CategoryCommand).
				Context("tool", "pdftoppm").
				Build()
		}

		pages, err := renderedPages(prefix)
		if err != nil {
			return err
		}
		for i, page := range pages {
			text, err := e.ocrFile(ctx, page)
			if err != nil {
				return err
			}
			if text != "" {
				parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", i+1, text))
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(parts, "\n\n"), nil
}

// renderedPages lists pdftoppm output in page order. pdftoppm pads page
// numbers to the width of the last page, so lexical order is not enough.
func renderedPages(prefix string) ([]string, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	pageNum := func(p string) int {
		s := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), filepath.Base(prefix)+"-"), ".png")
		n, _ := strconv.Atoi(s)
		return n
	}
	slices.SortFunc(matches, func(a, b string) int { return pageNum(a) - pageNum(b) })
	return matches, nil
}
