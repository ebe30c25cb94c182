package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
)

const ocrSuffix = "\n\n[Extracted via OCR from scanned PDF]"

func (e *Extractor) pdf(ctx context.Context, data []byte) (string, error) {
	text, err := pdfText(data, e.cfg.MaxPDFPages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}

	// scanned document, fall back to OCR
	e.log.Info("PDF has no text layer, trying OCR", logger.Int("max_pages", e.cfg.MaxOCRPages))
	ocr, err := e.ocrPDF(ctx, data)
	if err != nil {
		e.log.Warn("PDF OCR failed", logger.Error(err))
		if errors.IsCategory(err, errors.CategoryCommand) && isToolMissing(err) {
			return "", fail("pdf", "No text found in PDF (scanned/image-based). Install Poppler and Tesseract for OCR support.", err)
		}
	}
	if ocr == "" {
		return "", fail("pdf", "No text found in PDF. OCR also failed - the PDF may be empty or unreadable.", err)
	}
	return ocr + ocrSuffix, nil
}

// pdfText reads the text layer of at most maxPages pages. Pages that fail
// to decode are skipped.
func pdfText(data []byte, maxPages int) (text string, err error) {
	defer func() {
		// the parser panics on some malformed streams
		if r := recover(); r != nil {
			err = fail("pdf", "PDF file appears to be corrupted or incomplete.", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", classifyPDFError(err)
	}

	total := reader.NumPage()
	limit := min(total, maxPages)

	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= limit; i++ {
		if pageText := pageText(reader.Page(i), fonts); pageText != "" {
			b.WriteString(pageText)
			b.WriteString("\n")
		}
	}
	if limit < total {
		fmt.Fprintf(&b, "\n[Note: Only first %d of %d pages extracted]", limit, total)
	}
	return b.String(), nil
}

func pageText(p pdf.Page, fonts map[string]*pdf.Font) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if p.V.IsNull() {
		return ""
	}
	for _, name := range p.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := p.Font(name)
			fonts[name] = &f
		}
	}
	s, err := p.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return s
}

func classifyPDFError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, pdf.ErrInvalidPassword), strings.Contains(msg, "password"), strings.Contains(msg, "encrypt"):
		return fail("pdf", "PDF is password-protected or encrypted. Please use an unprotected PDF.", err)
	case strings.Contains(msg, "eof"), strings.Contains(msg, "stream"), strings.Contains(msg, "malformed"), strings.Contains(msg, "not a pdf"):
		return fail("pdf", "PDF file appears to be corrupted or incomplete.", err)
	}
	return fail("pdf", "Error reading PDF: "+err.Error(), err)
}

func isToolMissing(err error) bool {
	return strings.Contains(err.Error(), "executable file not found") ||
		strings.Contains(err.Error(), "no such file or directory")
}
