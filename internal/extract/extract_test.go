package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/errors"
)

// fakeRunner imitates pdftoppm by writing page images and tesseract by
// returning canned text per file name
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	pages    []string
	ocr      map[string]string
	failTool string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()

	if name == f.failTool {
		return nil, errors.NewStd("exec: \"" + name + "\": executable file not found in $PATH")
	}
	switch filepath.Base(name) {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for _, p := range f.pages {
			if err := os.WriteFile(prefix+"-"+p+".png", []byte("png"), 0o600); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "tesseract":
		return []byte(f.ocr[filepath.Base(args[0])]), nil
	}
	return nil, errors.NewStd("unexpected tool " + name)
}

func newTestExtractor(r CommandRunner) *Extractor {
	return New(ConfigFromSettings(&conf.UploadSettings{}), WithRunner(r))
}

func extractMessage(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return err.Error()
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	c := ConfigFromSettings(&conf.UploadSettings{})
	assert.Equal(t, int64(16<<20), c.MaxSize)
	assert.Equal(t, 50, c.MaxPDFPages)
	assert.Equal(t, 10, c.MaxOCRPages)
	assert.Equal(t, 150, c.OCRDPI)
	assert.Equal(t, "tesseract", c.TesseractPath)
	assert.Equal(t, "pdftoppm", c.PdftoppmPath)
}

func TestAllowedAndUnsupported(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a.PNG", "scan.jpeg", "x.pdf", "y.DOCX", "z.doc", "n.txt", "m.eml", "p.gif", "q.bmp", "r.jpg"} {
		assert.True(t, Allowed(name), name)
	}
	assert.False(t, Allowed("evil.exe"))
	assert.False(t, Allowed("noext"))

	_, err := newTestExtractor(&fakeRunner{}).Extract(context.Background(), "run.sh", strings.NewReader("echo"))
	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, "File type not supported. Allowed: images, PDF, DOCX, TXT", err.Error())
}

func TestSecureFilename(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"My Report.pdf":          "My_Report.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\x\doc.docx`:    "doc.docx",
		".hidden.txt":            "hidden.txt",
		"résumé.txt":             "resume.txt",
		"spam<script>.eml":       "spamscript.eml",
		"..":                     "",
		"inv oice  2024 (1).png": "inv_oice__2024_1.png",
	}
	for in, want := range tests {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

func TestTooLarge(t *testing.T) {
	t.Parallel()

	e := New(Config{MaxSize: 4}, WithRunner(&fakeRunner{}))
	_, err := e.Extract(context.Background(), "a.txt", strings.NewReader("12345"))
	require.ErrorIs(t, err, ErrTooLarge)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestExtractor(&fakeRunner{})

	got, err := e.Extract(ctx, "a.txt", strings.NewReader("  héllo wörld \n"))
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld", got)

	// ISO-8859-1 "café"
	got, err = e.Extract(ctx, "b.txt", bytes.NewReader([]byte{'c', 'a', 'f', 0xe9}))
	require.NoError(t, err)
	assert.Equal(t, "café", got)

	// Windows-1252 curly quotes
	got, err = e.Extract(ctx, "c.txt", bytes.NewReader([]byte{0x93, 'h', 'i', 0x94}))
	require.NoError(t, err)
	assert.Equal(t, "\u201chi\u201d", got)

	_, err = e.Extract(ctx, "d.txt", strings.NewReader("   \n\t"))
	assert.Equal(t, "No text found in file", extractMessage(t, err))
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestDoc(t *testing.T) {
	t.Parallel()

	_, err := newTestExtractor(&fakeRunner{}).Extract(context.Background(), "old.doc", strings.NewReader("binary"))
	assert.Equal(t, "Old .doc format not supported. Please convert to .docx or .txt", extractMessage(t, err))
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestExtractor(&fakeRunner{})

	data := buildDocx(t,
		`<w:p><w:r><w:t>Dear customer,</w:t></w:r></w:p>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Account</w:t></w:r></w:p></w:tc><w:tc><w:p></w:p></w:tc><w:tc><w:p><w:r><w:t>Locked</w:t></w:r></w:p></w:tc></w:tr>`+
			`<w:tr><w:tc><w:p></w:p></w:tc></w:tr></w:tbl>`+
			`<w:p><w:r><w:t xml:space="preserve">Click </w:t></w:r><w:r><w:t>here</w:t></w:r></w:p>`+
			`<w:p></w:p>`)

	got, err := e.Extract(ctx, "letter.docx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "Dear customer,\nClick here\nAccount | Locked", got)

	_, err = e.Extract(ctx, "empty.docx", bytes.NewReader(buildDocx(t, `<w:p></w:p>`)))
	assert.Equal(t, "No text found in document", extractMessage(t, err))

	_, err = e.Extract(ctx, "broken.docx", strings.NewReader("not a zip"))
	assert.True(t, strings.HasPrefix(extractMessage(t, err), "Error extracting text from DOCX"))
}

func TestEML(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestExtractor(&fakeRunner{})

	multipartMsg := "Subject: =?UTF-8?B?WW91IHdvbiE=?=\r\n" +
		"From: Prize Team <prize@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Claim your =E2=82=AC1000 now\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>ignored</p>\r\n" +
		"--XYZ--\r\n"

	got, err := e.Extract(ctx, "prize.eml", strings.NewReader(multipartMsg))
	require.NoError(t, err)
	assert.Equal(t, "Subject: You won!\nFrom: Prize Team <prize@example.com>\nClaim your €1000 now", got)

	htmlOnly := "Subject: Hi\r\nContent-Type: text/html\r\nContent-Transfer-Encoding: base64\r\n\r\n" +
		"PHA+SGVsbG8gPGI+d29ybGQ8L2I+PC9wPg==\r\n"
	got, err = e.Extract(ctx, "h.eml", strings.NewReader(htmlOnly))
	require.NoError(t, err)
	assert.Contains(t, got, "Subject: Hi")
	assert.Contains(t, got, "Hello world")
	assert.NotContains(t, got, "<p>")

	got, err = e.Extract(ctx, "plain.eml", strings.NewReader("just some words without headers"))
	require.NoError(t, err)
	assert.Equal(t, "just some words without headers", got)
}

func TestImageOCR(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := &fakeRunner{ocr: map[string]string{"upload.png": "  WIN A PRIZE \n"}}
	got, err := newTestExtractor(r).Extract(ctx, "shot.PNG", strings.NewReader("fake image"))
	require.NoError(t, err)
	assert.Equal(t, "WIN A PRIZE", got)
	require.Len(t, r.calls, 1)
	assert.True(t, strings.HasPrefix(r.calls[0], "tesseract "))
	assert.True(t, strings.HasSuffix(r.calls[0], " stdout"))

	r = &fakeRunner{ocr: map[string]string{}}
	_, err = newTestExtractor(r).Extract(ctx, "blank.jpg", strings.NewReader("fake"))
	assert.Equal(t, "No text found in image (OCR returned empty result)", extractMessage(t, err))

	r = &fakeRunner{failTool: "tesseract"}
	_, err = newTestExtractor(r).Extract(ctx, "x.gif", strings.NewReader("fake"))
	assert.True(t, strings.HasPrefix(extractMessage(t, err), "Error extracting text from image: "))
}

func TestPDFOCR(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := &fakeRunner{
		pages: []string{"10", "1", "2"},
		ocr: map[string]string{
			"page-1.png":  "first",
			"page-10.png": "tenth",
		},
	}
	e := newTestExtractor(r)

	got, err := e.ocrPDF(ctx, []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\nfirst\n\n--- Page 3 ---\ntenth", got)
	assert.Contains(t, r.calls[0], "-f 1 -l 10 -r 150 -png")
}

func TestPDFErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestExtractor(&fakeRunner{})

	_, err := e.Extract(ctx, "bad.pdf", strings.NewReader("this is not a pdf at all"))
	assert.Equal(t, "PDF file appears to be corrupted or incomplete.", extractMessage(t, err))

	_, err = e.Extract(ctx, "cut.pdf", strings.NewReader("%PDF-1.4\n1 0 obj"))
	assert.Equal(t, "PDF file appears to be corrupted or incomplete.", extractMessage(t, err))
}
