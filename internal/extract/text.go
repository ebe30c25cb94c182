package extract

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/k3a/html2text"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// plainText decodes UTF-8, or ISO-8859-1 when the bytes are not valid
// UTF-8. Input containing C1 control bytes is treated as Windows-1252.
func plainText(data []byte) (string, error) {
	text := strings.TrimSpace(decodeText(data))
	if text == "" {
		return "", fail("txt", "No text found in file", nil)
	}
	return text, nil
}

func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	enc := charmap.ISO8859_1
	if hasC1Controls(data) {
		enc = charmap.Windows1252
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(out)
}

func hasC1Controls(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 && b <= 0x9f {
			return true
		}
	}
	return false
}

// eml returns Subject and From lines followed by the text/plain body
// parts. HTML parts are converted only when no plain part exists. A
// message that does not parse is read as plain text.
func eml(data []byte) (string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return plainText(data)
	}

	dec := new(mime.WordDecoder)
	header := func(key string) string {
		v := msg.Header.Get(key)
		if decoded, err := dec.DecodeHeader(v); err == nil {
			return decoded
		}
		return v
	}

	var lines []string
	if s := header("Subject"); s != "" {
		lines = append(lines, "Subject: "+s)
	}
	if f := header("From"); f != "" {
		lines = append(lines, "From: "+f)
	}

	var plain, html []string
	if err := walkPart(msg.Header, msg.Body, &plain, &html); err != nil {
		return plainText(data)
	}
	switch {
	case len(plain) > 0:
		lines = append(lines, plain...)
	case len(html) > 0:
		for _, h := range html {
			lines = append(lines, html2text.HTML2Text(h))
		}
	}

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return "", fail("eml", "No text found in email file", nil)
	}
	return text, nil
}

// partHeader is the subset of header access walkPart needs
type partHeader interface {
	Get(key string) string
}

// walkPart collects decoded text/plain and text/html bodies, descending
// into multipart containers
func walkPart(h partHeader, body io.Reader, plain, html *[]string) error {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := walkPart(p.Header, p, plain, html); err != nil {
				return err
			}
		}
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(h.Get("Content-Disposition")), "attachment") {
		return nil
	}

	raw, err := io.ReadAll(transferDecoder(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return err
	}
	text := strings.TrimSpace(decodeCharset(params["charset"], raw))
	if text == "" {
		return nil
	}
	if mediaType == "text/plain" {
		*plain = append(*plain, text)
	} else {
		*html = append(*html, text)
	}
	return nil
}

func transferDecoder(enc string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

func decodeCharset(charset string, raw []byte) string {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return decodeText(raw)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return decodeText(raw)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return decodeText(raw)
	}
	return string(out)
}
