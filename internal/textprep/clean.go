// Package textprep normalises and tokenises input text exactly the way the
// classification models saw it during training.
package textprep

import (
	"regexp"
	"strings"
)

const (
	urlToken   = " urltoken "
	emailToken = " emailtoken "
)

var (
	urlPattern      = regexp.MustCompile(`http\S+|www\S+|https\S+`)
	emailPattern    = regexp.MustCompile(`\S+@\S+`)
	nonWordPattern  = regexp.MustCompile(`[^a-z0-9\s]`)
	schemePattern   = regexp.MustCompile(`https?://`)
	nonURLCharsPatt = regexp.MustCompile(`[^a-z0-9.\-/]`)
)

// CleanText prepares email and SMS bodies: links and addresses collapse to
// placeholder tokens, punctuation becomes whitespace, and runs of
// whitespace are squeezed to single spaces.
func CleanText(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, urlToken)
	text = emailPattern.ReplaceAllString(text, emailToken)
	text = nonWordPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// CleanURL keeps only the structural characters of a URL after dropping
// the scheme.
func CleanURL(url string) string {
	url = strings.ToLower(url)
	url = schemePattern.ReplaceAllString(url, "")
	return nonURLCharsPatt.ReplaceAllString(url, "")
}
