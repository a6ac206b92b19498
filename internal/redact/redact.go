// Package redact masks personal data in visitor text before it leaves the
// process.
package redact

import "regexp"

const Placeholder = "[REDACTED]"

var patterns = []*regexp.Regexp{
	// card numbers
	regexp.MustCompile(`\b\d{16}\b`),
	// e-mail addresses
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	// Spanish mobile numbers
	// with or without a country code. The number has to start a word so digit
	// runs such as years are left alone.
	regexp.MustCompile(`(?:\+34[ -]*|\b(?:0034|34)[ -]*|\b)[67][ -]*(?:[0-9][ -]*){7}[0-9]\b`),
}

// String returns s with every sensitive match replaced by Placeholder.
func String(s string) string {
	for _, re := range patterns {
		s = re.ReplaceAllString(s, Placeholder)
	}
	return s
}
