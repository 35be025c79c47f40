// Package redact scrubs sensitive fragments from strings before they reach
// logs or error responses: connection strings, credentials, bearer tokens,
// and e-mail addresses.
package redact

import "regexp"

// Redaction placeholders
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	TokenPlaceholder      = "[REDACTED_TOKEN]"
	EmailPlaceholder      = "[REDACTED_EMAIL]"
)

var (
	// Database connection strings with inline credentials
	dbConnRegex = regexp.MustCompile(`(?i)(postgres|postgresql|mysql|redis)://[^@\s]+@`)

	// password=..., passwd: ... style fragments
	passwordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]['"]?)[^'"&\s]{3,}`)

	// Three-part base64url JWT tokens
	jwtTokenRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// E-mail addresses (reminder recipients show up in transport errors)
	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// String redacts sensitive fragments from the given string.
func String(s string) string {
	if s == "" {
		return s
	}
	s = dbConnRegex.ReplaceAllString(s, CredentialPlaceholder+"@")
	s = passwordRegex.ReplaceAllString(s, "$1$2"+CredentialPlaceholder)
	s = jwtTokenRegex.ReplaceAllString(s, TokenPlaceholder)
	s = emailRegex.ReplaceAllString(s, EmailPlaceholder)
	return s
}

// Error redacts the message of the given error. A nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
