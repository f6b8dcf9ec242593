// ABOUTME: Sensitive data redaction for URLs written to logs and reports
// ABOUTME: Masks userinfo, tokens, API keys, and other secrets in URLs

package observability

import (
	"net/url"
	"regexp"
)

// RedactionPlaceholder is the replacement text for redacted values.
const RedactionPlaceholder = "REDACTED"

// sensitivePatterns contains regex patterns for sensitive data in strings.
// Values stop at whitespace or & so query parameters stay separated.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd)=[^\s&]+`),
	regexp.MustCompile(`(?i)(token|auth_token|access_token)=[^\s&]+`),
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)=[^\s&]+`),
	regexp.MustCompile(`(?i)(secret|client_secret)=[^\s&]+`),
	regexp.MustCompile(`(?i)Bearer\s+[^\s]+`),
}

var sensitiveReplacements = []string{
	"${1}=" + RedactionPlaceholder,
	"${1}=" + RedactionPlaceholder,
	"${1}=" + RedactionPlaceholder,
	"${1}=" + RedactionPlaceholder,
	"Bearer " + RedactionPlaceholder,
}

// RedactSensitive replaces key=value secrets and bearer tokens in a string.
func RedactSensitive(value string) string {
	result := value
	for i, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, sensitiveReplacements[i])
	}
	return result
}

// RedactURL masks the userinfo of a URL and any secrets in its query.
// Strings that do not parse as URLs (flake references such as
// "github:owner/repo") only get the pattern-based redaction.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return RedactSensitive(raw)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), RedactionPlaceholder)
	} else {
		u.User = url.User(RedactionPlaceholder)
	}
	return RedactSensitive(u.String())
}
