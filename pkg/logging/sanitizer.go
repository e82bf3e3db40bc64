package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// Bitrix inbound webhook URLs embed the auth token as a path segment:
	// https://tenant.bitrix24.ru/rest/<user_id>/<token>/...
	webhookTokenPattern = regexp.MustCompile(`/rest/(\d+)/[A-Za-z0-9_-]+`)

	// Passwords in key=value connection strings.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host credentials in URL-style DSNs.
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeWebhookURL masks the secret token segment of a Bitrix webhook URL.
// Use this before logging any webhook base URL or full method URL.
func SanitizeWebhookURL(url string) string {
	if url == "" {
		return ""
	}
	return webhookTokenPattern.ReplaceAllString(url, "/rest/${1}/"+RedactedText)
}

// SanitizeDSN removes credentials from a database connection string.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// SanitizeError sanitizes error text that might echo a webhook URL or DSN.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := webhookTokenPattern.ReplaceAllString(err.Error(), "/rest/${1}/"+RedactedText)
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}
