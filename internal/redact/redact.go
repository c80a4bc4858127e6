package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// Provider keys
	regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),

	// Generic API keys and tokens in key=value form
	regexp.MustCompile(`(?i)(api[_ -]?key|secret[_-]?key|access[_-]?token|auth[_-]?token|token)\s*[=:]\s*['"]?[A-Za-z0-9_.-]{8,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),

	// Basic auth in URLs
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),

	// One-time codes following an otp/code label
	regexp.MustCompile(`(?i)\b(otp|2fa|verification code|one-time code)\s*[=:]?\s*\d{4,8}\b`),

	// Password-like assignments
	regexp.MustCompile(`(?i)(password|passwd|pwd|passphrase|secret)\s*[=:]\s*['"]?[^\s'"]{4,}['"]?`),
}

// Redact replaces secret-looking spans of input with Placeholder.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, Placeholder)
	}
	return result
}

// RedactEnvVars masks the value of NAME=value pairs whose name looks
// sensitive.
func RedactEnvVars(envVars []string) []string {
	sensitiveEnvNames := []string{
		"API_KEY",
		"SECRET",
		"TOKEN",
		"PASSWORD",
		"PASSWD",
		"CREDENTIAL",
		"AWS_ACCESS_KEY_ID",
		"DATABASE_URL",
	}

	result := make([]string, 0, len(envVars))
	for _, env := range envVars {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			result = append(result, env)
			continue
		}

		name := strings.ToUpper(parts[0])
		isSensitive := false
		for _, sensitive := range sensitiveEnvNames {
			if strings.Contains(name, sensitive) {
				isSensitive = true
				break
			}
		}

		if isSensitive && parts[1] != "" {
			result = append(result, parts[0]+"="+Placeholder)
		} else {
			result = append(result, env)
		}
	}
	return result
}
