package audit

import (
	"strings"
)

var sensitiveKeys = []string{"token", "password", "secret", "signedurl", "signed_url", "email"}

// MaskMetadata returns a copy of metadata with sensitive values masked.
// Tokens keep their first 3 characters, emails their first 2 local-part
// characters plus the domain, URLs lose their query string, and passwords
// and secrets are fully redacted. Nested maps are masked recursively.
func MaskMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	masked := make(map[string]any, len(metadata))
	for key, value := range metadata {
		masked[key] = maskValue(key, value)
	}
	return masked
}

func maskValue(key string, value any) any {
	if nested, ok := value.(map[string]any); ok {
		return MaskMetadata(nested)
	}

	str, ok := value.(string)
	if !ok {
		return value
	}

	lower := strings.ToLower(key)
	switch {
	case strings.Contains(lower, "password"), strings.Contains(lower, "secret"):
		return "***"
	case strings.Contains(lower, "signedurl"), strings.Contains(lower, "signed_url"), strings.Contains(lower, "url"):
		return StripQuery(str)
	case strings.Contains(lower, "email"):
		return MaskEmail(str)
	case strings.Contains(lower, "token"):
		return MaskToken(str)
	}

	return value
}

// MaskToken shows the first 3 characters of a token followed by "***".
func MaskToken(token string) string {
	if len(token) <= 3 {
		return "***"
	}
	return token[:3] + "***"
}

// MaskEmail shows the first 2 characters of the local part plus the domain.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return "***"
	}

	local := email[:at]
	domain := email[at:]
	if len(local) <= 2 {
		return local + "***" + domain
	}
	return local[:2] + "***" + domain
}

// StripQuery removes the query string from a URL, keeping only the path.
func StripQuery(url string) string {
	if i := strings.Index(url, "?"); i >= 0 {
		return url[:i]
	}
	return url
}
