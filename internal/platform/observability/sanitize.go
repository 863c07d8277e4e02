package observability

import "unicode"

const maxFieldLen = 256

// stripControl drops control runes (except whitespace) and truncates to limit
// so attacker-supplied values cannot forge extra log lines.
func stripControl(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldLen
	}
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return string(out)
}

// SanitizeRoute normalises a route pattern for log fields.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, 180)
}

// SanitizeMethod bounds an HTTP method string for log fields.
func SanitizeMethod(method string) string {
	return stripControl(method, 10)
}

// SanitizeUserID bounds a user identifier before it reaches the logs.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return stripControl(uid, 64)
}
