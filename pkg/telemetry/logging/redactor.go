package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/aegis/pkg/config"
)

// Redactor redacts PII and credentials from log attributes.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names. Custom patterns with the same name replace them.
const (
	PatternBearerToken = "bearer_token"
	PatternAPIKey      = "api_key"
	PatternPassword    = "password"
	PatternEmail       = "email"
	PatternCreditCard  = "credit_card"
	PatternSSN         = "ssn"
	PatternPhone       = "phone"
)

// Patterns run in this order; card numbers must be masked before the
// shorter SSN and phone shapes can match inside them.
var defaultPatterns = []struct {
	name, regex, replacement string
}{
	{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	{PatternAPIKey, `(sk-[a-zA-Z0-9]{8,}|AIza[0-9A-Za-z\-_]{20,})`, "***"},
	{PatternPassword, `(?i)(password|passwd|pwd)[:=]\s*\S+`, "$1=***"},
	{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[EMAIL]"},
	{PatternCreditCard, `\b(?:\d[ -]?){12,15}\d\b`, "[CARD]"},
	{PatternSSN, `\b\d{3}-\d{2}-\d{4}\b`, "[SSN]"},
	{PatternPhone, `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`, "[PHONE]"},
}

// sensitiveKeys name attributes whose values are never logged verbatim.
// Prompt and response text are reduced to their length.
var sensitiveKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "private_key",
}

var contentKeys = map[string]bool{
	"prompt":        true,
	"response":      true,
	"response_text": true,
}

// NewRedactor creates a Redactor with the built-in patterns plus custom.
// Invalid custom patterns are skipped; config validation reports them.
func NewRedactor(custom []config.RedactPattern) *Redactor {
	r := &Redactor{}
	overridden := make(map[string]bool, len(custom))
	for _, p := range custom {
		overridden[p.Name] = true
	}
	for _, p := range defaultPatterns {
		if overridden[p.name] {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
	for _, p := range custom {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{name: p.Name, regex: re, replacement: p.Replacement})
	}
	return r
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr redacts a single attribute, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	key := strings.ToLower(a.Key)

	if v.Kind() == slog.KindGroup {
		attrs := v.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if contentKeys[key] {
		if v.Kind() == slog.KindString {
			return slog.String(a.Key, fmt.Sprintf("[%d chars]", len([]rune(v.String()))))
		}
		return slog.String(a.Key, "[redacted]")
	}
	if isSensitiveKey(key) {
		return slog.String(a.Key, maskValue(v))
	}

	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func isSensitiveKey(key string) bool {
	for _, s := range sensitiveKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
}

// maskValue keeps a four character prefix of long strings for correlation.
func maskValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return "***"
	}
	s := v.String()
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***"
}
