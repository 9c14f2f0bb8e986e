// Package provider performs the outbound WhatsApp gateway call for one
// reminder. The call is driven entirely by the MessagingProvider record:
// method, URL, auth header, payload template, and encoding.
package provider

import (
	"encoding/json"
	"strings"

	"lembra/internal/types"
)

// SanitizeText prepares a message body for embedding in a provider payload:
// CRLF and bare CR normalize to LF, and ASCII control characters other than
// LF and TAB are stripped.
func SanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 0x20 && r != 0x7f) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// substituteString replaces the phone/text placeholders recognized by
// provider payload templates. Both brace and bracket spellings occur in the
// wild.
func substituteString(s, phone, text string) string {
	r := strings.NewReplacer(
		"{phone}", phone,
		"{text}", text,
		"[PHONE]", phone,
		"[TEXT]", text,
	)
	return r.Replace(s)
}

// SubstituteTree walks a generic JSON value and applies placeholder
// substitution to every string, recursing through objects and arrays.
// Non-string leaves pass through unchanged.
func SubstituteTree(v any, phone, text string) any {
	switch val := v.(type) {
	case string:
		return substituteString(val, phone, text)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = SubstituteTree(child, phone, text)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = SubstituteTree(child, phone, text)
		}
		return out
	default:
		return v
	}
}

// MergeProviderIdentity overlays the provider's userId/queueId onto a copy of
// its payload template. Provider-configured values win; when the provider
// leaves one empty, whatever the template already carries is preserved, and
// only if neither specifies a value does it default to the empty string.
func MergeProviderIdentity(p types.MessagingProvider) map[string]any {
	merged := map[string]any(p.PayloadTemplate.Clone())
	if merged == nil {
		merged = make(map[string]any)
	}

	merged["userId"] = mergeIdentityField(p.UserID, merged["userId"])
	merged["queueId"] = mergeIdentityField(p.QueueID, merged["queueId"])
	return merged
}

func mergeIdentityField(configured string, fromTemplate any) string {
	if configured != "" {
		return configured
	}
	if s, ok := fromTemplate.(string); ok {
		return s
	}
	return ""
}

// BuildJSONPayload renders the provider's payload template into the JSON
// request body for one reminder. The message text is sanitized before
// substitution.
func BuildJSONPayload(p types.MessagingProvider, phoneDigits, messageText string) ([]byte, error) {
	merged := MergeProviderIdentity(p)
	substituted := SubstituteTree(merged, phoneDigits, SanitizeText(messageText))
	return json.Marshal(substituted)
}
