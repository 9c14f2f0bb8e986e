package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"sort"
	"strconv"

	"lembra/internal/types"
)

// BuildFormData renders the provider's payload template as a multipart form
// body for one reminder, returning the body and its Content-Type (which
// carries the generated boundary).
//
// Field rules: strings get placeholder substitution and are omitted when
// empty (some gateways reject empty fields); nil values are omitted;
// booleans stringify, and false is still sent, it is not "empty". Numbers
// stringify; nested objects and arrays are substituted and JSON-encoded.
func BuildFormData(p types.MessagingProvider, phoneDigits, messageText string) (*bytes.Buffer, string, error) {
	merged := MergeProviderIdentity(p)
	text := SanitizeText(messageText)

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, k := range keys {
		v := merged[k]
		if v == nil {
			continue
		}

		var field string
		switch val := v.(type) {
		case string:
			field = substituteString(val, phoneDigits, text)
			if field == "" {
				continue
			}
		case bool:
			field = strconv.FormatBool(val)
		case float64:
			field = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			field = strconv.Itoa(val)
		default:
			encoded, err := json.Marshal(SubstituteTree(val, phoneDigits, text))
			if err != nil {
				return nil, "", fmt.Errorf("encoding form field %q: %w", k, err)
			}
			field = string(encoded)
		}

		if err := w.WriteField(k, field); err != nil {
			return nil, "", fmt.Errorf("writing form field %q: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalizing form body: %w", err)
	}

	return &body, w.FormDataContentType(), nil
}
