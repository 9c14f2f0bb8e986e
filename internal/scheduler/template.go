package scheduler

import "strings"

// FallbackBody is the generic message body used when a company has no active
// template for the message kind.
const FallbackBody = "Olá, [CLIENTE]! [EMPRESA]"

// RenderBody substitutes the bracket placeholders in a template body.
// A nil body falls back to the generic text. Missing values substitute as
// empty strings; rendering never fails.
func RenderBody(body *string, clientName, companyName, dateTimeBR string) string {
	text := FallbackBody
	if body != nil && *body != "" {
		text = *body
	}

	r := strings.NewReplacer(
		"[CLIENTE]", clientName,
		"[EMPRESA]", companyName,
		"[DATA_HORA]", dateTimeBR,
	)
	return r.Replace(text)
}
