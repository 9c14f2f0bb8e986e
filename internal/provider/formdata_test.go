package provider

import (
	"bytes"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lembra/internal/types"
)

// parseForm reads every field of a multipart body into a map.
func parseForm(t *testing.T, body []byte, contentType string) map[string]string {
	t.Helper()
	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)

	fields := make(map[string]string)
	for k, vs := range form.Value {
		require.Len(t, vs, 1, "field %s written more than once", k)
		fields[k] = vs[0]
	}
	return fields
}

func TestBuildFormDataFieldRules(t *testing.T) {
	p := types.MessagingProvider{
		QueueID: "q-1",
		PayloadTemplate: types.PayloadTemplate{
			"phone":    "{phone}",
			"message":  "{text}",
			"empty":    "",
			"missing":  nil,
			"sendPush": false,
			"priority": true,
			"limit":    float64(3),
		},
	}

	buf, contentType, err := BuildFormData(p, "5511999999999", "oi")
	require.NoError(t, err)

	raw := buf.Bytes()
	fields := parseForm(t, raw, contentType)

	assert.Equal(t, "5511999999999", fields["phone"])
	assert.Equal(t, "oi", fields["message"])
	assert.Equal(t, "q-1", fields["queueId"])
	assert.Equal(t, "3", fields["limit"])

	// false is a value, not an absence.
	assert.Equal(t, "false", fields["sendPush"])
	assert.Equal(t, "true", fields["priority"])

	// nil and empty-string fields are omitted entirely.
	_, hasEmpty := fields["empty"]
	assert.False(t, hasEmpty, "empty string field must be omitted")
	_, hasMissing := fields["missing"]
	assert.False(t, hasMissing, "nil field must be omitted")

	// userId resolves to empty (neither provider nor template set it) and is
	// therefore omitted too.
	_, hasUserID := fields["userId"]
	assert.False(t, hasUserID)
}

func TestBuildFormDataSubstitutedToEmptyIsOmitted(t *testing.T) {
	p := types.MessagingProvider{
		PayloadTemplate: types.PayloadTemplate{"note": "{text}"},
	}
	buf, contentType, err := BuildFormData(p, "5511999999999", "")
	require.NoError(t, err)

	raw := buf.Bytes()
	fields := parseForm(t, raw, contentType)
	_, ok := fields["note"]
	assert.False(t, ok, "field substituting to empty must be omitted")
}

func TestBuildFormDataNestedValuesAreJSONEncoded(t *testing.T) {
	p := types.MessagingProvider{
		PayloadTemplate: types.PayloadTemplate{
			"options": map[string]any{"body": "{text}"},
		},
	}
	buf, contentType, err := BuildFormData(p, "5511999999999", "oi")
	require.NoError(t, err)

	raw := buf.Bytes()
	fields := parseForm(t, raw, contentType)
	assert.JSONEq(t, `{"body":"oi"}`, fields["options"])
}
