package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time assertions that PayloadTemplate round-trips through JSONB
// columns. Scan is on the pointer receiver; Value on the value receiver.
var (
	_ sql.Scanner   = (*PayloadTemplate)(nil)
	_ driver.Valuer = PayloadTemplate(nil)
)

// PayloadTemplate is the provider's outbound payload skeleton: an arbitrary
// JSON object whose string leaves may carry {phone}/{text}/[PHONE]/[TEXT]
// placeholders. Stored as JSONB on messaging_providers.
type PayloadTemplate map[string]any

// Scan implements sql.Scanner for reading JSONB from the database.
func (pt *PayloadTemplate) Scan(value any) error {
	if value == nil {
		*pt = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("payload template: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, pt)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (pt PayloadTemplate) Value() (driver.Value, error) {
	if pt == nil {
		return nil, nil
	}
	return json.Marshal(pt)
}

// Clone returns a deep copy of the template so payload construction never
// mutates the record loaded from the store.
func (pt PayloadTemplate) Clone() PayloadTemplate {
	if pt == nil {
		return nil
	}
	out := make(PayloadTemplate, len(pt))
	for k, v := range pt {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneJSONValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneJSONValue(e)
		}
		return s
	default:
		return v
	}
}
