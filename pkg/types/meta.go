package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Meta is a free-form JSON object column. Transactions use it to retain
// provider references (flw_ref, tx_ref, parent_id) across refund flows.
type Meta map[string]any

// Value implements driver.Valuer for jsonb storage.
func (m Meta) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Meta) Scan(src any) error {
	if src == nil {
		*m = Meta{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("meta: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*m = Meta{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// GetString returns the string value stored at key, or "".
func (m Meta) GetString(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Merge returns a copy of m overlaid with the entries of other.
func (m Meta) Merge(other Meta) Meta {
	merged := Meta{}
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}
