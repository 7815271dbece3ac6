package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONDocument is a JSON value persisted in a TEXT column. It is stored as a
// string so the same schema works on sqlite and on postgres with the simple protocol.
type JSONDocument json.RawMessage

// Value implements driver.Valuer.
func (j JSONDocument) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("invalid json document")
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONDocument) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case string:
		*j = JSONDocument(v)
	case []byte:
		buf := make([]byte, len(v))
		copy(buf, v)
		*j = JSONDocument(buf)
	default:
		return fmt.Errorf("unsupported json document source %T", src)
	}
	return nil
}

// MarshalJSON keeps the document verbatim when a row is rendered.
func (j JSONDocument) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONDocument) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}
