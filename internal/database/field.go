package database

import (
	"database/sql/driver"
	"encoding/json"

	"moff.io/moff-wallet/pkg/errors"
)

type JSONBMap map[string]interface{}

func (j JSONBMap) Value() (driver.Value, error) {
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *JSONBMap) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*j = nil
		return nil
	default:
		return errors.Errorf("scan jsonb from %T", value)
	}
	return json.Unmarshal(raw, j)
}
