package remote

import (
	"encoding/json"
	"fmt"

	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

// DecodeEntity unwraps a single-entity response such as {"Customer": {...}}.
func DecodeEntity(raw []byte, entityName string, out any) error {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %v: %w", entityName, err, syncerrors.ErrInternal)
	}
	body, ok := env[entityName]
	if !ok {
		return fmt.Errorf("response has no %s: %w", entityName, syncerrors.ErrInternal)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %v: %w", entityName, err, syncerrors.ErrInternal)
	}
	return nil
}

// DecodeQuery unwraps {"QueryResponse": {"<entityName>": [...]}} into out,
// which must be a pointer to a slice. An empty result leaves out untouched.
func DecodeQuery(raw []byte, entityName string, out any) error {
	var env struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode query response: %v: %w", err, syncerrors.ErrInternal)
	}
	rows, ok := env.QueryResponse[entityName]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(rows, out); err != nil {
		return fmt.Errorf("decode %s rows: %v: %w", entityName, err, syncerrors.ErrInternal)
	}
	return nil
}
