package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

// SparseUpdate builds an update payload carrying id, the version marker and
// only the top-level fields of desired that differ from current. Fields the
// remote added on its side (ids, line numbers, metadata) do not count as a
// difference. A field desired's type declares but omitted because it is
// empty locally is sent as an explicit clear when current still holds a value.
func SparseUpdate(desired any, current map[string]any, id, syncToken string) (map[string]any, error) {
	want, err := toMap(desired)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	for k, v := range want {
		if k == "Id" || k == "SyncToken" {
			continue
		}
		if !contains(current[k], v) {
			payload[k] = v
		}
	}
	for _, k := range ownedFields(desired) {
		if _, ok := want[k]; ok {
			continue
		}
		if v, ok := current[k]; ok && !isEmpty(v) {
			payload[k] = cleared(v)
		}
	}
	payload["Id"] = id
	payload["SyncToken"] = syncToken
	payload["sparse"] = true
	return payload, nil
}

// ChangedFields lists the data fields of an update payload, for logging.
func ChangedFields(payload map[string]any) []string {
	fields := make([]string, 0, len(payload))
	for k := range payload {
		if k == "Id" || k == "SyncToken" || k == "sparse" {
			continue
		}
		fields = append(fields, k)
	}
	return fields
}

// contains reports whether have holds every value in want.
func contains(have, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range w {
			if !contains(h[k], v) {
				return false
			}
		}
		return true
	case []any:
		h, ok := have.([]any)
		if !ok || len(h) != len(w) {
			return false
		}
		for i := range w {
			if !contains(h[i], w[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(have, want)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %v: %w", err, syncerrors.ErrInvalidRecord)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode record: %v: %w", err, syncerrors.ErrInvalidRecord)
	}
	return out, nil
}

// ownedFields lists the JSON names of the top-level fields a record struct
// declares, excluding the identity pair.
func ownedFields(v any) []string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-", "Id", "SyncToken":
			continue
		case "":
			name = f.Name
		}
		fields = append(fields, name)
	}
	return fields
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return x == 0
	case bool:
		return !x
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// cleared is the value that empties a field of the remote's current type.
func cleared(v any) any {
	switch v.(type) {
	case string:
		return ""
	case float64:
		return float64(0)
	case bool:
		return false
	}
	return nil
}
