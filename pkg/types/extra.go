package types

import (
	"encoding/json"
)

// Extra holds response keys the monitor sent that have no typed field. The
// portal adds fields between firmware releases so these are kept rather than
// dropped.
type Extra map[string]json.RawMessage

// String returns the extra key as a string, or "" if it is missing or not a
// string.
func (e Extra) String(key string) string {
	var s string
	if raw, ok := e[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// Float returns the extra key as a float64. The second return is false if the
// key is missing or not numeric.
func (e Extra) Float(key string) (float64, bool) {
	raw, ok := e[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// decodeWithExtra unmarshals data into dest and returns every top-level key of
// data that dest did not claim. dest must be a pointer to a struct without
// omitempty tags so that marshaling it reports every known key.
func decodeWithExtra(data []byte, dest any) (Extra, error) {
	if err := json.Unmarshal(data, dest); err != nil {
		return nil, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	known, err := json.Marshal(dest)
	if err != nil {
		return nil, err
	}
	var knownKeys map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownKeys); err != nil {
		return nil, err
	}

	var extra Extra
	for k, v := range all {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[k] = v
	}
	return extra, nil
}
