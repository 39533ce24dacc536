package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// idField is the system field carrying a record's storage id.
const idField = "$id"

// Field is one loosely-typed value. The API sends numbers as strings, lists
// as arrays, and leaves blank fields as "" or null.
type Field struct {
	Value json.RawMessage `json:"value"`
}

// Record is a single record as sent and received by the API.
type Record map[string]Field

// value wraps v for a write request.
func value(v any) Field {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte("null")
	}
	return Field{Value: raw}
}

func (r Record) id() string {
	return r.String(idField)
}

func (r Record) raw(name string) json.RawMessage {
	f, ok := r[name]
	if !ok {
		return nil
	}
	raw := bytes.TrimSpace(f.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}

// String returns the field as a string. Numbers are rendered as written.
func (r Record) String(name string) string {
	raw := r.raw(name)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Strings returns a multi-value field. A single string is accepted and split
// on commas.
func (r Record) Strings(name string) []string {
	raw := r.raw(name)
	if raw == nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Int returns a numeric field. ok is false when the field is blank.
func (r Record) Int(name string) (v int, ok bool, err error) {
	s := strings.TrimSpace(r.String(name))
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("field %s: %q is not a number", name, s)
	}
	return int(f), true, nil
}

// Time returns a timestamp field. ok is false when the field is blank.
func (r Record) Time(name string) (t time.Time, ok bool, err error) {
	s := strings.TrimSpace(r.String(name))
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("field %s: %w", name, err)
	}
	return t, true, nil
}
