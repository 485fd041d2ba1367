package store

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// Entities keep fields they do not model so a cycle run by this service does
// not strip data written by another bot version.

func jsonFields(v interface{}) map[string]bool {
	t := reflect.TypeOf(v)
	out := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		out[name] = true
	}
	return out
}

func extraFields(b []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	for k, raw := range all {
		if known[k] {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(buf.Bytes())
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func marshalWithExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	return marshalEntity(v, extra, nil)
}

// idKinds records id fields whose JSON kind on disk differs from the one this
// package writes by default: true for a number, false for a string.
type idKinds map[string]bool

// numericByDefault reports whether a value of the named field is written as a
// JSON number when nothing was loaded for it.
func numericByDefault(name, value string) bool {
	return name == "chat_id" && isCanonicalInt(value)
}

func isCanonicalInt(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}

func isNumberLiteral(s string) bool {
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal([]byte(s), &n) == nil
}

// normalizeIDs rewrites numeric values of the named id fields as strings so
// they decode into string-typed fields, and reports the kinds that need to be
// restored on save.
func normalizeIDs(b []byte, names ...string) ([]byte, idKinds, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, nil, err
	}
	var kinds idKinds
	changed := false
	for _, name := range names {
		raw := bytes.TrimSpace(all[name])
		if len(raw) == 0 {
			continue
		}
		var value string
		var numeric bool
		switch {
		case raw[0] == '"':
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, nil, err
			}
		case isNumberLiteral(string(raw)):
			value, numeric = string(raw), true
			q, err := json.Marshal(value)
			if err != nil {
				return nil, nil, err
			}
			all[name] = q
			changed = true
		default:
			continue
		}
		if numeric != numericByDefault(name, value) {
			if kinds == nil {
				kinds = idKinds{}
			}
			kinds[name] = numeric
		}
	}
	if !changed {
		return b, kinds, nil
	}
	out, err := json.Marshal(all)
	return out, kinds, err
}

func marshalEntity(v interface{}, extra map[string]json.RawMessage, kinds idKinds) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || (len(extra) == 0 && len(kinds) == 0) {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = raw
		}
	}
	for name, numeric := range kinds {
		raw, ok := merged[name]
		if !ok || len(raw) == 0 {
			continue
		}
		if raw[0] == '"' {
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, err
			}
			if numeric && isNumberLiteral(value) {
				merged[name] = json.RawMessage(value)
			}
			continue
		}
		if !numeric && isNumberLiteral(string(raw)) {
			q, err := json.Marshal(string(raw))
			if err != nil {
				return nil, err
			}
			merged[name] = q
		}
	}
	return json.Marshal(merged)
}

// ChatID is a Telegram chat identifier. Bots persist it as a JSON number, the
// console may receive it as a string; both decode to the same value. A stored
// record keeps the kind it was loaded with.
type ChatID string

func (c ChatID) MarshalJSON() ([]byte, error) {
	if isCanonicalInt(string(c)) {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

func (c *ChatID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*c = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ChatID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = ChatID(n.String())
	return nil
}

func (c ChatID) String() string { return string(c) }
