// Package normalize implements the second pipeline stage: turn raw flight
// payloads into per-airline and combined CSV tables.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Separator joins nested field names, e.g. departure.scheduled becomes departure_scheduled.
const Separator = "_"

// recordsField is the top-level payload field holding the flight records.
const recordsField = "data"

// ErrNotObject is returned when a payload's top level is not a JSON object.
var ErrNotObject = errors.New("payload is not a JSON object")

type (
	// member is one key/value pair of a JSON object, in document order.
	member struct {
		key   string
		value json.RawMessage
	}

	// rawJSON is a leaf kept as its compact JSON text (arrays).
	rawJSON string
)

// FlattenPayload extracts the records under the payload's "data" field and
// flattens them into a table. A missing or non-array "data" yields an empty
// table; non-object elements are skipped.
func FlattenPayload(payload []byte) (*Table, error) {
	members, err := objectMembers(payload)
	if err != nil {
		return nil, err
	}

	var records json.RawMessage

	for _, m := range members {
		if m.key == recordsField {
			records = m.value
		}
	}

	table := NewTable()

	if kind(records) != '[' {
		return table, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(records, &elements); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", recordsField, err)
	}

	for _, element := range elements {
		if kind(element) != '{' {
			continue
		}

		row := make(Row)
		if err := flattenObject(table, row, "", element); err != nil {
			return nil, err
		}

		table.appendRow(row)
	}

	return table, nil
}

// flattenObject walks one object, registering columns on t as they are first
// seen and setting their values on row.
func flattenObject(t *Table, row Row, prefix string, raw json.RawMessage) error {
	members, err := objectMembers(raw)
	if err != nil {
		return err
	}

	for _, m := range members {
		name := m.key
		if prefix != "" {
			name = prefix + Separator + m.key
		}

		if kind(m.value) == '{' {
			if err := flattenObject(t, row, name, m.value); err != nil {
				return err
			}

			continue
		}

		value, err := leafValue(m.value)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}

		t.addColumn(name)

		if value == nil {
			delete(row, name)

			continue
		}

		row[name] = value
	}

	return nil
}

// objectMembers decodes a JSON object into its members in document order.
// A repeated key keeps its first position and its last value.
func objectMembers(raw []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	var (
		members []member
		seen    = make(map[string]int)
	)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}

		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid JSON: unexpected token %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid JSON value for %q: %w", key, err)
		}

		if i, dup := seen[key]; dup {
			members[i].value = value

			continue
		}

		seen[key] = len(members)
		members = append(members, member{key: key, value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	return members, nil
}

// leafValue converts a non-object JSON value: null → nil, string → string,
// number → json.Number, bool → bool, array → rawJSON.
func leafValue(raw json.RawMessage) (any, error) {
	switch kind(raw) {
	case 'n':
		return nil, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}

		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}

		return b, nil
	case '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}

		return rawJSON(buf.String()), nil
	default:
		return json.Number(bytes.TrimSpace(raw)), nil
	}
}

// kind returns the first non-space byte of a JSON value, 0 when empty.
func kind(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}

	return trimmed[0]
}
