package normalize

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
)

// EncodeCSV writes the table as CSV: a header of every column, then one line
// per row. Nulls are empty fields.
func EncodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if err := w.Write(t.columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(t.columns))

	for _, r := range t.rows {
		for i, c := range t.columns {
			record[i] = formatValue(r[c])
		}

		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	return buf.Bytes(), nil
}

// formatValue renders one cell. Numbers keep their JSON literal text.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "True"
		}

		return "False"
	case json.Number:
		return val.String()
	case rawJSON:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
