// Package export renders ledger data into downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// Column maps a header key to a cell value for a row of type T.
type Column[T any] struct {
	Key   string
	Value func(T) string
}

// SelectColumns keeps the requested keys in request order. Unknown keys are
// ignored; an empty selection returns every column.
func SelectColumns[T any](all []Column[T], keys []string) []Column[T] {
	if len(keys) == 0 {
		return all
	}
	byKey := make(map[string]Column[T], len(all))
	for _, col := range all {
		byKey[col.Key] = col
	}
	selected := make([]Column[T], 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		col, ok := byKey[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		selected = append(selected, col)
	}
	if len(selected) == 0 {
		return all
	}
	return selected
}

// ParseFields splits a comma separated ?fields= value.
func ParseFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WriteCSV writes a header row built from the column keys followed by one row
// per record.
func WriteCSV[T any](w io.Writer, columns []Column[T], rows []T) error {
	if len(columns) == 0 {
		return fmt.Errorf("export: no columns selected")
	}
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Key
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = col.Value(row)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Filename returns "<entity>_<YYYY-MM-DD>.csv".
func Filename(entity string, at time.Time) string {
	return fmt.Sprintf("%s_%s.csv", entity, at.Format("2006-01-02"))
}
