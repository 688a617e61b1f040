package normalize

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const parquetParallelism = 1

var unsafeColumnChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// EncodeParquet writes the table as a snappy-compressed parquet file in which
// every column is an optional UTF8 string holding its CSV rendering.
func EncodeParquet(t *Table) ([]byte, error) {
	dir, err := os.MkdirTemp("", "flightpipe-parquet-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "all_airlines.parquet")

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create local file writer: %w", err)
	}

	pw, err := writer.NewCSVWriter(parquetSchema(t.columns), fw, parquetParallelism)
	if err != nil {
		fw.Close()

		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, r := range t.rows {
		rec := make([]*string, len(t.columns))

		for j, c := range t.columns {
			v, ok := r[c]
			if !ok || v == nil {
				continue
			}

			s := formatValue(v)
			rec[j] = &s
		}

		if err := pw.WriteString(rec); err != nil {
			fw.Close()

			return nil, fmt.Errorf("failed to write parquet row %d: %w", i, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()

		return nil, fmt.Errorf("error in WriteStop: %w", err)
	}

	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("error closing file writer: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file: %w", err)
	}

	return data, nil
}

// parquetSchema builds the CSV-writer metadata for the given columns.
func parquetSchema(columns []string) []string {
	names := ParquetColumnNames(columns)
	md := make([]string, len(names))

	for i, name := range names {
		md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", name)
	}

	return md
}

// ParquetColumnNames sanitizes column names to [A-Za-z0-9_], keeping them unique.
func ParquetColumnNames(columns []string) []string {
	names := make([]string, len(columns))
	used := make(map[string]bool, len(columns))

	for i, c := range columns {
		name := unsafeColumnChars.ReplaceAllString(c, "_")
		if name == "" {
			name = "column"
		}

		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}

		used[candidate] = true
		names[i] = candidate
	}

	return names
}
