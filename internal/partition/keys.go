// Package partition builds the object-store keys the pipeline stages hand off through.
//
// Layout:
//
//	raw/{YYYY}/{MM}/{DD}/{code}/flights.json
//	processed/{YYYY}/{MM}/{DD}/{code}/flights.csv
//	processed/{YYYY}/{MM}/{DD}/all_airlines.csv
//
// Dates always come from the run timestamp in UTC. The same (date, code) pair
// always maps to the same key, so re-running a day overwrites its artifacts.
package partition

import (
	"fmt"
	"time"
)

const (
	rawRoot       = "raw"
	processedRoot = "processed"

	rawFile         = "flights.json"
	processedFile   = "flights.csv"
	combinedFile    = "all_airlines.csv"
	combinedParquet = "all_airlines.parquet"
)

// RawKey is where the ingest stage lands an airline's API payload.
func RawKey(runTime time.Time, code string) string {
	return fmt.Sprintf("%s/%s/%s", datePrefix(rawRoot, runTime), code, rawFile)
}

// ProcessedKey is where the normalize stage writes an airline's CSV.
func ProcessedKey(runTime time.Time, code string) string {
	return fmt.Sprintf("%s/%s/%s", datePrefix(processedRoot, runTime), code, processedFile)
}

// CombinedKey is where the normalize stage writes the all-airlines CSV.
func CombinedKey(runTime time.Time) string {
	return datePrefix(processedRoot, runTime) + "/" + combinedFile
}

// CombinedParquetKey is the parquet sibling of CombinedKey.
func CombinedParquetKey(runTime time.Time) string {
	return datePrefix(processedRoot, runTime) + "/" + combinedParquet
}

func datePrefix(root string, runTime time.Time) string {
	utc := runTime.UTC()

	return fmt.Sprintf("%s/%04d/%02d/%02d", root, utc.Year(), int(utc.Month()), utc.Day())
}
