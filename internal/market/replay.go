package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadCSVFile reads a symbol,time,close file into store.
func LoadCSVFile(path string, store *BarStore, loc *time.Location) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return LoadCSV(f, store, loc)
}

// LoadCSV reads rows of symbol,time,close. A header row is skipped. Times
// without a zone are read in loc; plain integers are unix seconds.
func LoadCSV(r io.Reader, store *BarStore, loc *time.Location) (int, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	series := make(map[string][]Bar)
	line, rows := 0, 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "symbol") {
			continue
		}

		sym := strings.ToUpper(strings.TrimSpace(rec[0]))
		ts, err := parseTime(strings.TrimSpace(rec[1]), loc)
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", line, err)
		}
		px, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil || px <= 0 {
			return 0, fmt.Errorf("csv line %d: bad close %q", line, rec[2])
		}
		series[sym] = append(series[sym], Bar{Time: ts, Close: px})
		rows++
	}

	for sym, bars := range series {
		store.Load(sym, bars)
	}
	return rows, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).In(loc), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}
