package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CSVSource reads a location table exported from the planning spreadsheet.
// Columns are found by header name, so column order does not matter.
type CSVSource struct {
	Path string
}

func (s CSVSource) Name() string { return "csv:" + s.Path }

func (s CSVSource) Load(ctx context.Context) (Table, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f)
}

var columnAliases = map[string][]string{
	"code":    {"code", "location_code", "loc_code", "locode"},
	"city":    {"city", "name", "place"},
	"country": {"country", "country_code"},
	"lat":     {"lat", "latitude"},
	"lon":     {"lon", "lng", "longitude"},
}

// ReadCSV parses a header-led CSV (comma or semicolon separated) into a Table.
// Rows without a usable code are skipped.
func ReadCSV(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if first, _, _ := strings.Cut(text, "\n"); strings.Count(first, ";") > strings.Count(first, ",") {
		cr.Comma = ';'
	}
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for col, aliases := range columnAliases {
		idx[col] = -1
		for i, h := range header {
			if containsFold(aliases, h) {
				idx[col] = i
				break
			}
		}
	}
	if idx["code"] < 0 {
		return nil, fmt.Errorf("no code column in header %v", header)
	}

	out := Table{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		code := NormalizeCode(cell(row, idx["code"]))
		if !validCode(code) {
			continue
		}
		e := Entry{City: cell(row, idx["city"]), Country: cell(row, idx["country"])}
		lat, err1 := parseCoord(cell(row, idx["lat"]))
		lon, err2 := parseCoord(cell(row, idx["lon"]))
		if err1 == nil && err2 == nil {
			e.Lat, e.Lon, e.HasGeo = lat, lon, true
		}
		out[code] = e
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseCoord(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
