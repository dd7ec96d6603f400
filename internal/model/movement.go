package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Movement is a read-only view over one loosely typed movement record.
// Every logical field is looked up through an ordered alias list because the
// export has renamed its columns several times.
type Movement map[string]any

var (
	PlateFields       = []string{"license_plate", "plate", "truck", "vehicle"}
	TrailerFields     = []string{"trailer", "trailer_id", "trailer_number"}
	LocationFields    = []string{"location", "trailer_location", "dock"}
	CloseDoorFields   = []string{"close_door", "closedoor", "close_door_time"}
	ScheduledFields   = []string{"scheduled_departure", "sched_departure", "planned_departure", "std"}
	DepartedFields    = []string{"departed", "is_departed"}
	DepartedAtFields  = []string{"departed_at", "actual_departure", "atd"}
	DestinationFields = []string{"destination_text", "destination", "destination_name", "destination_code", "dest_code", "dest"}
	DestLatFields     = []string{"destination_lat"}
	DestLonFields     = []string{"destination_lon", "destination_lng"}
)

// placeholders are values the export writes for empty cells.
var placeholders = map[string]struct{}{
	"nan": {}, "none": {}, "nat": {}, "null": {}, "-": {}, "wait": {},
}

var falseLiterals = map[string]struct{}{
	"false": {}, "no": {}, "n": {}, "0": {},
}

var trueLiterals = map[string]struct{}{
	"true": {}, "yes": {}, "y": {}, "1": {}, "x": {},
}

// Text returns the first non-placeholder value among the aliases.
func (m Movement) Text(aliases ...string) string {
	for _, a := range aliases {
		v, ok := m[a]
		if !ok {
			continue
		}
		s := stringify(v)
		if IsPlaceholder(s) {
			continue
		}
		return s
	}
	return ""
}

// Has reports whether any alias carries a value that is not a placeholder and
// not a boolean false literal.
func (m Movement) Has(aliases ...string) bool {
	s := m.Text(aliases...)
	if s == "" {
		return false
	}
	_, isFalse := falseLiterals[strings.ToLower(s)]
	return !isFalse
}

// Flag reports whether any alias carries a boolean true literal.
func (m Movement) Flag(aliases ...string) bool {
	for _, a := range aliases {
		if v, ok := m[a].(bool); ok {
			if v {
				return true
			}
			continue
		}
		s := strings.ToLower(m.Text(a))
		if _, ok := trueLiterals[s]; ok {
			return true
		}
	}
	return false
}

// Float returns the first alias that parses as a number.
func (m Movement) Float(aliases ...string) (float64, bool) {
	for _, a := range aliases {
		switch v := m[a].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
		s := strings.ReplaceAll(m.Text(a), ",", ".")
		if s == "" {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func (m Movement) Plate() string       { return NormalizePlate(m.Text(PlateFields...)) }
func (m Movement) Trailer() string     { return m.Text(TrailerFields...) }
func (m Movement) Location() string    { return m.Text(LocationFields...) }
func (m Movement) Scheduled() string   { return m.Text(ScheduledFields...) }
func (m Movement) Destination() string { return m.Text(DestinationFields...) }

// DestinationPoint returns coordinates carried on the record itself, if any.
func (m Movement) DestinationPoint() (GeoPoint, bool) {
	lat, ok1 := m.Float(DestLatFields...)
	lon, ok2 := m.Float(DestLonFields...)
	if !ok1 || !ok2 {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: lat, Lng: lon}, true
}

// IsPlaceholder reports whether s is empty or one of the export's filler values.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	_, ok := placeholders[strings.ToLower(s)]
	return ok
}

// NormalizePlate uppercases and strips separators. It is idempotent.
func NormalizePlate(v string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(v)) {
		switch r {
		case ' ', '-', '.', '_', '/', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
