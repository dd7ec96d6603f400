// Package stamp parses the free-text timestamps found in movement exports and
// remembers which layout matched, so derived times can be written back in the
// same style.
package stamp

import (
	"strings"
	"time"
)

// Layout is the detected style of a parsed timestamp.
type Layout struct {
	layout  string
	hasTime bool
}

// String returns the Go reference layout.
func (l Layout) String() string { return l.layout }

// Format renders t in the detected style. Date-only styles gain hours and
// minutes, since a derived time is only useful with a clock component.
func (l Layout) Format(t time.Time) string {
	if l.layout == "" {
		return t.Format(DefaultLayout)
	}
	if !l.hasTime {
		return t.Format(l.layout + " 15:04")
	}
	return t.Format(l.layout)
}

const DefaultLayout = "2006-01-02 15:04"

// Zero-padded layouts come before their unpadded forms so that "01/05/2024"
// keeps its padding when formatted back. Day-first wins over month-first for
// slash and dot dates, matching the European exports.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"01/02/2006",
}

// Fractional layouts come first: " 15:04:05" also accepts a fraction but
// would drop it on Format.
var timeSuffixes = []string{
	" 15:04:05.000",
	"T15:04:05.000",
	" 15:04:05",
	" 15:04",
	"T15:04:05",
	"T15:04",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
}

var layouts = buildLayouts()

func buildLayouts() []Layout {
	var out []Layout
	for _, z := range zonedLayouts {
		out = append(out, Layout{layout: z, hasTime: true})
	}
	for _, d := range dateLayouts {
		for _, s := range timeSuffixes {
			out = append(out, Layout{layout: d + s, hasTime: true})
		}
	}
	for _, d := range dateLayouts {
		out = append(out, Layout{layout: d})
	}
	return out
}

// Parse tries every known layout in order. Naive timestamps are interpreted in
// loc. ok is false when nothing matched; that is never an error.
func Parse(raw string, loc *time.Location) (t time.Time, l Layout, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, Layout{}, false
	}
	switch strings.ToLower(s) {
	case "nan", "none", "nat", "null":
		return time.Time{}, Layout{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, cand := range layouts {
		if pt, err := time.ParseInLocation(cand.layout, s, loc); err == nil {
			return pt, cand, true
		}
	}
	return time.Time{}, Layout{}, false
}
