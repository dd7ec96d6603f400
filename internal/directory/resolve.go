package directory

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"driverstatus/internal/model"
)

// Resolver turns the destination text of a movement into display text and,
// when known, coordinates.
type Resolver struct {
	Dir *Directory
}

var (
	trailingParen = regexp.MustCompile(`\(([^()]*)\)\s*$`)
	delimiters    = regexp.MustCompile(`[\s,;/|\-–]+`)
)

// NormalizeCode uppercases and strips spaces and hyphens.
func NormalizeCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

func validCode(s string) bool {
	if len(s) < 2 || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// ExtractCode finds the location code in free destination text. It tries the
// trailing parenthesized token, then the whole text, then the delimited
// tokens from the right.
func ExtractCode(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if m := trailingParen.FindStringSubmatch(raw); m != nil {
		if c := NormalizeCode(m[1]); validCode(c) {
			return c, true
		}
	}
	if c := NormalizeCode(raw); validCode(c) {
		return c, true
	}
	tokens := delimiters.Split(raw, -1)
	for i := len(tokens) - 1; i >= 0; i-- {
		c := NormalizeCode(strings.Trim(tokens[i], "()"))
		if validCode(c) {
			return c, true
		}
	}
	return "", false
}

// Resolve never fails: anything it cannot resolve falls back to the raw text.
func (r *Resolver) Resolve(rec model.Movement) model.Destination {
	raw := rec.Destination()
	var d model.Destination
	d.Text = raw

	code, ok := ExtractCode(raw)
	if ok {
		d.Code = code
		m := r.Dir.Lookup(code)
		if m.Found {
			d.Text = displayText(m)
		}
		if m.HasGeo {
			d.Point = &model.GeoPoint{Lat: m.Lat, Lng: m.Lon}
		}
	}
	if d.Point == nil {
		if p, ok := rec.DestinationPoint(); ok {
			d.Point = &p
		}
	}
	d.NavURL = NavigationURL(d)
	return d
}

func displayText(m Merged) string {
	switch {
	case m.City != "" && m.Country != "":
		return fmt.Sprintf("%s, %s (%s)", m.City, m.Country, m.Code)
	case m.City != "":
		return fmt.Sprintf("%s (%s)", m.City, m.Code)
	case m.Country != "":
		return fmt.Sprintf("%s (%s)", m.Country, m.Code)
	default:
		return m.Code
	}
}

// NavigationURL links to a maps search: coordinates when known, otherwise the
// display text. Empty when there is nothing to search for.
func NavigationURL(d model.Destination) string {
	if d.Point != nil {
		return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%g,%g", d.Point.Lat, d.Point.Lng)
	}
	if strings.TrimSpace(d.Text) == "" {
		return ""
	}
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(d.Text)
}
