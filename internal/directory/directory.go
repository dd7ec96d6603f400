// Package directory holds the read-only location tables used to resolve
// destination codes, and the resolver built on them.
package directory

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Entry is one row of a location table. Any field may be missing.
type Entry struct {
	City    string
	Country string
	Lat     float64
	Lon     float64
	HasGeo  bool
}

// Table maps a normalized location code to its entry.
type Table map[string]Entry

// Source loads one location table.
type Source interface {
	Name() string
	Load(ctx context.Context) (Table, error)
}

// Directory pairs the geo-oriented table (good coordinates, noisy names) with
// the locality-oriented table (clean names).
type Directory struct {
	Geo      Table
	Locality Table
}

// Load reads both sources. A failing source is logged and left empty; the
// resolver then degrades to raw destination text.
func Load(ctx context.Context, log *zap.Logger, geo, locality Source) *Directory {
	d := &Directory{Geo: Table{}, Locality: Table{}}
	if geo != nil {
		d.Geo = loadOne(ctx, log, geo)
	}
	if locality != nil {
		d.Locality = loadOne(ctx, log, locality)
	}
	return d
}

func loadOne(ctx context.Context, log *zap.Logger, src Source) Table {
	t, err := src.Load(ctx)
	if err != nil {
		log.Warn("location source unavailable", zap.String("source", src.Name()), zap.Error(err))
		return Table{}
	}
	log.Info("location source loaded", zap.String("source", src.Name()), zap.Int("entries", len(t)))
	return t
}

// Merged is the combined view of one code across both tables.
type Merged struct {
	Code    string
	City    string
	Country string
	Lat     float64
	Lon     float64
	HasGeo  bool
	Found   bool
}

// Lookup merges the two tables for code. Coordinates prefer the geo table;
// names prefer the locality table. Geo city names that echo the code
// ("DUI Warehouse 1") lose the echoed prefix.
func (d *Directory) Lookup(code string) Merged {
	m := Merged{Code: code}
	if d == nil || code == "" {
		return m
	}
	geo, inGeo := d.Geo[code]
	loc, inLoc := d.Locality[code]
	m.Found = inGeo || inLoc

	switch {
	case inGeo && geo.HasGeo:
		m.Lat, m.Lon, m.HasGeo = geo.Lat, geo.Lon, true
	case inLoc && loc.HasGeo:
		m.Lat, m.Lon, m.HasGeo = loc.Lat, loc.Lon, true
	}

	if inLoc {
		m.City, m.Country = loc.City, loc.Country
	}
	if m.City == "" && inGeo {
		m.City = stripCodeEcho(geo.City, code)
	}
	if m.Country == "" && inGeo {
		m.Country = geo.Country
	}
	return m
}

func stripCodeEcho(city, code string) string {
	city = strings.TrimSpace(city)
	prefix := code + " "
	if len(city) > len(prefix) && strings.EqualFold(city[:len(prefix)], prefix) {
		return strings.TrimSpace(city[len(prefix):])
	}
	return city
}
