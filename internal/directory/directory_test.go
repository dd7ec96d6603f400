package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"driverstatus/internal/model"
)

func TestExtractCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Duiven Warehouse (NL-DUI)", "NLDUI", true},
		{"abc", "ABC", true},
		{"de-ber 1", "DEBER1", true},
		{"Berlin, Germany / BER1", "BER1", true},
		{"Hamburg (port of hamburg, north)", "NORTH", true},
		{"Köln", "", false},
		{"X", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractCode(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ExtractCode(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLookupStripsCodeEchoFromGeoCity(t *testing.T) {
	d := &Directory{
		Geo:      Table{"ABC": {City: "ABC Warehouse1", Country: "NL", Lat: 51.9, Lon: 6.0, HasGeo: true}},
		Locality: Table{},
	}
	m := d.Lookup("ABC")
	if m.City != "Warehouse1" {
		t.Fatalf("city: %q", m.City)
	}
	if !m.HasGeo || m.Lat != 51.9 {
		t.Fatalf("coords: %+v", m)
	}
}

func TestLookupPrefersLocalityNamesAndGeoCoordinates(t *testing.T) {
	d := &Directory{
		Geo:      Table{"ABC": {City: "ABC Warehouse1", Country: "Holland", Lat: 51.9, Lon: 6.0, HasGeo: true}},
		Locality: Table{"ABC": {City: "Duiven", Country: "Netherlands", Lat: 1, Lon: 1, HasGeo: true}},
	}
	m := d.Lookup("ABC")
	if m.Country != "Netherlands" || m.City != "Duiven" {
		t.Fatalf("names: %+v", m)
	}
	if m.Lat != 51.9 || m.Lon != 6.0 {
		t.Fatalf("geo table should win coordinates: %+v", m)
	}

	// Locality coordinates fill in when the geo table has none.
	d.Geo["ABC"] = Entry{City: "ABC Warehouse1"}
	if m := d.Lookup("ABC"); m.Lat != 1 || !m.HasGeo {
		t.Fatalf("fallback coords: %+v", m)
	}
}

func TestResolveDisplayDegrades(t *testing.T) {
	r := &Resolver{Dir: &Directory{
		Geo: Table{
			"FULL": {City: "FULL Depot", Country: "DE", Lat: 52.5, Lon: 13.4, HasGeo: true},
			"CITY": {City: "Venlo"},
			"CTRY": {Country: "PL"},
			"BARE": {},
		},
		Locality: Table{},
	}}
	cases := map[string]string{
		"Berlin (FULL)": "Depot, DE (FULL)",
		"CITY":          "Venlo (CITY)",
		"CTRY":          "PL (CTRY)",
		"BARE":          "BARE",
		"Somewhere new": "Somewhere new",
		"ZZZZ":          "ZZZZ",
	}
	for raw, want := range cases {
		d := r.Resolve(model.Movement{"destination": raw})
		if d.Text != want {
			t.Fatalf("Resolve(%q) = %q, want %q", raw, d.Text, want)
		}
	}
}

func TestResolveFieldOrderAndNavigation(t *testing.T) {
	r := &Resolver{Dir: &Directory{
		Geo:      Table{"DUI": {City: "Duiven", Country: "NL", Lat: 51.95, Lon: 6.02, HasGeo: true}},
		Locality: Table{"VNL": {City: "Venlo", Country: "NL"}},
	}}
	d := r.Resolve(model.Movement{"destination_text": "", "destination": "nan", "destination_code": "dui"})
	if d.Code != "DUI" || d.Point == nil {
		t.Fatalf("resolve: %+v", d)
	}
	if d.NavURL != "https://www.google.com/maps/search/?api=1&query=51.95,6.02" {
		t.Fatalf("nav url: %q", d.NavURL)
	}

	d = r.Resolve(model.Movement{"destination": "Venlo DC (VNL)"})
	if d.Point != nil || !strings.Contains(d.NavURL, "query=Venlo%2C+NL+%28VNL%29") {
		t.Fatalf("text nav url: %+v", d)
	}

	d = r.Resolve(model.Movement{"destination": "Unknown yard", "destination_lat": 50.1, "destination_lon": 8.6})
	if d.Point == nil || d.Point.Lat != 50.1 {
		t.Fatalf("record coordinates should be used: %+v", d)
	}

	d = r.Resolve(model.Movement{})
	if d.Text != "" || d.NavURL != "" {
		t.Fatalf("empty destination: %+v", d)
	}
}

func TestReadCSV(t *testing.T) {
	in := "\ufeffLocation_Code;City;Country;Latitude;Longitude\n" +
		"nl-dui;Duiven;NL;51,9672;6,0205\n" +
		"x;too short;;;\n" +
		"VNL;Venlo;NL;;\n"
	tab, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(tab) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(tab), tab)
	}
	if e := tab["NLDUI"]; !e.HasGeo || e.Lat != 51.9672 || e.City != "Duiven" {
		t.Fatalf("NLDUI: %+v", e)
	}
	if e := tab["VNL"]; e.HasGeo {
		t.Fatalf("VNL should have no coordinates: %+v", e)
	}

	if _, err := ReadCSV(strings.NewReader("city,country\nx,y\n")); err == nil {
		t.Fatal("missing code column should fail")
	}
}

type failingSource struct{}

func (failingSource) Name() string                        { return "broken" }
func (failingSource) Load(context.Context) (Table, error) { return nil, errors.New("boom") }

func TestLoadToleratesBrokenSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "locality.csv")
	if err := os.WriteFile(p, []byte("code,city,country\nDUI,Duiven,NL\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := Load(context.Background(), zap.NewNop(), failingSource{}, CSVSource{Path: p})
	if len(d.Geo) != 0 || len(d.Locality) != 1 {
		t.Fatalf("unexpected tables: %+v", d)
	}
	if m := d.Lookup("DUI"); m.City != "Duiven" {
		t.Fatalf("lookup: %+v", m)
	}
}
