package stamp

import (
	"testing"
	"time"
)

func TestParseMirrorsInputStyle(t *testing.T) {
	cases := []struct {
		in   string
		want string // input minus 45 minutes, same style
	}{
		{"2024-05-01 14:00", "2024-05-01 13:15"},
		{"2024-05-01 14:00:30", "2024-05-01 13:15:30"},
		{"2024-05-01 14:00:00.500", "2024-05-01 13:15:00.500"},
		{"2024-05-01T14:00:00.250", "2024-05-01T13:15:00.250"},
		{"2024-05-01T14:00", "2024-05-01T13:15"},
		{"01-05-2024 14:00", "01-05-2024 13:15"},
		{"01/05/2024 14:00", "01/05/2024 13:15"},
		{"1/5/2024 14:00", "1/5/2024 13:15"},
		{"01.05.2024 00:30", "30.04.2024 23:45"},
		{"2024-05-01", "2024-04-30 23:15"},
		{"2024-05-01T14:00:00+02:00", "2024-05-01T13:15:00+02:00"},
	}
	for _, tc := range cases {
		ts, l, ok := Parse(tc.in, time.UTC)
		if !ok {
			t.Fatalf("Parse(%q) failed", tc.in)
		}
		if got := l.Format(ts.Add(-45 * time.Minute)); got != tc.want {
			t.Fatalf("Parse(%q): got %q, want %q (layout %s)", tc.in, got, tc.want, l)
		}
	}
}

func TestParseDayFirst(t *testing.T) {
	ts, _, ok := Parse("03/04/2024 10:00", time.UTC)
	if !ok {
		t.Fatal("parse failed")
	}
	if ts.Month() != time.April || ts.Day() != 3 {
		t.Fatalf("expected 3 April, got %v", ts)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "  ", "NaT", "tomorrow", "14:00", "2024-13-45 10:00"} {
		if _, _, ok := Parse(s, time.UTC); ok {
			t.Fatalf("Parse(%q) should fail", s)
		}
	}
}

func TestParseUsesLocation(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ts, _, ok := Parse("2024-05-01 14:00", ams)
	if !ok {
		t.Fatal("parse failed")
	}
	if ts.UTC().Hour() != 12 {
		t.Fatalf("expected 12:00 UTC, got %v", ts.UTC())
	}
}
