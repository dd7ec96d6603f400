package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"driverstatus/internal/model"
)

type fakeProvider struct {
	name  string
	route Route
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Route(ctx context.Context, from, to model.GeoPoint) (Route, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Route{}, ctx.Err()
		}
	}
	return f.route, f.err
}

var (
	origin = model.GeoPoint{Lat: 51.96, Lng: 6.02}
	dest   = model.GeoPoint{Lat: 52.09, Lng: 5.12}
	line   = Route{Points: []model.GeoPoint{origin, {Lat: 52, Lng: 5.5}, dest}, Duration: 50 * time.Minute}
)

func TestChainPrimaryWins(t *testing.T) {
	p := &fakeProvider{name: "p", route: line}
	s := &fakeProvider{name: "s", route: line}
	res := (&Chain{Primary: p, Secondary: s}).Route(context.Background(), origin, dest)
	if res.Provenance != Primary || len(res.Points) != 3 {
		t.Fatalf("got %+v", res)
	}
	if s.calls.Load() != 0 {
		t.Fatal("secondary should not be asked")
	}
}

func TestChainSkipsMissingPrimary(t *testing.T) {
	s := &fakeProvider{name: "s", route: line}
	res := (&Chain{Secondary: s}).Route(context.Background(), origin, dest)
	if res.Provenance != Secondary {
		t.Fatalf("got %s", res.Provenance)
	}
}

func TestChainFallsThroughOnTimeoutAndEmptyResult(t *testing.T) {
	p := &fakeProvider{name: "p", route: line, delay: time.Second}
	s := &fakeProvider{name: "s", route: Route{Points: []model.GeoPoint{origin}}}
	res := (&Chain{Primary: p, Secondary: s, Timeout: 20 * time.Millisecond}).Route(context.Background(), origin, dest)
	if res.Provenance != Direct {
		t.Fatalf("got %s", res.Provenance)
	}
	if len(res.Points) != 2 || res.Points[0] != origin || res.Points[1] != dest {
		t.Fatalf("direct line expected, got %+v", res.Points)
	}
	if p.calls.Load() != 1 || s.calls.Load() != 1 {
		t.Fatal("each provider must be tried exactly once")
	}
}

func TestChainBothFail(t *testing.T) {
	boom := errors.New("boom")
	res := (&Chain{Primary: &fakeProvider{name: "p", err: boom}, Secondary: &fakeProvider{name: "s", err: boom}}).
		Route(context.Background(), origin, dest)
	if res.Provenance != Direct || len(res.Points) != 2 || res.Points[0] != origin || res.Points[1] != dest {
		t.Fatalf("got %+v", res)
	}
}

func TestDownsampleKeepsDestinationLast(t *testing.T) {
	for _, n := range []int{1201, 1500, 2399, 2400, 5000, 12345} {
		pts := make([]model.GeoPoint, n)
		for i := range pts {
			pts[i] = model.GeoPoint{Lat: float64(i), Lng: 0}
		}
		out := Downsample(pts, MaxPoints)
		if len(out) > MaxPoints {
			t.Fatalf("n=%d: %d points", n, len(out))
		}
		if out[0] != pts[0] || out[len(out)-1] != pts[n-1] {
			t.Fatalf("n=%d: endpoints not kept", n)
		}
	}
	short := []model.GeoPoint{origin, dest}
	if got := Downsample(short, MaxPoints); len(got) != 2 {
		t.Fatal("short polyline must be untouched")
	}
}

func TestOSRMProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/route/v1/driving/6.020000,51.960000;5.120000,52.090000") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"duration":3000,"geometry":{"coordinates":[[6.02,51.96],[5.5,52.0],[5.12,52.09]]}}]}`))
	}))
	defer srv.Close()

	r, err := (&OSRM{BaseURL: srv.URL, HTTP: srv.Client()}).Route(context.Background(), origin, dest)
	if err != nil {
		t.Fatalf("osrm: %v", err)
	}
	if len(r.Points) != 3 || r.Points[2] != dest || r.Duration != 50*time.Minute {
		t.Fatalf("bad route %+v", r)
	}
}

func TestOpenRouteServiceProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "k" || r.URL.Path != "/v2/directions/driving-hgv" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"features":[{"geometry":{"coordinates":[[6.02,51.96],[5.12,52.09]]},"properties":{"summary":{"duration":600}}}]}`))
	}))
	defer srv.Close()

	ors := &OpenRouteService{BaseURL: srv.URL, APIKey: "k", HTTP: srv.Client()}
	r, err := ors.Route(context.Background(), origin, dest)
	if err != nil || len(r.Points) != 2 || r.Duration != 10*time.Minute {
		t.Fatalf("ors: %+v %v", r, err)
	}
	ors.APIKey = "wrong"
	if _, err := ors.Route(context.Background(), origin, dest); err == nil {
		t.Fatal("expected http error")
	}
}

func TestEstimatorCaches(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &fakeProvider{name: "p", route: line}
	e := NewEstimator(time.Second, nil, p)
	e.Now = func() time.Time { return now }

	dep := now.Add(30 * time.Second)
	for i := 0; i < 3; i++ {
		d, ok := e.TravelTime(context.Background(), origin, dest, dep)
		if !ok || d != 50*time.Minute {
			t.Fatalf("estimate: %v %v", d, ok)
		}
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected one provider call, got %d", p.calls.Load())
	}

	// Nearby coordinates share the bucket; a new minute does not.
	near := model.GeoPoint{Lat: origin.Lat + 0.0001, Lng: origin.Lng}
	_, _ = e.TravelTime(context.Background(), near, dest, dep)
	if p.calls.Load() != 1 {
		t.Fatal("rounded coordinates should hit the cache")
	}
	_, _ = e.TravelTime(context.Background(), origin, dest, dep.Add(2*time.Minute))
	if p.calls.Load() != 2 {
		t.Fatal("new departure minute should miss the cache")
	}

	now = now.Add(EstimateTTL + time.Second)
	_, _ = e.TravelTime(context.Background(), origin, dest, dep)
	if p.calls.Load() != 3 {
		t.Fatal("expired entry should be refreshed")
	}
}

func TestEstimatorAllFail(t *testing.T) {
	e := NewEstimator(time.Second, &fakeProvider{name: "p", err: errors.New("down")})
	if _, ok := e.TravelTime(context.Background(), origin, dest, time.Now()); ok {
		t.Fatal("expected no estimate")
	}
}
