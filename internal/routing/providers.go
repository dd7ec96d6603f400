package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"driverstatus/internal/model"
)

// NewHTTPClient returns a client whose dial and TLS phases are bounded; the
// overall deadline comes from the request context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 3 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// OpenRouteService queries the ORS directions API for a heavy-goods-vehicle route.
type OpenRouteService struct {
	BaseURL string
	APIKey  string
	Profile string
	HTTP    *http.Client
}

const DefaultORSURL = "https://api.openrouteservice.org"

func (o *OpenRouteService) Name() string { return "openrouteservice" }

func (o *OpenRouteService) Route(ctx context.Context, from, to model.GeoPoint) (Route, error) {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = DefaultORSURL
	}
	profile := o.Profile
	if profile == "" {
		profile = "driving-hgv"
	}
	q := url.Values{}
	q.Set("api_key", o.APIKey)
	q.Set("start", lonLat(from))
	q.Set("end", lonLat(to))
	u := fmt.Sprintf("%s/v2/directions/%s?%s", base, profile, q.Encode())

	var body struct {
		Features []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties struct {
				Summary struct {
					Duration float64 `json:"duration"`
				} `json:"summary"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := getJSON(ctx, o.HTTP, u, &body); err != nil {
		return Route{}, err
	}
	if len(body.Features) == 0 {
		return Route{}, fmt.Errorf("openrouteservice: no features")
	}
	f := body.Features[0]
	return Route{
		Points:   fromLonLat(f.Geometry.Coordinates),
		Duration: time.Duration(f.Properties.Summary.Duration * float64(time.Second)),
	}, nil
}

// OSRM queries an OSRM route service; the public demo server needs no key.
type OSRM struct {
	BaseURL string
	HTTP    *http.Client
}

const DefaultOSRMURL = "https://router.project-osrm.org"

func (o *OSRM) Name() string { return "osrm" }

func (o *OSRM) Route(ctx context.Context, from, to model.GeoPoint) (Route, error) {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = DefaultOSRMURL
	}
	u := fmt.Sprintf("%s/route/v1/driving/%s;%s?overview=full&geometries=geojson", base, lonLat(from), lonLat(to))

	var body struct {
		Code   string `json:"code"`
		Routes []struct {
			Duration float64 `json:"duration"`
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := getJSON(ctx, o.HTTP, u, &body); err != nil {
		return Route{}, err
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm: code %q, %d routes", body.Code, len(body.Routes))
	}
	r := body.Routes[0]
	return Route{
		Points:   fromLonLat(r.Geometry.Coordinates),
		Duration: time.Duration(r.Duration * float64(time.Second)),
	}, nil
}

func getJSON(ctx context.Context, c *http.Client, u string, out any) error {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json, application/geo+json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(out)
}

func lonLat(p model.GeoPoint) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
}

// fromLonLat converts GeoJSON [lon, lat] pairs, dropping malformed ones.
func fromLonLat(coords [][]float64) []model.GeoPoint {
	out := make([]model.GeoPoint, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		out = append(out, model.GeoPoint{Lat: c[1], Lng: c[0]})
	}
	return out
}
