// Package routing produces a drivable polyline between two points, falling
// back from a keyed routing provider to a public one and finally to a
// straight line.
package routing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"driverstatus/internal/metrics"
	"driverstatus/internal/model"
)

// Provenance names which step of the chain produced a polyline.
type Provenance string

const (
	Primary   Provenance = "PRIMARY"
	Secondary Provenance = "SECONDARY"
	Direct    Provenance = "DIRECT"
)

// MaxPoints caps the polyline sent to clients.
const MaxPoints = 1200

// Route is a provider answer.
type Route struct {
	Points   []model.GeoPoint
	Duration time.Duration
}

// Provider is one routing backend.
type Provider interface {
	Name() string
	Route(ctx context.Context, from, to model.GeoPoint) (Route, error)
}

var errTooFewPoints = errors.New("route has fewer than two points")

// Result is a polyline plus where it came from.
type Result struct {
	Points     []model.GeoPoint
	Provenance Provenance
}

// Chain tries Primary, then Secondary, then a direct line. Primary is nil when
// no API key is configured. Each provider gets its own Timeout; a failure is
// never retried against the same provider.
type Chain struct {
	Primary   Provider
	Secondary Provider
	Timeout   time.Duration
	Log       *zap.Logger
}

func (c *Chain) Route(ctx context.Context, from, to model.GeoPoint) Result {
	steps := []struct {
		p   Provider
		tag Provenance
	}{{c.Primary, Primary}, {c.Secondary, Secondary}}

	for _, s := range steps {
		if s.p == nil {
			continue
		}
		r, err := c.try(ctx, s.p, from, to)
		if err != nil {
			metrics.RouteRequests.WithLabelValues(s.p.Name(), "error").Inc()
			c.log().Warn("routing provider failed", zap.String("provider", s.p.Name()), zap.Error(err))
			continue
		}
		metrics.RouteRequests.WithLabelValues(s.p.Name(), "ok").Inc()
		return Result{Points: Downsample(r.Points, MaxPoints), Provenance: s.tag}
	}
	metrics.RouteRequests.WithLabelValues("direct", "ok").Inc()
	return Result{Points: []model.GeoPoint{from, to}, Provenance: Direct}
}

func (c *Chain) try(ctx context.Context, p Provider, from, to model.GeoPoint) (Route, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r, err := p.Route(ctx, from, to)
	if err != nil {
		return Route{}, err
	}
	if len(r.Points) < 2 {
		return Route{}, errTooFewPoints
	}
	return r, nil
}

func (c *Chain) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// Downsample keeps every n-th point so that at most limit remain. The last
// point (the destination) is always kept.
func Downsample(pts []model.GeoPoint, limit int) []model.GeoPoint {
	if limit < 2 || len(pts) <= limit {
		return pts
	}
	step := (len(pts) + limit - 2) / (limit - 1)
	out := make([]model.GeoPoint, 0, limit)
	for i := 0; i < len(pts); i += step {
		out = append(out, pts[i])
	}
	if last := pts[len(pts)-1]; out[len(out)-1] != last {
		out = append(out, last)
	}
	return out
}
