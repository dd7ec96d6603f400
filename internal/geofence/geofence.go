// Package geofence gates driver requests on a fresh location sample inside a
// circle around the hub.
package geofence

import (
	"fmt"
	"math"
	"time"

	"driverstatus/internal/model"
)

const earthRadiusKm = 6371.0

// Reason distinguishes why a location sample was refused.
type Reason string

const (
	ReasonStale      Reason = "stale"
	ReasonOutOfRange Reason = "out_of_range"
)

// Rejection is returned when a sample fails the gate.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string { return r.Detail }

// Gate describes the hub and the limits applied to client samples.
type Gate struct {
	HubName  string
	Hub      model.GeoPoint
	RadiusKm float64
	MaxAge   time.Duration
}

// Check runs the staleness test, then the range test. now is the server clock.
func (g Gate) Check(p model.GeoPoint, sampled, now time.Time) (model.GeofenceInfo, error) {
	age := now.Sub(sampled)
	if age < 0 {
		age = -age
	}
	if age > g.MaxAge {
		return model.GeofenceInfo{}, &Rejection{
			Reason: ReasonStale,
			Detail: "Location timestamp too old. Refresh and try again.",
		}
	}
	dist := HaversineKm(p, g.Hub)
	if dist > g.RadiusKm {
		return model.GeofenceInfo{}, &Rejection{
			Reason: ReasonOutOfRange,
			Detail: fmt.Sprintf("Access denied (outside %.0f km of %s).", g.RadiusKm, g.HubName),
		}
	}
	return model.GeofenceInfo{HubName: g.HubName, DistanceKm: dist, RadiusKm: g.RadiusKm}, nil
}

// HaversineKm is the great-circle distance on a sphere of mean earth radius.
func HaversineKm(a, b model.GeoPoint) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dphi := (b.Lat - a.Lat) * math.Pi / 180
	dlambda := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dphi/2)*math.Sin(dphi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
