package model

import (
	"time"
)

// Core domain types for the driver status service.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Snapshot is the uploaded set of movements as exported by the planning desk.
type Snapshot struct {
	Movements  []Movement `json:"movements"`
	LastUpdate string     `json:"last_update,omitempty"`
}

// Status is the driver-facing result of the status rules.
type Status struct {
	Key      string `json:"statusKey"`
	Text     string `json:"statusText"`
	ReportAt string `json:"reportInOfficeAt"`
}

// Endpoint is a Web Push subscription as produced by PushManager.subscribe().
// The endpoint URL is its identity.
type Endpoint struct {
	URL  string       `json:"endpoint"`
	Keys EndpointKeys `json:"keys"`
}

type EndpointKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type Subscription struct {
	ID        string    `json:"id"`
	EntityKey string    `json:"plate"`
	Endpoint  Endpoint  `json:"subscription"`
	Lang      string    `json:"lang"`
	CreatedAt time.Time `json:"createdAt"`
}

// Read models for API responses

type Destination struct {
	Text   string    `json:"text"`
	Code   string    `json:"code,omitempty"`
	Point  *GeoPoint `json:"point,omitempty"`
	NavURL string    `json:"navUrl,omitempty"`
}

type GeofenceInfo struct {
	HubName    string  `json:"hubName"`
	DistanceKm float64 `json:"distanceKm"`
	RadiusKm   float64 `json:"radiusKm"`
}
