// Package service exposes the driver and office operations on top of the
// store, the status rules and the dispatcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"driverstatus/internal/directory"
	"driverstatus/internal/geofence"
	"driverstatus/internal/i18n"
	"driverstatus/internal/metrics"
	"driverstatus/internal/model"
	"driverstatus/internal/notify"
	"driverstatus/internal/push"
	"driverstatus/internal/routing"
	"driverstatus/internal/status"
	"driverstatus/internal/store"
)

// Query identifies the caller of a driver operation: the plate they ask
// about and the device location sample that authorizes them.
type Query struct {
	Plate     string
	Location  model.GeoPoint
	Timestamp time.Time
	Lang      i18n.Lang
}

type Service struct {
	Store      store.Store
	Engine     *status.Engine
	Gate       geofence.Gate
	Resolver   *directory.Resolver
	Routes     *routing.Chain
	Estimator  *routing.Estimator // optional
	Dispatcher *notify.Dispatcher
	VAPID      push.VAPID
	Log        *zap.Logger
	Now        func() time.Time
}

// PushEnabled reports whether subscriptions are accepted.
func (s *Service) PushEnabled() bool {
	return s.VAPID.Complete() && s.Dispatcher != nil && s.Dispatcher.Sender != nil
}

// SubmitResult is returned after a snapshot upload.
type SubmitResult struct {
	Count       int  `json:"count"`
	PushEnabled bool `json:"pushEnabled"`
	Seeded      int  `json:"seeded"`
	Changed     int  `json:"changed"`
	Ambiguous   int  `json:"ambiguous"`
}

// SubmitSnapshot replaces the current snapshot and runs change detection
// before returning.
func (s *Service) SubmitSnapshot(ctx context.Context, snap model.Snapshot) (SubmitResult, error) {
	if snap.Movements == nil {
		return SubmitResult{}, model.Invalid("movements", "snapshot must contain movements")
	}
	n := s.Store.ReplaceSnapshot(snap, s.now())
	out := SubmitResult{Count: n, PushEnabled: s.PushEnabled()}
	if s.Dispatcher != nil {
		res := s.Dispatcher.Evaluate(ctx, notify.TriggerIngest)
		out.Seeded, out.Changed, out.Ambiguous = res.Seeded, res.Changed, res.Ambiguous
	}
	s.log().Info("snapshot replaced", zap.Int("movements", n), zap.Int("changed", out.Changed), zap.String("last_update", snap.LastUpdate))
	return out, nil
}

// StatusView is what the driver sees.
type StatusView struct {
	model.Status
	Plate              string             `json:"plate"`
	Destination        model.Destination  `json:"destination"`
	ScheduledDeparture string             `json:"scheduledDeparture,omitempty"`
	LastRefresh        string             `json:"lastRefresh,omitempty"`
	Geofence           model.GeofenceInfo `json:"geofence"`
	Lang               i18n.Lang          `json:"lang"`
	PushEnabled        bool               `json:"pushEnabled"`
	VAPIDPublicKey     string             `json:"vapidPublicKey,omitempty"`
}

// Status authorizes q and returns the plate's status, destination and
// navigation link.
func (s *Service) Status(ctx context.Context, q Query) (StatusView, error) {
	gf, err := s.authorize(q)
	if err != nil {
		return StatusView{}, err
	}
	rec, err := s.Store.FindMovement(q.Plate)
	if err != nil {
		return StatusView{}, err
	}
	lang := pickLang(q.Lang)
	v := StatusView{
		Plate:              model.NormalizePlate(q.Plate),
		Status:             s.Engine.Compute(rec, s.Store.ManualMessage(q.Plate), lang, s.now()),
		Destination:        s.Resolver.Resolve(rec),
		ScheduledDeparture: rec.Scheduled(),
		Geofence:           gf,
		Lang:               lang,
		PushEnabled:        s.PushEnabled(),
	}
	if snap, _, ok := s.Store.Snapshot(); ok {
		v.LastRefresh = snap.LastUpdate
	}
	if v.PushEnabled {
		v.VAPIDPublicKey = s.VAPID.PublicKey
	}
	return v, nil
}

// CurrentStatus is Status without the location gate, for a client that was
// already authorized when its live stream opened.
func (s *Service) CurrentStatus(plate string, l i18n.Lang) (model.Status, error) {
	rec, err := s.Store.FindMovement(plate)
	if err != nil {
		return model.Status{}, err
	}
	return s.Engine.Compute(rec, s.Store.ManualMessage(plate), pickLang(l), s.now()), nil
}

// RouteView is a polyline from the driver to the destination.
type RouteView struct {
	Plate       string            `json:"plate"`
	Points      []model.GeoPoint  `json:"points"`
	Provenance  string            `json:"provenance"`
	Note        string            `json:"note"`
	Destination model.Destination `json:"destination"`
	// TravelMinutes is the estimated driving time, absent when no provider
	// could estimate it.
	TravelMinutes *int `json:"travelMinutes,omitempty"`
}

var routeNotes = map[routing.Provenance]string{
	routing.Primary:   i18n.RoutePrimary,
	routing.Secondary: i18n.RouteSecondary,
	routing.Direct:    i18n.RouteDirect,
}

// Route authorizes q and returns the route from the driver's location to the
// destination of the plate's movement.
func (s *Service) Route(ctx context.Context, q Query) (RouteView, error) {
	if _, err := s.authorize(q); err != nil {
		return RouteView{}, err
	}
	rec, err := s.Store.FindMovement(q.Plate)
	if err != nil {
		return RouteView{}, err
	}
	dest := s.Resolver.Resolve(rec)
	if dest.Point == nil {
		return RouteView{}, fmt.Errorf("destination %q has no coordinates: %w", dest.Text, model.ErrNotFound)
	}
	res := s.Routes.Route(ctx, q.Location, *dest.Point)
	v := RouteView{
		Plate:       model.NormalizePlate(q.Plate),
		Points:      res.Points,
		Provenance:  string(res.Provenance),
		Note:        i18n.T(pickLang(q.Lang), routeNotes[res.Provenance]),
		Destination: dest,
	}
	if s.Estimator != nil {
		if d, ok := s.Estimator.TravelTime(ctx, q.Location, *dest.Point, s.now()); ok {
			m := int(math.Round(d.Minutes()))
			v.TravelMinutes = &m
		}
	}
	return v, nil
}

// SubscribeResult acknowledges a registration.
type SubscribeResult struct {
	ID    string `json:"id"`
	Plate string `json:"plate"`
	Count int    `json:"count"`
}

// Subscribe registers a push endpoint for the plate. Re-subscribing the same
// endpoint replaces the earlier registration.
func (s *Service) Subscribe(ctx context.Context, q Query, ep model.Endpoint) (SubscribeResult, error) {
	if !s.PushEnabled() {
		return SubscribeResult{}, model.Invalid("push", "push is not enabled on the server")
	}
	if _, err := s.authorize(q); err != nil {
		return SubscribeResult{}, err
	}
	if err := validEndpoint(ep); err != nil {
		return SubscribeResult{}, err
	}
	sub, n := s.Store.Subscribe(model.Subscription{
		EntityKey: q.Plate,
		Endpoint:  ep,
		Lang:      string(pickLang(q.Lang)),
		CreatedAt: s.now().UTC(),
	})
	s.log().Info("subscription registered", zap.String("plate", sub.EntityKey), zap.String("id", sub.ID), zap.String("lang", sub.Lang))
	return SubscribeResult{ID: sub.ID, Plate: sub.EntityKey, Count: n}, nil
}

// SetManualMessage stores an office message for the plate and pushes it.
// An empty message clears it.
func (s *Service) SetManualMessage(ctx context.Context, plate, message string) (notify.Result, error) {
	if s.Dispatcher == nil {
		return notify.Result{}, errors.New("dispatcher not configured")
	}
	return s.Dispatcher.SendManual(ctx, plate, message)
}

// ClearManualMessage removes the office message for the plate.
func (s *Service) ClearManualMessage(ctx context.Context, plate string) (notify.Result, error) {
	return s.SetManualMessage(ctx, plate, "")
}

// authorize validates the query and runs the geofence gate.
func (s *Service) authorize(q Query) (model.GeofenceInfo, error) {
	if len(strings.TrimSpace(q.Plate)) < 2 || model.NormalizePlate(q.Plate) == "" {
		return model.GeofenceInfo{}, model.Invalid("plate", "must be at least 2 characters")
	}
	if q.Location.Lat < -90 || q.Location.Lat > 90 || math.IsNaN(q.Location.Lat) {
		return model.GeofenceInfo{}, model.Invalid("lat", "must be between -90 and 90")
	}
	if q.Location.Lng < -180 || q.Location.Lng > 180 || math.IsNaN(q.Location.Lng) {
		return model.GeofenceInfo{}, model.Invalid("lon", "must be between -180 and 180")
	}
	if q.Timestamp.IsZero() {
		return model.GeofenceInfo{}, model.Invalid("ts", "is required")
	}
	info, err := s.Gate.Check(q.Location, q.Timestamp, s.now())
	if err != nil {
		var rej *geofence.Rejection
		if errors.As(err, &rej) {
			metrics.GeofenceRejections.WithLabelValues(string(rej.Reason)).Inc()
		}
		return model.GeofenceInfo{}, err
	}
	return info, nil
}

func validEndpoint(ep model.Endpoint) error {
	if ep.URL == "" {
		return model.Invalid("subscription.endpoint", "is required")
	}
	u, err := url.Parse(ep.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return model.Invalid("subscription.endpoint", "must be an absolute http(s) URL")
	}
	if ep.Keys.P256dh == "" || ep.Keys.Auth == "" {
		return model.Invalid("subscription.keys", "p256dh and auth are required")
	}
	return nil
}

func pickLang(l i18n.Lang) i18n.Lang {
	for _, s := range i18n.Supported {
		if l == s {
			return l
		}
	}
	return i18n.Normalize(string(l))
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
