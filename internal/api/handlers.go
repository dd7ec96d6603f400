package api

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"driverstatus/internal/i18n"
	"driverstatus/internal/model"
	"driverstatus/internal/service"
)

const maxSnapshotBytes = 16 << 20

// SnapshotsHandler handles POST /v1/snapshots (admin).
func (s *Server) SnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes+1))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error(), r.URL.Path)
		return
	}
	if len(body) > maxSnapshotBytes {
		writeProblem(w, http.StatusRequestEntityTooLarge, "Snapshot too large", "", r.URL.Path)
		return
	}
	if err := s.Auth.Authorize(r, body); err != nil {
		writeError(w, r, err)
		return
	}
	var snap model.Snapshot
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Service.SubmitSnapshot(r.Context(), snap)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"count":       res.Count,
		"pushEnabled": res.PushEnabled,
		"seeded":      res.Seeded,
		"changed":     res.Changed,
		"ambiguous":   res.Ambiguous,
	})
}

// StatusHandler handles GET /v1/status.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.Service.Status(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RouteHandler handles GET /v1/route.
func (s *Server) RouteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.Service.Route(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SubscriptionsHandler handles POST /v1/subscriptions. The body is the
// browser's PushSubscription JSON.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var ep model.Endpoint
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&ep); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Service.Subscribe(r.Context(), q, ep)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": res.ID, "plate": res.Plate, "count": res.Count})
}

// ManualMessageHandler handles PUT and DELETE /v1/manual-messages/{plate}
// (admin).
func (s *Server) ManualMessageHandler(w http.ResponseWriter, r *http.Request) {
	plate := strings.TrimPrefix(r.URL.Path, "/v1/manual-messages/")
	if plate == "" || strings.Contains(plate, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPut && r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error(), r.URL.Path)
		return
	}
	if err := s.Auth.Authorize(r, body); err != nil {
		writeError(w, r, err)
		return
	}

	var msg string
	if r.Method == http.MethodPut {
		var req struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, r, model.Invalid("message", "is required, use DELETE to clear"))
			return
		}
		msg = req.Message
	}
	res, err := s.Service.SetManualMessage(r.Context(), plate, msg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.log().Info("manual message updated", zap.String("plate", model.NormalizePlate(plate)), zap.Bool("cleared", msg == ""))
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"plate":     model.NormalizePlate(plate),
		"cleared":   msg == "",
		"delivered": res.Delivered,
		"pruned":    res.Pruned,
	})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	_, _, loaded := s.Service.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"pushEnabled":    s.Service.PushEnabled(),
		"snapshotLoaded": loaded,
		"subscriptions":  s.Service.Store.SubscriptionCount(),
	})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	for name, dep := range s.Deps {
		if err := pingWithTimeout(r, dep); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// parseQuery reads plate, lat, lon, ts and lang. ts is Unix seconds;
// millisecond values are accepted too. Without lang the Accept-Language
// header decides.
func parseQuery(r *http.Request) (service.Query, error) {
	v := r.URL.Query()
	var q service.Query
	q.Plate = strings.TrimSpace(v.Get("plate"))
	if len(q.Plate) < 2 {
		return q, model.Invalid("plate", "must be at least 2 characters")
	}
	lat, err := parseFloat(v.Get("lat"))
	if err != nil {
		return q, model.Invalid("lat", "must be a number")
	}
	lon, err := parseFloat(v.Get("lon"))
	if err != nil {
		return q, model.Invalid("lon", "must be a number")
	}
	q.Location = model.GeoPoint{Lat: lat, Lng: lon}
	ts, err := parseFloat(v.Get("ts"))
	if err != nil || ts <= 0 {
		return q, model.Invalid("ts", "must be Unix epoch seconds")
	}
	if ts > 1e12 {
		ts /= 1000
	}
	sec, frac := math.Modf(ts)
	q.Timestamp = time.Unix(int64(sec), int64(frac*1e9))

	lang := v.Get("lang")
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	q.Lang = i18n.Normalize(lang)
	return q, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrSyntax
	}
	return f, nil
}
