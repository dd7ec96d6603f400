package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"driverstatus/internal/auth"
	"driverstatus/internal/geofence"
	"driverstatus/internal/model"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Reason refines the category, e.g. "stale" or "out_of_range".
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeProblemDoc(w, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func writeProblemDoc(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeError classifies err into a problem document.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := Problem{Type: "about:blank", Instance: r.URL.Path, Detail: err.Error()}
	var (
		ve  *model.ValidationError
		rej *geofence.Rejection
	)
	switch {
	case errors.As(err, &ve):
		p.Status, p.Title = http.StatusBadRequest, "Invalid request"
	case errors.As(err, &rej):
		p.Reason = string(rej.Reason)
		if rej.Reason == geofence.ReasonStale {
			p.Status, p.Title = http.StatusUnauthorized, "Location too old"
		} else {
			p.Status, p.Title = http.StatusForbidden, "Outside service area"
		}
	case errors.Is(err, auth.ErrNotConfigured):
		p.Status, p.Title = http.StatusInternalServerError, "Server not configured"
	case errors.Is(err, model.ErrUnauthorized):
		p.Status, p.Title = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, model.ErrAmbiguousMatch):
		p.Status, p.Title = http.StatusConflict, "Ambiguous plate"
		p.Detail = "Multiple movements found for this plate. Contact the office."
	case errors.Is(err, model.ErrNotFound):
		p.Status, p.Title = http.StatusNotFound, "Not Found"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		p.Status, p.Title = http.StatusServiceUnavailable, "Upstream unavailable"
	default:
		p.Status, p.Title = http.StatusInternalServerError, "Internal error"
	}
	writeProblemDoc(w, p)
}
