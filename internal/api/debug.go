package api

import (
	"net/http"
	"time"

	"driverstatus/internal/buildinfo"
)

// DebugJSON reports build info and the redacted runtime settings.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":  buildinfo.Info(),
		"time":   s.now().UTC().Format(time.RFC3339),
		"config": s.Settings,
	}
	if s.Service != nil {
		info["pushEnabled"] = s.Service.PushEnabled()
		info["subscriptions"] = s.Service.Store.SubscriptionCount()
	}
	writeJSON(w, http.StatusOK, info)
}
