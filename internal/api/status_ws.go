package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"driverstatus/internal/model"
	"driverstatus/internal/notify"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingInterval = 20 * time.Second
	wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type   string        `json:"type"` // status, error
	Plate  string        `json:"plate,omitempty"`
	Status *model.Status `json:"status,omitempty"`
	Event  *notify.Event `json:"event,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// StatusWSHandler handles /v1/status/ws. The query is authorized like
// GET /v1/status before the upgrade; the client then receives its current
// status followed by one message per change.
func (s *Server) StatusWSHandler(w http.ResponseWriter, r *http.Request) {
	if s.Broker == nil {
		writeProblem(w, http.StatusNotImplemented, "Live status not available", "", r.URL.Path)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.Service.Status(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	plate := view.Plate
	ch := s.Broker.Subscribe(plate)
	defer s.Broker.Unsubscribe(plate, ch)

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}
	ping := func() error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
	}

	first := view.Status
	if err := write(wsMessage{Type: "status", Plate: plate, Status: &first}); err != nil {
		return
	}

	// The read loop only services pongs and notices the client leaving.
	done := make(chan struct{})
	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wsPongWait)); return nil })
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := ping(); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			st, err := s.Service.CurrentStatus(plate, q.Lang)
			if err != nil {
				s.log().Debug("live status lookup failed", zap.String("plate", plate), zap.Error(err))
				_ = write(wsMessage{Type: "error", Plate: plate, Error: err.Error()})
				continue
			}
			if err := write(wsMessage{Type: "status", Plate: plate, Status: &st, Event: &evt}); err != nil {
				return
			}
		}
	}
}
