package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-hailing/internal/broadcast"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 4096
)

type wsLocationMsg struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// handleDriverWS is the inbound location feed. Drivers hold a socket open
// and stream coordinate samples as JSON text frames.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	if driverID == "" {
		writeError(w, http.StatusBadRequest, "missing driver_id")
		return
	}
	if _, err := s.drivers.Get(r.Context(), driverID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown driver")
			return
		}
		s.serverError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "driver", driverID, "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.heartbeat * 2))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.heartbeat * 2))
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(conn, stop)

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("driver ws closed", "driver", driverID, "error", err)
			}
			return
		}
		var msg wsLocationMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("bad location frame", "driver", driverID, "error", err)
			continue
		}
		sample := models.LocationSample{DriverID: driverID, Lat: msg.Lat, Lng: msg.Lng}
		if msg.Timestamp != nil {
			sample.Timestamp = *msg.Timestamp
		}
		if err := s.locations.ReportLocation(ctx, sample); err != nil {
			if errors.Is(err, broadcast.ErrInvalidSample) {
				continue
			}
			s.logger.Error("report location", "driver", driverID, "error", err)
			return
		}
	}
}

// handlePassengerWS streams ride events to a watching passenger. A ride_id
// query narrows the feed to one ride; the assigned driver's markers are
// included by resolving the ride at subscribe time.
func (s *Server) handlePassengerWS(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["rider_id"]
	if riderID == "" {
		writeError(w, http.StatusBadRequest, "missing rider_id")
		return
	}

	filter := broadcast.Filter{
		RideID:   r.URL.Query().Get("ride_id"),
		DriverID: r.URL.Query().Get("driver_id"),
	}
	if filter.RideID != "" && filter.DriverID == "" {
		ride, err := s.lifecycle.Get(r.Context(), filter.RideID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "ride not found")
				return
			}
			s.serverError(w, r, err)
			return
		}
		filter.DriverID = ride.DriverID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "rider", riderID, "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(broadcast.RolePassenger, filter)
	defer sub.Close()

	// reader exists only to notice the peer going away
	go func() {
		conn.SetReadLimit(wsMaxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
