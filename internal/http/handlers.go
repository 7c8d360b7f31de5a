package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hailing/internal/broadcast"
	"github.com/example/ride-hailing/internal/cancel"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/lifecycle"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/storage"
)

type Deps struct {
	Logger    *slog.Logger
	Dispatch  *dispatch.Service
	Lifecycle *lifecycle.Service
	Locations *broadcast.Service
	Hub       *broadcast.Hub
	Riders    storage.RiderStore
	Drivers   storage.DriverStore
	Heartbeat time.Duration
}

type Server struct {
	logger    *slog.Logger
	dispatch  *dispatch.Service
	lifecycle *lifecycle.Service
	locations *broadcast.Service
	hub       *broadcast.Hub
	riders    storage.RiderStore
	drivers   storage.DriverStore
	heartbeat time.Duration
	mux       *mux.Router
}

func NewServer(deps Deps) *Server {
	s := &Server{
		logger:    deps.Logger,
		dispatch:  deps.Dispatch,
		lifecycle: deps.Lifecycle,
		locations: deps.Locations,
		hub:       deps.Hub,
		riders:    deps.Riders,
		drivers:   deps.Drivers,
		heartbeat: deps.Heartbeat,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides/request", s.handleRequestRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/accept", s.handleAcceptRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/arrived", s.handleMarkArrived).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/start", s.handleStartRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/complete", s.handleCompleteRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/cancel", s.handleCancelRide).Methods("POST")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/internal/driver/availability", s.handleDriverAvailability).Methods("POST")
	s.mux.HandleFunc("/internal/rider/locations", s.handleRiderLocation).Methods("POST")

	s.mux.HandleFunc("/ws/drivers/{driver_id}", s.handleDriverWS)
	s.mux.HandleFunc("/ws/passengers/{rider_id}", s.handlePassengerWS)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type requestRideReq struct {
	RiderID     string  `json:"rider_id"`
	DropoffLat  float64 `json:"dropoff_lat"`
	DropoffLng  float64 `json:"dropoff_lng"`
	ServiceType string  `json:"service_type,omitempty"`
	Deposit     int64   `json:"deposit,omitempty"`
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var req requestRideReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	dropoff := models.Coord{Lat: req.DropoffLat, Lng: req.DropoffLng}
	if req.RiderID == "" || !dropoff.Valid() {
		writeError(w, http.StatusBadRequest, "missing rider_id or invalid dropoff")
		return
	}
	ride, driver, err := s.dispatch.Dispatch(r.Context(), dispatch.Request{
		RiderID:     req.RiderID,
		Dropoff:     dropoff,
		ServiceType: models.ServiceType(req.ServiceType),
		Deposit:     req.Deposit,
	})
	switch {
	case errors.Is(err, dispatch.ErrNoDriverAvailable):
		// a normal negative result, not a failure
		writeJSON(w, http.StatusOK, map[string]any{"no_driver_available": true})
	case errors.Is(err, dispatch.ErrRiderLocationMissing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "rider not found")
	case err != nil:
		s.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"ride": ride, "driver": driver})
	}
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.lifecycle.Get(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.rideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": ride})
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "missing driver_id")
		return
	}
	ride, err := s.lifecycle.Accept(r.Context(), mux.Vars(r)["ride_id"], req.DriverID)
	if err != nil {
		s.rideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": ride})
}

func (s *Server) handleMarkArrived(w http.ResponseWriter, r *http.Request) {
	ride, err := s.lifecycle.MarkArrived(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.rideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": ride})
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.lifecycle.Start(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.rideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": ride})
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	ride, breakdown, err := s.lifecycle.Complete(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.rideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ride":             ride,
		"fare":             breakdown,
		"settlement_total": fare.SettlementTotal(breakdown),
	})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Forced bool   `json:"forced"`
		Actor  string `json:"actor,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	actor := cancel.Actor(req.Actor)
	if actor == "" {
		actor = cancel.ActorRider
	}
	ride, outcome, err := s.lifecycle.Cancel(r.Context(), mux.Vars(r)["ride_id"], actor, req.Forced)
	if err != nil {
		s.rideError(w, r, err)
		return
	}
	if outcome.RequiresConfirmation {
		writeJSON(w, http.StatusOK, map[string]any{"confirm_required": true, "fee": outcome.Fee})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "fee": outcome.Fee, "ride": ride})
}

type driverLocationReq struct {
	DriverID string  `json:"driver_id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var req driverLocationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	err := s.locations.ReportLocation(r.Context(), models.LocationSample{
		DriverID: req.DriverID, Lat: req.Lat, Lng: req.Lng, Timestamp: time.Now(),
	})
	switch {
	case errors.Is(err, broadcast.ErrInvalidSample):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown driver")
	case err != nil:
		s.serverError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type driverAvailabilityReq struct {
	DriverID string  `json:"driver_id"`
	Name     string  `json:"name,omitempty"`
	Status   string  `json:"status"`
	Rating   float64 `json:"rating,omitempty"`
}

// handleDriverAvailability lets a driver go idle or offline. Busy is owned
// by dispatch and cannot be set here; a busy driver cannot change status.
func (s *Server) handleDriverAvailability(w http.ResponseWriter, r *http.Request) {
	var req driverAvailabilityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	status := models.DriverStatus(req.Status)
	if req.DriverID == "" || (status != models.DriverIdle && status != models.DriverOffline) {
		writeError(w, http.StatusBadRequest, "status must be idle or offline")
		return
	}

	ctx := r.Context()
	d, err := s.drivers.Get(ctx, req.DriverID)
	if errors.Is(err, storage.ErrNotFound) {
		d = &models.Driver{ID: req.DriverID, Name: req.Name, Status: status, Rating: req.Rating}
		if err := s.drivers.Put(ctx, d); err != nil {
			s.serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"driver": d})
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if d.Status == models.DriverBusy {
		writeError(w, http.StatusConflict, "driver is on an active ride")
		return
	}
	ok, err := s.drivers.UpdateStatusIf(ctx, d.ID, d.Status, status)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if !ok {
		// a dispatch reserved the driver between the read and the swap
		writeError(w, http.StatusConflict, "driver is on an active ride")
		return
	}
	d.Status = status
	writeJSON(w, http.StatusOK, map[string]any{"driver": d})
}

type riderLocationReq struct {
	RiderID string  `json:"rider_id"`
	Name    string  `json:"name,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (s *Server) handleRiderLocation(w http.ResponseWriter, r *http.Request) {
	var req riderLocationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	loc := models.Coord{Lat: req.Lat, Lng: req.Lng}
	if req.RiderID == "" || !loc.Valid() {
		writeError(w, http.StatusBadRequest, "missing rider_id or invalid coordinates")
		return
	}
	ctx := r.Context()
	err := s.riders.SetLocation(ctx, req.RiderID, loc)
	if errors.Is(err, storage.ErrNotFound) {
		err = s.riders.Put(ctx, &models.Rider{ID: req.RiderID, Name: req.Name, Loc: &loc, Updated: time.Now()})
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rideError maps lifecycle errors onto the wire: conflicts are 409, unknown
// rides 404, everything else is an infrastructure failure.
func (s *Server) rideError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "ride not found")
	case errors.Is(err, lifecycle.ErrDriverMismatch),
		errors.Is(err, lifecycle.ErrRideTerminal),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.serverError(w, r, err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
