package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside the WGS84 range.
func (c Coord) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

type DriverStatus string

const (
	DriverIdle    DriverStatus = "idle"
	DriverBusy    DriverStatus = "busy"
	DriverOffline DriverStatus = "offline"
)

type ServiceType string

const (
	ServiceStandard         ServiceType = "standard"
	ServiceErrand           ServiceType = "errand"
	ServiceDesignatedDriver ServiceType = "designated_driver"
)

type Rider struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Loc     *Coord    `json:"loc,omitempty"`
	Updated time.Time `json:"updated"`
}

type Driver struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Loc     *Coord       `json:"loc,omitempty"`
	Status  DriverStatus `json:"status"`
	Rating  float64      `json:"rating"` // 0..5
	Updated time.Time    `json:"updated"`
}

type RideStatus string

const (
	StatusRequested RideStatus = "requested"
	StatusAssigned  RideStatus = "assigned"
	StatusAccepted  RideStatus = "accepted"
	StatusArrived   RideStatus = "arrived"
	StatusOngoing   RideStatus = "ongoing"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

// AllowedTransitions is the ride state flow as code. Terminal states have no
// outgoing edges. Dispatch creates rides already assigned, so the
// requested→assigned edge exists only for rows seeded out of band.
var AllowedTransitions = map[RideStatus][]RideStatus{
	StatusRequested: {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusArrived, StatusCancelled},
	StatusArrived:   {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted},
}

func CanTransition(from, to RideStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Ride struct {
	ID       string     `json:"id"`
	RiderID  string     `json:"rider_id"`
	DriverID string     `json:"driver_id,omitempty"` // empty until assigned
	Status   RideStatus `json:"status"`

	// display snapshots captured at dispatch time
	RiderName  string `json:"rider_name,omitempty"`
	DriverName string `json:"driver_name,omitempty"`

	Pickup  Coord `json:"pickup"`
	Dropoff Coord `json:"dropoff"`

	ServiceType ServiceType `json:"service_type"`
	Deposit     int64       `json:"deposit,omitempty"` // errand float advanced by the driver

	DriverArrivedAt *time.Time `json:"driver_arrived_at,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`

	FinalPrice      *int64 `json:"final_price,omitempty"`      // set exactly once, on completion
	CancellationFee *int64 `json:"cancellation_fee,omitempty"` // set on cancellation

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocationSample is an ephemeral driver position report. It mutates the
// driver's current location and is relayed to subscribers; it is never
// persisted as its own entity.
type LocationSample struct {
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// FareBreakdown itemizes the components summing to a ride's final price.
// All amounts are in the smallest currency unit.
type FareBreakdown struct {
	Base              int64 `json:"base"`
	DistanceFee       int64 `json:"distance_fee"`
	DurationFee       int64 `json:"duration_fee"`
	LongDistanceFee   int64 `json:"long_distance_fee"`
	ServiceMultiplier int64 `json:"service_multiplier"` // extra added by multiplying service types
	ServiceFee        int64 `json:"service_fee"`        // flat fee (+ deposit for errand)
	MinimumTopUp      int64 `json:"minimum_top_up"`
	Total             int64 `json:"total"`
}
