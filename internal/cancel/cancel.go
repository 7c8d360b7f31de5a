// Package cancel evaluates the time-based cancellation-fee policy. Pure
// logic; the lifecycle service owns the actual transition.
package cancel

import (
	"time"

	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/models"
)

type Actor string

const (
	ActorRider  Actor = "rider"
	ActorDriver Actor = "driver"
)

// Outcome is a first-class policy result, not an error. When
// RequiresConfirmation is set the cancellation did not happen; the caller
// must re-ask the user and retry with forced=true.
type Outcome struct {
	RequiresConfirmation bool  `json:"requires_confirmation"`
	Fee                  int64 `json:"fee"`
}

type Policy struct {
	cfg config.Cancellation
}

func NewPolicy(cfg config.Cancellation) *Policy {
	return &Policy{cfg: cfg}
}

// Evaluate applies the grace-period rule: once the driver has been waiting
// at the pickup longer than the grace period, cancelling costs the late fee,
// and an unforced request is bounced back for confirmation first. The actor
// is recorded by the caller for auditing; the fee rule itself is symmetric.
func (p *Policy) Evaluate(ride *models.Ride, _ Actor, forced bool, now time.Time) Outcome {
	if !p.lateCancel(ride, now) {
		return Outcome{}
	}
	if !forced {
		return Outcome{RequiresConfirmation: true, Fee: p.cfg.LateFee}
	}
	return Outcome{Fee: p.cfg.LateFee}
}

func (p *Policy) lateCancel(ride *models.Ride, now time.Time) bool {
	switch ride.Status {
	case models.StatusAssigned, models.StatusAccepted, models.StatusArrived:
	default:
		return false
	}
	if ride.DriverArrivedAt == nil {
		return false
	}
	return now.Sub(*ride.DriverArrivedAt) > p.cfg.GracePeriod
}
