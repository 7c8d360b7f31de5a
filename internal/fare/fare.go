// Package fare computes ride prices. Calculation is a pure function of
// distance, duration and service modifiers; all amounts are in the smallest
// currency unit.
package fare

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/models"
)

var ErrInvalidInput = errors.New("invalid fare input")

// Rounding selects how a computed amount becomes an integer price.
// RoundNearest is the billing default; RoundFloorTen exists for settlement
// and rebate displays and must never be mixed into the standard path.
type Rounding int

const (
	RoundNearest Rounding = iota
	RoundFloorTen
)

func (r Rounding) Apply(v float64) int64 {
	switch r {
	case RoundFloorTen:
		return int64(math.Floor(v/10)) * 10
	default:
		return int64(math.Round(v))
	}
}

type Calculator struct {
	cfg config.Fare
}

func NewCalculator(cfg config.Fare) *Calculator {
	return &Calculator{cfg: cfg}
}

// Calculate prices a trip. Components are rounded to the nearest unit
// individually so the breakdown always sums to the total; the minimum-fare
// floor is applied last as an explicit top-up line.
func (c *Calculator) Calculate(distanceKm, durationMin float64, service models.ServiceType, deposit int64) (models.FareBreakdown, error) {
	if distanceKm < 0 || durationMin < 0 {
		return models.FareBreakdown{}, fmt.Errorf("%w: negative distance or duration", ErrInvalidInput)
	}
	if deposit < 0 {
		return models.FareBreakdown{}, fmt.Errorf("%w: negative deposit", ErrInvalidInput)
	}

	b := models.FareBreakdown{
		Base:        c.cfg.BaseFare,
		DistanceFee: RoundNearest.Apply(float64(c.cfg.PerKm) * distanceKm),
		DurationFee: RoundNearest.Apply(float64(c.cfg.PerMinute) * durationMin),
	}
	if distanceKm > c.cfg.LongDistanceKm {
		b.LongDistanceFee = RoundNearest.Apply(float64(c.cfg.LongDistPerKm) * (distanceKm - c.cfg.LongDistanceKm))
	}

	running := b.Base + b.DistanceFee + b.DurationFee + b.LongDistanceFee

	switch service {
	case models.ServiceStandard, "":
	case models.ServiceErrand:
		b.ServiceFee = deposit + c.cfg.ErrandFee
	case models.ServiceDesignatedDriver:
		// multiply the running total, then the flat fee
		b.ServiceMultiplier = running * (c.cfg.DesignatedTimes - 1)
		b.ServiceFee = c.cfg.DesignatedFee
	default:
		return models.FareBreakdown{}, fmt.Errorf("%w: unknown service type %q", ErrInvalidInput, service)
	}

	b.Total = running + b.ServiceMultiplier + b.ServiceFee
	if b.Total < c.cfg.MinimumFare {
		b.MinimumTopUp = c.cfg.MinimumFare - b.Total
		b.Total = c.cfg.MinimumFare
	}
	return b, nil
}

// SettlementTotal renders a computed total in the floor-to-ten mode used on
// settlement and rebate screens.
func SettlementTotal(b models.FareBreakdown) int64 {
	return RoundFloorTen.Apply(float64(b.Total))
}
