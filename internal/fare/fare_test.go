package fare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/models"
)

func TestCalculateStandard(t *testing.T) {
	c := NewCalculator(config.DefaultFare())

	b, err := c.Calculate(10, 20, models.ServiceStandard, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(70), b.Base)
	assert.Equal(t, int64(150), b.DistanceFee)
	assert.Equal(t, int64(60), b.DurationFee)
	assert.Equal(t, int64(0), b.LongDistanceFee)
	assert.Equal(t, int64(280), b.Total)
}

func TestCalculateLongDistanceSurcharge(t *testing.T) {
	c := NewCalculator(config.DefaultFare())

	// 25 km: 5 km beyond the threshold at 10/km
	b, err := c.Calculate(25, 30, models.ServiceStandard, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), b.LongDistanceFee)
	assert.Equal(t, int64(70+375+90+50), b.Total)

	// exactly at the threshold no surcharge applies
	b, err = c.Calculate(20, 0, models.ServiceStandard, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.LongDistanceFee)
}

func TestCalculateErrand(t *testing.T) {
	c := NewCalculator(config.DefaultFare())

	b, err := c.Calculate(10, 20, models.ServiceErrand, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(300), b.ServiceFee, "deposit plus flat errand fee")
	assert.Equal(t, int64(0), b.ServiceMultiplier)
	assert.Equal(t, int64(580), b.Total)
}

func TestCalculateDesignatedDriver(t *testing.T) {
	c := NewCalculator(config.DefaultFare())

	// running total 280 doubles, then flat 300 on top
	b, err := c.Calculate(10, 20, models.ServiceDesignatedDriver, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(280), b.ServiceMultiplier)
	assert.Equal(t, int64(300), b.ServiceFee)
	assert.Equal(t, int64(860), b.Total)
}

func TestCalculateMinimumFare(t *testing.T) {
	cfg := config.DefaultFare()
	cfg.BaseFare = 10
	c := NewCalculator(cfg)

	b, err := c.Calculate(0, 0, models.ServiceStandard, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(40), b.MinimumTopUp)
	assert.Equal(t, int64(50), b.Total)
}

func TestBreakdownSumsToTotal(t *testing.T) {
	c := NewCalculator(config.DefaultFare())

	cases := []struct {
		km, min float64
		service models.ServiceType
		deposit int64
	}{
		{10, 20, models.ServiceStandard, 0},
		{25.3, 47.8, models.ServiceStandard, 0},
		{3.7, 11.2, models.ServiceErrand, 500},
		{42.1, 90.5, models.ServiceDesignatedDriver, 0},
		{0, 0, models.ServiceStandard, 0},
	}
	for _, tc := range cases {
		b, err := c.Calculate(tc.km, tc.min, tc.service, tc.deposit)
		require.NoError(t, err)
		sum := b.Base + b.DistanceFee + b.DurationFee + b.LongDistanceFee +
			b.ServiceMultiplier + b.ServiceFee + b.MinimumTopUp
		assert.Equal(t, b.Total, sum, "case %+v", tc)
	}
}

func TestCalculateInvalidInput(t *testing.T) {
	c := NewCalculator(config.DefaultFare())

	_, err := c.Calculate(-1, 10, models.ServiceStandard, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Calculate(5, -1, models.ServiceStandard, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Calculate(5, 10, models.ServiceStandard, -50)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Calculate(5, 10, models.ServiceType("helicopter"), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRounding(t *testing.T) {
	assert.Equal(t, int64(123), RoundNearest.Apply(123.4))
	assert.Equal(t, int64(124), RoundNearest.Apply(123.5))
	assert.Equal(t, int64(120), RoundFloorTen.Apply(129.9))
	assert.Equal(t, int64(120), RoundFloorTen.Apply(120))
}

func TestSettlementTotal(t *testing.T) {
	assert.Equal(t, int64(580), SettlementTotal(models.FareBreakdown{Total: 585}))
	assert.Equal(t, int64(280), SettlementTotal(models.FareBreakdown{Total: 280}))
}
