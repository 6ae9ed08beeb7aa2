package trip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFarePriceFlatFee(t *testing.T) {
	f := Fare{BaseFare: 50000, FeeMode: FeeFlat, FeeAmount: 2000}
	base, fee, total := f.Price(3, "Terminal A", "Terminal B")
	assert.Equal(t, int64(150000), base)
	assert.Equal(t, int64(6000), fee)
	assert.Equal(t, int64(156000), total)
}

func TestFarePricePercentFee(t *testing.T) {
	f := Fare{BaseFare: 50000, FeeMode: FeePercent, FeeAmount: 10}
	base, fee, total := f.Price(2, "", "")
	assert.Equal(t, int64(100000), base)
	assert.Equal(t, int64(10000), fee)
	assert.Equal(t, int64(110000), total)
}

func TestFarePointOverride(t *testing.T) {
	f := Fare{
		BaseFare: 50000,
		Overrides: map[PointPair]int64{
			{Boarding: "Downtown", Dropping: "Airport"}: 65000,
		},
	}
	assert.Equal(t, int64(65000), f.PerSeat("Downtown", "Airport"))
	assert.Equal(t, int64(50000), f.PerSeat("Downtown", "Central"))

	base, _, total := f.Price(2, "Downtown", "Airport")
	assert.Equal(t, int64(130000), base)
	assert.Equal(t, int64(130000), total)
}

func TestFarePriceEmptySelection(t *testing.T) {
	f := Fare{BaseFare: 50000, FeeMode: FeePercent, FeeAmount: 10}
	base, fee, total := f.Price(0, "", "")
	assert.Zero(t, base)
	assert.Zero(t, fee)
	assert.Zero(t, total)
}

func TestSnapshotClone(t *testing.T) {
	n := 12
	snap := AvailabilitySnapshot{
		Available:   &n,
		BookedSeats: map[SeatLabel]bool{"1A": true},
		SeatGenders: map[SeatLabel]Gender{"1A": GenderFemale},
	}
	clone := snap.Clone()
	clone.BookedSeats["2B"] = true
	assert.False(t, snap.Booked("2B"))
	assert.True(t, clone.Booked("1A"))
}
