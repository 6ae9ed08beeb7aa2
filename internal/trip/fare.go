package trip

// PointPair keys a boarding/dropping specific fare override.  Fare
// tables come from the trip listing payload; some operators price by
// segment rather than a flat per-seat fare.
type PointPair struct {
	Boarding string
	Dropping string
}

// FeeMode selects how the convenience fee is computed.
type FeeMode string

const (
	FeeFlat    FeeMode = "FLAT"    // fixed amount per selected seat
	FeePercent FeeMode = "PERCENT" // percentage of the base price
)

// Fare describes everything needed to price a selection on one trip.
// BaseFare is the default per-seat fare in cents.  Overrides, when
// present for the chosen point pair, replace BaseFare.  FeeAmount is
// cents for FeeFlat and basis points out of 100 for FeePercent (a
// value of 10 means 10%).
type Fare struct {
	BaseFare  int64
	Overrides map[PointPair]int64
	FeeMode   FeeMode
	FeeAmount int64
}

// PerSeat resolves the per-seat fare for the given boarding and
// dropping points, falling back to BaseFare when no override matches.
func (f Fare) PerSeat(boarding, dropping string) int64 {
	if f.Overrides != nil {
		if v, ok := f.Overrides[PointPair{Boarding: boarding, Dropping: dropping}]; ok {
			return v
		}
	}
	return f.BaseFare
}

// Price computes the derived price fields for seatCount seats between
// the given points.  It returns base, fee and total in cents.
func (f Fare) Price(seatCount int, boarding, dropping string) (base, fee, total int64) {
	if seatCount <= 0 {
		return 0, 0, 0
	}
	base = f.PerSeat(boarding, dropping) * int64(seatCount)
	switch f.FeeMode {
	case FeePercent:
		fee = base * f.FeeAmount / 100
	default:
		fee = f.FeeAmount * int64(seatCount)
	}
	return base, fee, base + fee
}
