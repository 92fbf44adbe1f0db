package aircraft

import (
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

// Report is one transponder message for one aircraft. A nil pointer means the
// message did not carry that field; a non-nil zero value is a real reading.
type Report struct {
	ICAO icao.ID

	Altitude         *int          // Feet.
	AltitudeType     *AltitudeType // Defaults to barometric when Altitude is set.
	AirPressureInHg  *float64      // Local pressure used to cross-derive altitudes.
	GroundSpeed      *float64      // Knots.
	SpeedType        *SpeedType
	Track            *float64 // Degrees.
	TrackIsHeading   *bool
	VerticalRate     *int // Feet per minute.
	VerticalRateType *AltitudeType
	Squawk           *int // Decimal digits of the octal code, e.g. 7700.
	Emergency        *bool
	OnGround         *bool
	Callsign         *string
	SignalLevel      *int
	Position         *Position
	TransponderType  *TransponderType
	IsTisb           *bool

	ReceivedAt time.Time // Wall clock; zero means now.
	Source     string    // Feed name, informational.
}

// IsEmergencySquawk reports whether squawk is one of the emergency codes.
func IsEmergencySquawk(squawk int) bool {
	switch squawk {
	case 7500, 7600, 7700:
		return true
	}
	return false
}
