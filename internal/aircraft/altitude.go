package aircraft

import (
	"math"

	"github.com/vradarserver/vrscore-sub000/internal/stamp"
)

// StandardPressureInHg is the reference pressure for pressure altitude.
const StandardPressureInHg = 29.92

// pressureCorrection returns the feet to add to a pressure altitude to get a
// geometric one at the given local pressure.
func pressureCorrection(inHg float64) int {
	return int(math.Round((inHg - StandardPressureInHg) * 1000))
}

// GeometricFromPressure converts a pressure altitude to a geometric one.
func GeometricFromPressure(pressure int, inHg float64) int {
	return pressure + pressureCorrection(inHg)
}

// PressureFromGeometric converts a geometric altitude to a pressure one.
func PressureFromGeometric(geometric int, inHg float64) int {
	return geometric - pressureCorrection(inHg)
}

// deriveAltitude fills the altitude opposite to driver from the local air
// pressure. Without a pressure reading, or without a value for driver, it
// does nothing.
func deriveAltitude(t *Transmitted, driver AltitudeType, s stamp.Stamp) bool {
	if t.AirPressureInHg.Stamp() == 0 {
		return false
	}
	inHg := t.AirPressureInHg.Value()

	if driver == AltitudeGeometric {
		if t.GeometricAltitude.Stamp() == 0 {
			return false
		}
		return t.Altitude.Set(PressureFromGeometric(t.GeometricAltitude.Value(), inHg), s)
	}
	if t.Altitude.Stamp() == 0 {
		return false
	}
	return t.GeometricAltitude.Set(GeometricFromPressure(t.Altitude.Value(), inHg), s)
}
