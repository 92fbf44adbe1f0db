// Package aircraft holds the per-aircraft state record and the two input
// shapes merged into it: transponder reports and enrichment lookup outcomes.
package aircraft

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AltitudeType says what an altitude is referenced to.
type AltitudeType int

const (
	// AltitudeBarometric is pressure altitude referenced to 29.92 inHg.
	AltitudeBarometric AltitudeType = iota
	// AltitudeGeometric is GNSS height above the ellipsoid.
	AltitudeGeometric
)

var altitudeTypeNames = []string{"baro", "geom"}

func (t AltitudeType) String() string {
	if int(t) < len(altitudeTypeNames) {
		return altitudeTypeNames[t]
	}
	return fmt.Sprintf("AltitudeType(%d)", int(t))
}

// ParseAltitudeType accepts the names produced by String plus a few common
// spellings used by feeds.
func ParseAltitudeType(s string) (AltitudeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "baro", "barometric", "pressure":
		return AltitudeBarometric, nil
	case "geom", "geometric", "gnss", "radar":
		return AltitudeGeometric, nil
	}
	return 0, fmt.Errorf("unknown altitude type %q", s)
}

// MarshalJSON encodes the type by name.
func (t AltitudeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a name.
func (t *AltitudeType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseAltitudeType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// SpeedType says what a speed measures.
type SpeedType int

const (
	SpeedGround SpeedType = iota
	SpeedGroundReversing
	SpeedIndicatedAir
	SpeedTrueAir
)

var speedTypeNames = []string{"gs", "gs_rev", "ias", "tas"}

func (t SpeedType) String() string {
	if int(t) < len(speedTypeNames) {
		return speedTypeNames[t]
	}
	return fmt.Sprintf("SpeedType(%d)", int(t))
}

// ParseSpeedType decodes a speed type name.
func ParseSpeedType(s string) (SpeedType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gs", "ground":
		return SpeedGround, nil
	case "gs_rev", "reversing":
		return SpeedGroundReversing, nil
	case "ias", "indicated":
		return SpeedIndicatedAir, nil
	case "tas", "true":
		return SpeedTrueAir, nil
	}
	return 0, fmt.Errorf("unknown speed type %q", s)
}

// MarshalJSON encodes the type by name.
func (t SpeedType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a name.
func (t *SpeedType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseSpeedType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TransponderType is the most capable transponder mode heard from an aircraft.
type TransponderType int

const (
	TransponderUnknown TransponderType = iota
	TransponderModeS
	TransponderADSB
	TransponderADSB0
	TransponderADSB1
	TransponderADSB2
)

var transponderTypeNames = []string{"unknown", "mode_s", "adsb", "adsb0", "adsb1", "adsb2"}

func (t TransponderType) String() string {
	if int(t) < len(transponderTypeNames) {
		return transponderTypeNames[t]
	}
	return fmt.Sprintf("TransponderType(%d)", int(t))
}

// ParseTransponderType decodes a transponder type name.
func ParseTransponderType(s string) (TransponderType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TransponderUnknown, nil
	}
	for i, name := range transponderTypeNames {
		if s == name {
			return TransponderType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown transponder type %q", s)
}

// MarshalJSON encodes the type by name.
func (t TransponderType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a name.
func (t *TransponderType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTransponderType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Position is a WGS84 latitude/longitude pair in degrees.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}
