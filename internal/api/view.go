package api

import (
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/stamp"
	"github.com/vradarserver/vrscore-sub000/internal/versioned"
)

// AircraftResponse is the JSON form of a record. Fields that have not changed
// since the requested stamp are omitted.
type AircraftResponse struct {
	ICAOHex   string      `json:"icao_hex"`
	Stamp     stamp.Stamp `json:"stamp"`
	FirstSeen string      `json:"first_seen,omitempty"`
	Messages  int64       `json:"messages"`

	Altitude          *int                      `json:"alt,omitempty"`
	GeometricAltitude *int                      `json:"geom_alt,omitempty"`
	AltitudeType      *aircraft.AltitudeType    `json:"alt_type,omitempty"`
	AirPressureInHg   *float64                  `json:"baro_inhg,omitempty"`
	GroundSpeed       *float64                  `json:"spd,omitempty"`
	SpeedType         *aircraft.SpeedType       `json:"spd_type,omitempty"`
	Track             *float64                  `json:"trk,omitempty"`
	TrackIsHeading    *bool                     `json:"trk_is_hdg,omitempty"`
	VerticalRate      *int                      `json:"vsi,omitempty"`
	VerticalRateType  *aircraft.AltitudeType    `json:"vsi_type,omitempty"`
	Squawk            *int                      `json:"sqk,omitempty"`
	SquawkIsEmergency *bool                     `json:"sqk_emg,omitempty"`
	Emergency         *bool                     `json:"emg,omitempty"`
	OnGround          *bool                     `json:"gnd,omitempty"`
	Callsign          *string                   `json:"call,omitempty"`
	SignalLevel       *int                      `json:"sig,omitempty"`
	Position          *PositionResponse         `json:"pos,omitempty"`
	TransponderType   *aircraft.TransponderType `json:"xpdr,omitempty"`
	IsTisb            *bool                     `json:"tisb,omitempty"`

	Registration *string `json:"registration,omitempty"`
	Country      *string `json:"country,omitempty"`
	Manufacturer *string `json:"manufacturer,omitempty"`
	Model        *string `json:"model,omitempty"`
	ModelICAO    *string `json:"model_icao,omitempty"`
	Operator     *string `json:"operator,omitempty"`
	OperatorICAO *string `json:"operator_icao,omitempty"`
	Serial       *string `json:"serial,omitempty"`
	YearBuilt    *int    `json:"year_built,omitempty"`
	IsMilitary   *bool   `json:"military,omitempty"`
}

// PositionResponse is a position and the time it was last changed.
type PositionResponse struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	At        string  `json:"at"`
}

// changed returns the field's value if it changed after since.
func changed[T comparable](f *versioned.Field[T], since stamp.Stamp) *T {
	if !f.ChangedSince(since) {
		return nil
	}
	v := f.Value()
	return &v
}

// NewAircraftResponse builds the response for a record copy. A since of zero
// includes every field that has ever been set.
func NewAircraftResponse(rec *aircraft.Record, since stamp.Stamp) AircraftResponse {
	t, e := &rec.Transmitted, &rec.Enrichment

	resp := AircraftResponse{
		ICAOHex:  rec.ID().String(),
		Stamp:    rec.Stamp(),
		Messages: rec.MessageCount(),

		Altitude:          changed(&t.Altitude, since),
		GeometricAltitude: changed(&t.GeometricAltitude, since),
		AltitudeType:      changed(&t.AltitudeType, since),
		AirPressureInHg:   changed(&t.AirPressureInHg, since),
		GroundSpeed:       changed(&t.GroundSpeed, since),
		SpeedType:         changed(&t.SpeedType, since),
		Track:             changed(&t.Track, since),
		TrackIsHeading:    changed(&t.TrackIsHeading, since),
		VerticalRate:      changed(&t.VerticalRate, since),
		VerticalRateType:  changed(&t.VerticalRateType, since),
		Squawk:            changed(&t.Squawk, since),
		SquawkIsEmergency: changed(&t.SquawkIsEmergency, since),
		Emergency:         changed(&t.Emergency, since),
		OnGround:          changed(&t.OnGround, since),
		Callsign:          changed(&t.Callsign, since),
		SignalLevel:       changed(&t.SignalLevel, since),
		TransponderType:   changed(&t.TransponderType, since),
		IsTisb:            changed(&t.IsTisb, since),

		Registration: changed(&e.Registration, since),
		Country:      changed(&e.Country, since),
		Manufacturer: changed(&e.Manufacturer, since),
		Model:        changed(&e.Model, since),
		ModelICAO:    changed(&e.ModelICAO, since),
		Operator:     changed(&e.Operator, since),
		OperatorICAO: changed(&e.OperatorICAO, since),
		Serial:       changed(&e.Serial, since),
		YearBuilt:    changed(&e.YearBuilt, since),
		IsMilitary:   changed(&e.IsMilitary, since),
	}

	if first := rec.FirstSeen(); !first.IsZero() {
		resp.FirstSeen = first.UTC().Format(time.RFC3339)
	}
	if pos := changed(&t.Position.Field, since); pos != nil {
		resp.Position = &PositionResponse{
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			At:        t.Position.ChangedAt().UTC().Format(time.RFC3339Nano),
		}
	}
	return resp
}
