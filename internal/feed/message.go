// Package feed decodes transponder reports from JSON feeds and applies them
// to the aircraft store.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

// ErrNoReport is returned by Decode when a line holds valid JSON that is not
// a report.
var ErrNoReport = errors.New("no report in message")

// FlexInt handles JSON fields that can be either string or number.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("want number or string, got %s", data)
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("parse %q: %w", s, err)
	}
	*f = FlexInt(i)
	return nil
}

// FlexTime accepts Unix seconds (fractional allowed) or an RFC 3339 string.
type FlexTime time.Time

func (f *FlexTime) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		whole, frac := math.Modf(secs)
		*f = FlexTime(time.Unix(int64(whole), int64(frac*1e9)).UTC())
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("want number or string, got %s", data)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*f = FlexTime(t)
	return nil
}

// Message is a flat report as carried on the wire. Optional fields are
// pointers so that an absent field is not mistaken for a zero reading.
type Message struct {
	ICAO string `json:"icao"`

	Altitude     *int     `json:"alt,omitempty"`
	AltitudeType string   `json:"alt_type,omitempty"`
	BaroInHg     *float64 `json:"baro_inhg,omitempty"`

	Speed     *float64 `json:"spd,omitempty"`
	SpeedType string   `json:"spd_type,omitempty"`

	Track          *float64 `json:"trk,omitempty"`
	TrackIsHeading *bool    `json:"trk_is_hdg,omitempty"`

	VerticalRate     *int   `json:"vsi,omitempty"`
	VerticalRateType string `json:"vsi_type,omitempty"`

	Squawk    *FlexInt `json:"sqk,omitempty"`
	Emergency *bool    `json:"emg,omitempty"`
	OnGround  *bool    `json:"gnd,omitempty"`
	Callsign  *string  `json:"call,omitempty"`
	Signal    *int     `json:"sig,omitempty"`

	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`

	Transponder string    `json:"xpdr,omitempty"`
	IsTisb      *bool     `json:"tisb,omitempty"`
	Timestamp   *FlexTime `json:"ts,omitempty"`
}

// Envelope is the wrapped feed format where the report is nested inside a
// "report" field with source metadata at the top level.
type Envelope struct {
	Source *Source  `json:"source,omitempty"`
	Report *Message `json:"report,omitempty"`
}

// Source identifies the receiver that produced a report.
type Source struct {
	Name        string `json:"name,omitempty"`
	Application string `json:"application,omitempty"`
}

// ToReport converts m into a store report. The identity may carry a
// non-hex marker such as the "~" readsb uses for TIS-B addresses.
func (m *Message) ToReport() (aircraft.Report, error) {
	id, err := icao.Parse(m.ICAO, icao.ParseOptions{})
	if err != nil {
		return aircraft.Report{}, fmt.Errorf("icao: %w", err)
	}

	rep := aircraft.Report{
		ICAO:            id,
		Altitude:        m.Altitude,
		AirPressureInHg: m.BaroInHg,
		GroundSpeed:     m.Speed,
		Track:           m.Track,
		TrackIsHeading:  m.TrackIsHeading,
		VerticalRate:    m.VerticalRate,
		Emergency:       m.Emergency,
		OnGround:        m.OnGround,
		Callsign:        m.Callsign,
		SignalLevel:     m.Signal,
		IsTisb:          m.IsTisb,
	}

	if m.AltitudeType != "" {
		t, err := aircraft.ParseAltitudeType(m.AltitudeType)
		if err != nil {
			return aircraft.Report{}, err
		}
		rep.AltitudeType = &t
	}
	if m.VerticalRateType != "" {
		t, err := aircraft.ParseAltitudeType(m.VerticalRateType)
		if err != nil {
			return aircraft.Report{}, fmt.Errorf("vsi_type: %w", err)
		}
		rep.VerticalRateType = &t
	}
	if m.SpeedType != "" {
		t, err := aircraft.ParseSpeedType(m.SpeedType)
		if err != nil {
			return aircraft.Report{}, err
		}
		rep.SpeedType = &t
	}
	if m.Transponder != "" {
		t, err := aircraft.ParseTransponderType(m.Transponder)
		if err != nil {
			return aircraft.Report{}, err
		}
		rep.TransponderType = &t
	}
	if m.Squawk != nil {
		sq := int(*m.Squawk)
		rep.Squawk = &sq
	}
	// A position needs both halves.
	if m.Latitude != nil && m.Longitude != nil {
		rep.Position = &aircraft.Position{Latitude: *m.Latitude, Longitude: *m.Longitude}
	}
	if m.Timestamp != nil {
		rep.ReceivedAt = time.Time(*m.Timestamp)
	}

	return rep, nil
}

// Decode parses one JSON document in either the wrapped or the flat format.
func Decode(b []byte) (aircraft.Report, error) {
	// 1) Envelope
	var env Envelope
	if err := json.Unmarshal(b, &env); err == nil && env.Report != nil {
		rep, err := env.Report.ToReport()
		if err != nil {
			return aircraft.Report{}, err
		}
		if env.Source != nil {
			rep.Source = env.Source.Name
		}
		return rep, nil
	}

	// 2) Flat message (only accept if it actually names an aircraft)
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return aircraft.Report{}, fmt.Errorf("decode: %w", err)
	}
	if strings.TrimSpace(m.ICAO) == "" {
		return aircraft.Report{}, ErrNoReport
	}
	return m.ToReport()
}
