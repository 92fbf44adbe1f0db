package feed

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

func TestFlexInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FlexInt
		wantErr bool
	}{
		{"integer", `7700`, 7700, false},
		{"string number", `"7500"`, 7500, false},
		{"leading zeros", `"0400"`, 400, false},
		{"zero", `0`, 0, false},
		{"invalid string", `"squawk"`, 0, true},
		{"bool", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexInt
			err := json.Unmarshal([]byte(tt.input), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FlexInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFlexTime_UnmarshalJSON(t *testing.T) {
	want := time.Date(2024, 1, 15, 12, 0, 0, 500_000_000, time.UTC)

	var f FlexTime
	if err := json.Unmarshal([]byte(`1705320000.5`), &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := time.Time(f); got.Sub(want).Abs() > time.Millisecond {
		t.Errorf("unix seconds = %v, want %v", got, want)
	}

	if err := json.Unmarshal([]byte(`"2024-01-15T12:00:00.5Z"`), &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := time.Time(f); !got.Equal(want) {
		t.Errorf("RFC 3339 = %v, want %v", got, want)
	}
}

func TestDecode_Flat(t *testing.T) {
	line := `{"icao":"4ca123","alt":35000,"alt_type":"geom","baro_inhg":30.12,"spd":450.5,"trk":271.2,` +
		`"vsi":-640,"sqk":"7700","gnd":false,"call":"RYR12AB ","lat":53.42,"lon":-6.27,"xpdr":"adsb2","ts":1705320000}`

	rep, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if rep.ICAO != icao.ID(0x4CA123) {
		t.Errorf("ICAO = %s, want 4CA123", rep.ICAO)
	}
	if rep.Altitude == nil || *rep.Altitude != 35000 {
		t.Errorf("Altitude = %v, want 35000", rep.Altitude)
	}
	if rep.AltitudeType == nil || *rep.AltitudeType != aircraft.AltitudeGeometric {
		t.Errorf("AltitudeType = %v, want geometric", rep.AltitudeType)
	}
	if rep.AirPressureInHg == nil || *rep.AirPressureInHg != 30.12 {
		t.Errorf("AirPressureInHg = %v, want 30.12", rep.AirPressureInHg)
	}
	if rep.Squawk == nil || *rep.Squawk != 7700 {
		t.Errorf("Squawk = %v, want 7700", rep.Squawk)
	}
	if rep.OnGround == nil || *rep.OnGround {
		t.Errorf("OnGround = %v, want explicit false", rep.OnGround)
	}
	if rep.Position == nil || rep.Position.Latitude != 53.42 || rep.Position.Longitude != -6.27 {
		t.Errorf("Position = %+v", rep.Position)
	}
	if rep.TransponderType == nil || *rep.TransponderType != aircraft.TransponderADSB2 {
		t.Errorf("TransponderType = %v, want adsb2", rep.TransponderType)
	}
	if !rep.ReceivedAt.Equal(time.Unix(1705320000, 0)) {
		t.Errorf("ReceivedAt = %v", rep.ReceivedAt)
	}

	// Absent fields stay absent.
	if rep.Emergency != nil || rep.SignalLevel != nil || rep.IsTisb != nil || rep.SpeedType != nil {
		t.Errorf("absent fields decoded as present: %+v", rep)
	}
}

func TestDecode_Envelope(t *testing.T) {
	line := `{"source":{"name":"dub-01","application":"readsb"},"report":{"icao":"~43C001","alt":1200,"tisb":true}}`

	rep, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rep.ICAO != icao.ID(0x43C001) {
		t.Errorf("ICAO = %s, want 43C001", rep.ICAO)
	}
	if rep.Source != "dub-01" {
		t.Errorf("Source = %q, want dub-01", rep.Source)
	}
	if rep.IsTisb == nil || !*rep.IsTisb {
		t.Errorf("IsTisb = %v, want true", rep.IsTisb)
	}
}

func TestDecode_PositionNeedsBothHalves(t *testing.T) {
	rep, err := Decode([]byte(`{"icao":"ABCDEF","lat":51.5}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rep.Position != nil {
		t.Errorf("Position = %+v, want nil", rep.Position)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `icao=ABCDEF`},
		{"no icao", `{"alt":1000}`},
		{"bad icao", `{"icao":"XYZ"}`},
		{"zero icao", `{"icao":"000000"}`},
		{"bad altitude type", `{"icao":"ABCDEF","alt":100,"alt_type":"sideways"}`},
		{"bad squawk", `{"icao":"ABCDEF","sqk":"mayday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.line)); err == nil {
				t.Errorf("Decode(%s) returned no error", tt.line)
			}
		})
	}

	if _, err := Decode([]byte(`{"alt":1000}`)); !errors.Is(err, ErrNoReport) {
		t.Errorf("Decode without icao error = %v, want ErrNoReport", err)
	}
}
