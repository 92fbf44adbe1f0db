// Package icao provides the 24-bit transponder address that identifies a
// tracked aircraft.
package icao

import (
	"errors"
	"fmt"
	"strings"
)

// ID is a 24-bit ICAO aircraft address. Zero is the unset value.
type ID uint32

// Valid range of an ID.
const (
	MinID ID = 0x000001
	MaxID ID = 0xFFFFFF
)

// digits is the number of hex digits in the canonical form.
const digits = 6

var (
	ErrEmpty            = errors.New("icao: no hex digits")
	ErrInvalidCharacter = errors.New("icao: invalid character")
	ErrTooLong          = errors.New("icao: more than six hex digits")
	ErrOutOfRange       = errors.New("icao: address out of range")
)

// ParseOptions controls how Parse treats malformed input.
type ParseOptions struct {
	// Strict rejects any character that is not a hex digit. When false,
	// such characters are skipped.
	Strict bool

	// Truncate keeps the first six hex digits of overlong input instead of
	// rejecting it.
	Truncate bool
}

// Parse converts text to an ID according to opts.
func Parse(s string, opts ParseOptions) (ID, error) {
	var v uint32
	n := 0
	for i := 0; i < len(s); i++ {
		d, ok := hexValue(s[i])
		if !ok {
			if opts.Strict {
				return 0, fmt.Errorf("%w %q in %q", ErrInvalidCharacter, s[i], s)
			}
			continue
		}
		if n == digits {
			if opts.Truncate {
				break
			}
			return 0, fmt.Errorf("%w: %q", ErrTooLong, s)
		}
		v = v<<4 | uint32(d)
		n++
	}

	if n == 0 {
		return 0, ErrEmpty
	}
	id := ID(v)
	if !id.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}
	return id, nil
}

// MustParse parses s strictly and panics on error. Intended for constants and
// tests.
func MustParse(s string) ID {
	id, err := Parse(s, ParseOptions{Strict: true})
	if err != nil {
		panic(err)
	}
	return id
}

// Valid reports whether id is within MinID..MaxID.
func (id ID) Valid() bool {
	return id >= MinID && id <= MaxID
}

// String returns the canonical six-digit upper-case hex form.
func (id ID) String() string {
	return fmt.Sprintf("%06X", uint32(id))
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Parsing is permissive and
// truncates overlong input, matching what feeds send in practice.
func (id *ID) UnmarshalText(text []byte) error {
	v, err := Parse(strings.TrimSpace(string(text)), ParseOptions{Truncate: true})
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
