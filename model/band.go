package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultBandCount is the number of bands sensed per cycle unless configured otherwise.
const DefaultBandCount = 12

// ErrBandCount indicates an occupancy sequence whose length does not match the
// configured band count, or a non-positive band count.
var ErrBandCount = errors.New("invalid band count")

// ErrBandState indicates an occupancy flag outside {0,1}.
var ErrBandState = errors.New("invalid band state")

// BandState is the occupancy flag of a single band during one cycle.
type BandState uint8

const (
	Free     BandState = 0
	Occupied BandState = 1
)

func (s BandState) String() string {
	switch s {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return fmt.Sprintf("BandState(%d)", uint8(s))
	}
}

// Occupancy is the ordered sequence of band flags produced by one sensing pass.
// Index i is band i.
type Occupancy []BandState

// OccupancyFromBits builds an Occupancy from 0/1 integers. Any other value is
// rejected with ErrBandState.
func OccupancyFromBits(bits []int) (Occupancy, error) {
	occ := make(Occupancy, len(bits))
	for i, b := range bits {
		switch b {
		case 0:
			occ[i] = Free
		case 1:
			occ[i] = Occupied
		default:
			return nil, fmt.Errorf("band %d = %d: %w", i, b, ErrBandState)
		}
	}
	return occ, nil
}

// Len returns the number of bands.
func (o Occupancy) Len() int { return len(o) }

// IsFree reports whether band i exists and is free.
func (o Occupancy) IsFree(i int) bool {
	return i >= 0 && i < len(o) && o[i] == Free
}

// FreeBands returns the indices of all free bands in ascending order.
func (o Occupancy) FreeBands() []int {
	free := make([]int, 0, len(o))
	for i, s := range o {
		if s == Free {
			free = append(free, i)
		}
	}
	return free
}

// FreeCount returns how many bands are free.
func (o Occupancy) FreeCount() int {
	n := 0
	for _, s := range o {
		if s == Free {
			n++
		}
	}
	return n
}

// Bits returns the 0/1 view of the sequence.
func (o Occupancy) Bits() []int {
	bits := make([]int, len(o))
	for i, s := range o {
		bits[i] = int(s)
	}
	return bits
}

// Clone returns an independent copy.
func (o Occupancy) Clone() Occupancy {
	if o == nil {
		return nil
	}
	out := make(Occupancy, len(o))
	copy(out, o)
	return out
}

// Validate checks that the sequence has exactly n bands and every flag is binary.
func (o Occupancy) Validate(n int) error {
	if len(o) != n {
		return fmt.Errorf("occupancy has %d bands, want %d: %w", len(o), n, ErrBandCount)
	}
	for i, s := range o {
		if s != Free && s != Occupied {
			return fmt.Errorf("band %d: %w", i, ErrBandState)
		}
	}
	return nil
}

// MarshalJSON encodes the sequence as a list of 0/1 integers.
func (o Occupancy) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Bits())
}

// UnmarshalJSON decodes a list of 0/1 integers.
func (o *Occupancy) UnmarshalJSON(data []byte) error {
	var bits []int
	if err := json.Unmarshal(data, &bits); err != nil {
		return err
	}
	occ, err := OccupancyFromBits(bits)
	if err != nil {
		return err
	}
	*o = occ
	return nil
}
