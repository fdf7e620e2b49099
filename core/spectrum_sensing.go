package core

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/signalsfoundry/spectrum-manager/model"
)

// SenseSpectrum draws a fresh occupancy sequence of n bands, each flag
// independently and uniformly from {Free, Occupied}. A non-positive n falls
// back to model.DefaultBandCount.
func SenseSpectrum(r *rand.Rand, n int) model.Occupancy {
	if n <= 0 {
		n = model.DefaultBandCount
	}
	occ := make(model.Occupancy, n)
	for i := range occ {
		occ[i] = model.BandState(r.IntN(2))
	}
	return occ
}

// Sensor is the spectrum state generator. It owns its random source so that
// concurrent callers never share an unsynchronised generator.
type Sensor struct {
	bands int

	mu   sync.Mutex
	rand *rand.Rand
}

// NewSensor returns a sensor over n bands with a deterministic source.
func NewSensor(n int, seed uint64) *Sensor {
	if n <= 0 {
		n = model.DefaultBandCount
	}
	return &Sensor{
		bands: n,
		rand:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// NewRandomSensor returns a sensor seeded from the wall clock.
func NewRandomSensor(n int) *Sensor {
	return NewSensor(n, uint64(time.Now().UnixNano()))
}

// Bands returns the fixed band count.
func (s *Sensor) Bands() int { return s.bands }

// Sense replaces nothing and remembers nothing: every call returns a new,
// independently drawn sequence.
func (s *Sensor) Sense() model.Occupancy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SenseSpectrum(s.rand, s.bands)
}
