package core

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/signalsfoundry/spectrum-manager/model"
)

func TestSenseSpectrumLengthAndBinary(t *testing.T) {
	s := NewSensor(model.DefaultBandCount, 42)
	for range 200 {
		occ := s.Sense()
		if err := occ.Validate(model.DefaultBandCount); err != nil {
			t.Fatalf("Sense() produced invalid occupancy %v: %v", occ.Bits(), err)
		}
	}
}

func TestSenseSpectrumDefaultsBandCount(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	if got := SenseSpectrum(r, 0).Len(); got != model.DefaultBandCount {
		t.Fatalf("SenseSpectrum(0) length = %d, want %d", got, model.DefaultBandCount)
	}
	if got := NewSensor(-3, 1).Bands(); got != model.DefaultBandCount {
		t.Fatalf("NewSensor(-3).Bands() = %d, want %d", got, model.DefaultBandCount)
	}
}

func TestSenseSpectrumSeedIsReproducible(t *testing.T) {
	a := NewSensor(16, 7)
	b := NewSensor(16, 7)
	for range 10 {
		x, y := a.Sense(), b.Sense()
		for i := range x {
			if x[i] != y[i] {
				t.Fatalf("same seed diverged: %v vs %v", x.Bits(), y.Bits())
			}
		}
	}
}

func TestSenseSpectrumProducesBothStates(t *testing.T) {
	s := NewSensor(model.DefaultBandCount, 99)
	var free, occupied int
	for range 100 {
		occ := s.Sense()
		free += occ.FreeCount()
		occupied += occ.Len() - occ.FreeCount()
	}
	// 1200 fair draws; both states must show up in volume.
	if free < 400 || occupied < 400 {
		t.Fatalf("draws look biased: free=%d occupied=%d", free, occupied)
	}
}

func TestSensorConcurrentUse(t *testing.T) {
	s := NewRandomSensor(8)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if occ := s.Sense(); occ.Len() != 8 {
					t.Errorf("Sense() length = %d, want 8", occ.Len())
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestStats(t *testing.T) {
	occ, _ := model.OccupancyFromBits([]int{1, 0, 1, 1})
	st := Stats(occ)
	if st.Bands != 4 || st.FreeBands != 1 {
		t.Fatalf("Stats = %+v, want 4 bands / 1 free", st)
	}
	if st.Ratio != 0.75 {
		t.Fatalf("Ratio = %v, want 0.75", st.Ratio)
	}
	if empty := Stats(nil); empty.Ratio != 0 || empty.Bands != 0 {
		t.Fatalf("Stats(nil) = %+v, want zero", empty)
	}
}
