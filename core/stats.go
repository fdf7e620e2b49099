package core

import (
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/spectrum-manager/model"
)

// OccupancyStats summarises one sensing pass.
type OccupancyStats struct {
	Bands     int     `json:"bands"`
	FreeBands int     `json:"free_bands"`
	Ratio     float64 `json:"occupancy_ratio"` // fraction of occupied bands
}

// Stats computes band counts and the occupied fraction of occ.
func Stats(occ model.Occupancy) OccupancyStats {
	st := OccupancyStats{Bands: occ.Len(), FreeBands: occ.FreeCount()}
	if occ.Len() == 0 {
		return st
	}
	flags := make([]float64, occ.Len())
	for i, s := range occ {
		flags[i] = float64(s)
	}
	st.Ratio = stat.Mean(flags, nil)
	return st
}
