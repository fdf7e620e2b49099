package core

import "github.com/signalsfoundry/spectrum-manager/model"

// SelectBand picks one free band from occ. Urban prefers the lowest free
// index; every other label prefers the highest. With no free band it returns
// model.NoSelection.
func SelectBand(occ model.Occupancy, env model.Environment) model.Selection {
	free := occ.FreeBands()
	if len(free) == 0 {
		return model.NoSelection
	}
	if env.PrefersLowBands() {
		return model.Selected(free[0])
	}
	return model.Selected(free[len(free)-1])
}
