package core

import (
	"fmt"

	"github.com/signalsfoundry/spectrum-manager/model"
)

// Fixed cycle log messages.
const (
	MsgSensed        = "Spectrum sensed successfully."
	MsgOriented      = "Knowledge structured based on band usage."
	MsgPlanning      = "Selecting the optimal free band."
	MsgNoFreeBand    = "No free band available."
	MsgTuned         = "Cognitive radio tuned to the new band."
	MsgWaitingForGap = "Waiting for spectrum opportunity."

	MsgAllocated  = "Secondary user allocated to Band %d"
	MsgNoSpectrum = "No free spectrum found. Waiting..."
)

// CognitionCycle builds the five-phase log for a selection. Only Decide and
// Act depend on whether a band was chosen.
func CognitionCycle(sel model.Selection) model.CycleLog {
	decide, act := MsgNoFreeBand, MsgWaitingForGap
	if band, ok := sel.Get(); ok {
		decide = fmt.Sprintf("Selected Band: %d", band)
		act = MsgTuned
	}
	return model.CycleLog{
		{Phase: model.PhaseSense, Message: MsgSensed},
		{Phase: model.PhaseOrient, Message: MsgOriented},
		{Phase: model.PhasePlan, Message: MsgPlanning},
		{Phase: model.PhaseDecide, Message: decide},
		{Phase: model.PhaseAct, Message: act},
	}
}

// OutcomeFor returns the operator-facing result of a cycle.
func OutcomeFor(sel model.Selection) model.Outcome {
	if band, ok := sel.Get(); ok {
		return model.Outcome{
			Status:  model.OutcomeAllocated,
			Message: fmt.Sprintf(MsgAllocated, band),
		}
	}
	return model.Outcome{Status: model.OutcomeWaiting, Message: MsgNoSpectrum}
}
