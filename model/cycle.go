package model

import "time"

// Phase names one step of the cognition cycle.
type Phase string

const (
	PhaseSense  Phase = "Sense"
	PhaseOrient Phase = "Orient"
	PhasePlan   Phase = "Plan"
	PhaseDecide Phase = "Decide"
	PhaseAct    Phase = "Act"
)

// Phases lists the cognition cycle in execution order.
var Phases = []Phase{PhaseSense, PhaseOrient, PhasePlan, PhaseDecide, PhaseAct}

// PhaseEntry is one line of the cycle log.
type PhaseEntry struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

// CycleLog is the ordered five-phase report of a cycle.
type CycleLog []PhaseEntry

// Get returns the message logged for phase p.
func (l CycleLog) Get(p Phase) (string, bool) {
	for _, e := range l {
		if e.Phase == p {
			return e.Message, true
		}
	}
	return "", false
}

// OutcomeStatus classifies the end of a cycle for the operator.
type OutcomeStatus string

const (
	// OutcomeAllocated means a secondary user was placed on a free band.
	OutcomeAllocated OutcomeStatus = "allocated"
	// OutcomeWaiting means no band was free; surfaced as a warning, not an error.
	OutcomeWaiting OutcomeStatus = "waiting"
)

// Outcome is the final success or warning message shown after the log.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}

// Allocated reports whether the outcome is a successful allocation.
func (o Outcome) Allocated() bool { return o.Status == OutcomeAllocated }

// Cycle is one full pass of sense, decide, report.
type Cycle struct {
	ID          string      `json:"id"`
	Seq         uint64      `json:"seq"`
	At          time.Time   `json:"at"`
	Environment Environment `json:"environment"`
	Occupancy   Occupancy   `json:"occupancy"`
	FreeBands   []int       `json:"free_bands"`
	Selection   Selection   `json:"selected_band"`
	Log         CycleLog    `json:"log"`
	Outcome     Outcome     `json:"outcome"`
}

// Clone returns a copy that shares no slices with c.
func (c Cycle) Clone() Cycle {
	out := c
	out.Occupancy = c.Occupancy.Clone()
	if c.FreeBands != nil {
		out.FreeBands = append([]int(nil), c.FreeBands...)
	}
	if c.Log != nil {
		out.Log = append(CycleLog(nil), c.Log...)
	}
	return out
}
