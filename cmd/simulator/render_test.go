package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/signalsfoundry/spectrum-manager/core"
	"github.com/signalsfoundry/spectrum-manager/model"
)

func cycleFor(t *testing.T, env model.Environment, bits ...int) model.Cycle {
	t.Helper()
	occ, err := model.OccupancyFromBits(bits)
	if err != nil {
		t.Fatalf("OccupancyFromBits: %v", err)
	}
	sel := core.SelectBand(occ, env)
	return model.Cycle{
		Seq:         1,
		Environment: env,
		Occupancy:   occ,
		Selection:   sel,
		Log:         core.CognitionCycle(sel),
		Outcome:     core.OutcomeFor(sel),
	}
}

func TestRenderPlainAllocated(t *testing.T) {
	c := cycleFor(t, model.Urban, 1, 0, 1, 1, 0, 1, 1, 0, 1, 1, 1, 1)

	var buf bytes.Buffer
	if err := (&Renderer{}).Render(&buf, c); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	lines := strings.Split(buf.String(), "\n")
	if !strings.HasPrefix(lines[0], chartTitle) {
		t.Fatalf("first line = %q", lines[0])
	}
	if got := strings.Fields(lines[1]); len(got) != 12 || got[0] != barCell || got[1] != "░░░" {
		t.Fatalf("bar line = %q", lines[1])
	}
	if got := strings.Fields(lines[2]); len(got) != 12 || got[11] != "11" {
		t.Fatalf("tick line = %q", lines[2])
	}
	out := buf.String()
	if !strings.Contains(out, "Decide: Selected Band: 1") || !strings.Contains(out, "[OK] Secondary user allocated to Band 1") {
		t.Fatalf("unexpected report:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain output contains ANSI escapes")
	}
}

func TestRenderColourWaiting(t *testing.T) {
	c := cycleFor(t, model.Rural, 1, 1, 1, 1)

	var buf bytes.Buffer
	if err := (&Renderer{Color: true}).Render(&buf, c); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, ansiRed+barCell+ansiReset) != 4 || strings.Contains(out, ansiGreen+barCell) {
		t.Fatalf("expected four red bars:\n%q", out)
	}
	if !strings.Contains(out, "[WARN] No free spectrum found. Waiting...") {
		t.Fatalf("missing warning:\n%s", out)
	}
}
