package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/spectrum-manager/model"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBold   = "\x1b[1m"

	chartTitle = "Spectrum Occupancy (Green = Free, Red = Occupied)"
	barCell    = "███"
	cellWidth  = 4
)

// Renderer writes a cycle as a terminal bar chart followed by its log and
// outcome. Without colour, free bands print as "░░░".
type Renderer struct {
	Color bool
}

// Render writes c to w.
func (r *Renderer) Render(w io.Writer, c model.Cycle) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s  [%s, cycle %d]\n", r.bold(chartTitle), c.Environment, c.Seq)
	var bars, ticks strings.Builder
	for i := 0; i < c.Occupancy.Len(); i++ {
		bars.WriteString(r.bar(c.Occupancy.IsFree(i)))
		bars.WriteByte(' ')
		fmt.Fprintf(&ticks, "%*d", cellWidth-1, i)
		ticks.WriteByte(' ')
	}
	fmt.Fprintln(bw, strings.TrimRight(bars.String(), " "))
	fmt.Fprintln(bw, strings.TrimRight(ticks.String(), " "))
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, r.bold("Cognition Cycle Log"))
	for _, e := range c.Log {
		fmt.Fprintf(bw, "%s: %s\n", r.bold(string(e.Phase)), e.Message)
	}
	fmt.Fprintln(bw)

	if c.Outcome.Allocated() {
		fmt.Fprintln(bw, r.paint(ansiGreen, "[OK] "+c.Outcome.Message))
	} else {
		fmt.Fprintln(bw, r.paint(ansiYellow, "[WARN] "+c.Outcome.Message))
	}
	fmt.Fprintln(bw)

	return bw.Flush()
}

func (r *Renderer) bar(free bool) string {
	if !r.Color {
		if free {
			return "░░░"
		}
		return barCell
	}
	if free {
		return ansiGreen + barCell + ansiReset
	}
	return ansiRed + barCell + ansiReset
}

func (r *Renderer) bold(s string) string { return r.paint(ansiBold, s) }

func (r *Renderer) paint(code, s string) string {
	if !r.Color {
		return s
	}
	return code + s + ansiReset
}
