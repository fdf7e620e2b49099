package web

import (
	"embed"
	"fmt"
	"html/template"

	"github.com/signalsfoundry/spectrum-manager/model"
)

//go:embed templates/index.html
var templateFS embed.FS

// Chart geometry in SVG user units.
const (
	chartWidth  = 720
	chartHeight = 120
	chartMargin = 24
	barGap      = 4
)

// ChartTitle heads the occupancy chart.
const ChartTitle = "Spectrum Occupancy (Green = Free, Red = Occupied)"

const (
	colorFree     = "#2e9e44"
	colorOccupied = "#d62f2f"
)

// Bar is one band drawn in the occupancy chart. Every bar has full height;
// only the colour carries state.
type Bar struct {
	Index  int
	X      float64
	Y      float64
	Width  float64
	Height float64
	LabelX float64
	Color  string
	State  string
}

// Chart is the SVG view of an occupancy sequence.
type Chart struct {
	Title  string
	Width  int
	Height int
	TitleX int
	LabelY int
	Bars   []Bar
}

type pageData struct {
	Settings      SettingsView
	Running       bool
	Environments  []model.Environment
	MinInterval   int
	MaxInterval   int
	Cycle         *model.Cycle
	Chart         Chart
	FreeColor     string
	OccupiedColor string
}

func parsePage() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return tmpl, nil
}

// NewChart lays out one full-height bar per band.
func NewChart(occ model.Occupancy) Chart {
	c := Chart{
		Title:  ChartTitle,
		Width:  chartWidth,
		Height: chartHeight,
		TitleX: chartWidth / 2,
		LabelY: chartHeight - 6,
	}
	n := occ.Len()
	if n == 0 {
		return c
	}
	slot := float64(chartWidth-2*chartMargin) / float64(n)
	barHeight := float64(chartHeight - 2*chartMargin)
	for i := 0; i < n; i++ {
		x := float64(chartMargin) + float64(i)*slot
		b := Bar{
			Index:  i,
			X:      x + barGap/2,
			Y:      chartMargin,
			Width:  slot - barGap,
			Height: barHeight,
			LabelX: x + slot/2,
			Color:  colorOccupied,
			State:  model.Occupied.String(),
		}
		if occ.IsFree(i) {
			b.Color = colorFree
			b.State = model.Free.String()
		}
		c.Bars = append(c.Bars, b)
	}
	return c
}

func newPageData(s model.Settings, running bool, latest *model.Cycle) pageData {
	d := pageData{
		Settings:      newSettingsView(s),
		Running:       running,
		Environments:  model.Environments,
		MinInterval:   int(model.MinInterval.Seconds()),
		MaxInterval:   int(model.MaxInterval.Seconds()),
		Cycle:         latest,
		FreeColor:     colorFree,
		OccupiedColor: colorOccupied,
	}
	if latest != nil {
		d.Chart = NewChart(latest.Occupancy)
	} else {
		d.Chart = NewChart(nil)
	}
	return d
}
