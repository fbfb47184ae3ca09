package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

const (
	progressSteps            = 1000
	progressUpdatesPerSecond = 20
)

// progressBar adapts fractional progress callbacks to a terminal bar.
type progressBar struct {
	bar         *progressbar.ProgressBar
	description string
}

func newProgressBar(w io.Writer, description string, hidden bool) *progressBar {
	bar := progressbar.NewOptions(progressSteps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetVisibility(!hidden),
	)
	return &progressBar{bar: bar, description: description}
}

// Update matches fsguard.ProgressFunc.
func (p *progressBar) Update(fraction float64, label string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if label != "" {
		p.bar.Describe(p.description + " " + label)
	}
	_ = p.bar.Set(int(fraction * progressSteps))
}

func (p *progressBar) Finish() {
	_ = p.bar.Finish()
}
