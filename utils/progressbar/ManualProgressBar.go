// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ManualProgressBar implement progress bar functionality that must
// be manually managed. That is, the Display() function must be called
// whenever an updated progress bar should be printed to the screen.
//
// ManualProgressBar does not use concurrency.
type ManualProgressBar struct {
	out             io.Writer
	width           float64
	maxProgress     float64
	currentProgress float64
	suffix          string
	bar             strings.Builder
	startTime       time.Time
}

// NewManualProgressBar returns a new ManualProgressBar that writes to
// out, is width characters wide and reaches 100% at a progress of max.
func NewManualProgressBar(out io.Writer, width, max int) *ManualProgressBar {
	return &ManualProgressBar{
		out:             out,
		width:           float64(width),
		maxProgress:     float64(max),
		currentProgress: 0,
		startTime:       time.Now(),
	}
}

// SetProgress sets the progress counter. Progress past the maximum is
// clamped to it.
func (p *ManualProgressBar) SetProgress(progress int) {
	p.currentProgress = float64(progress)
	if p.currentProgress > p.maxProgress {
		p.currentProgress = p.maxProgress
	}
}

// SetSuffix sets a short status string printed after the bar
func (p *ManualProgressBar) SetSuffix(suffix string) {
	p.suffix = suffix
}

// String returns the current rendering of the bar
func (p *ManualProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	currentProg := 0.0
	if p.maxProgress > 0 {
		currentProg = p.currentProgress / p.maxProgress * p.width
	}
	for i := 0.0; i < currentProg; i++ {
		p.bar.WriteString("█")
	}
	for i := currentProg; i < p.width; i++ {
		p.bar.WriteString(" ")
	}

	percent := 0.0
	if p.maxProgress > 0 {
		percent = p.currentProgress / p.maxProgress * 100
	}
	p.bar.WriteString(fmt.Sprintf("| [%.2f%% | elapsed: %v]", percent,
		time.Since(p.startTime).Truncate(time.Second)))
	if p.suffix != "" {
		p.bar.WriteString(" " + p.suffix)
	}
	return p.bar.String()
}

// Display prints the progress bar, overwriting the previous line
func (p *ManualProgressBar) Display() {
	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.String())
}

// Close moves the cursor past the progress bar
func (p *ManualProgressBar) Close() {
	fmt.Fprintln(p.out)
}
