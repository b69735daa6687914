package trackers

import (
	"image/color"
	"sync"

	"github.com/bebop2/ppo/utils/logging"
	"github.com/rs/zerolog"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot keeps the per-episode score and average score and redraws a
// learning curve image every fixed number of episodes.
type Plot struct {
	mu       sync.Mutex
	filename string
	every    int
	log      zerolog.Logger

	scores   plotter.XYs
	averages plotter.XYs
}

// NewPlot returns a new Plot Recorder writing a PNG image to filename
// each time an average score is recorded for an episode that is a
// multiple of every.
func NewPlot(filename string, every int, log zerolog.Logger) *Plot {
	return &Plot{
		filename: filename,
		every:    every,
		log:      logging.Component(log, "plot"),
	}
}

// Record implements the Recorder interface. Only the score and average
// score series are kept.
func (p *Plot) Record(name string, value float64, step int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case Score:
		p.scores = append(p.scores, plotter.XY{X: float64(step), Y: value})

	case AverageScore:
		p.averages = append(p.averages, plotter.XY{X: float64(step), Y: value})
		if p.every > 0 && step%p.every == 0 {
			if err := p.save(); err != nil {
				p.log.Warn().Err(err).Str("file", p.filename).
					Msg("could not save learning curve")
			}
		}
	}
}

// Save draws the learning curve now
func (p *Plot) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.save()
}

func (p *Plot) save() error {
	pl := plot.New()
	pl.Title.Text = "Learning Progress"
	pl.X.Label.Text = "Episodes"
	pl.Y.Label.Text = "Score"
	pl.Add(plotter.NewGrid())

	if len(p.scores) > 0 {
		line, err := plotter.NewLine(p.scores)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{B: 255, A: 255}
		pl.Add(line)
		pl.Legend.Add("score", line)
	}

	if len(p.averages) > 0 {
		line, err := plotter.NewLine(p.averages)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 255, A: 255}
		line.Width = vg.Points(2)
		pl.Add(line)
		pl.Legend.Add("average", line)
	}
	pl.Legend.Top = true

	return pl.Save(18*vg.Inch, 9*vg.Inch, p.filename)
}
