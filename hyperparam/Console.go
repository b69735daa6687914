package hyperparam

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/bebop2/ppo/utils/logging"
	"github.com/rs/zerolog"
)

// Console reads new learning rates, one per line, from an input stream
// such as standard input and writes them to a LearningRate. A Console
// is the only writer of its LearningRate.
type Console struct {
	lr  *LearningRate
	in  io.Reader
	log zerolog.Logger
}

// NewConsole returns a new Console writing values read from in to lr
func NewConsole(lr *LearningRate, in io.Reader, log zerolog.Logger) *Console {
	return &Console{
		lr:  lr,
		in:  in,
		log: logging.Component(log, "console"),
	}
}

// Run reads lines until the input is exhausted or ctx is cancelled.
// Lines that are not positive numbers are logged and ignored. Run
// returns nil when the input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			c.handle(line)
		}
	}
}

// handle parses and applies a single line of input
func (c *Console) handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	value, err := strconv.ParseFloat(line, 64)
	if err != nil {
		c.log.Warn().Str("input", line).Msg("expected a numeric learning rate")
		return
	}
	if err := c.lr.Set(value); err != nil {
		c.log.Warn().Err(err).Msg("learning rate unchanged")
		return
	}
	c.log.Info().Float64("learning_rate", value).Msg("learning rate changed")
}
