// Command ppo trains a PPO agent to fly the follower drone of the
// bebop2 follower task.
//
// While training, new learning rates can be typed on standard input,
// one per line. An interrupt saves a forced checkpoint and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bebop2/ppo/agent/ppo"
	"github.com/bebop2/ppo/config"
	"github.com/bebop2/ppo/environment"
	"github.com/bebop2/ppo/environment/bebop"
	"github.com/bebop2/ppo/experiment"
	"github.com/bebop2/ppo/experiment/trackers"
	"github.com/bebop2/ppo/hyperparam"
	"github.com/bebop2/ppo/utils/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Flags holds the command line flags
type Flags struct {
	Config       string
	Load         string
	StartEpisode int
	Episodes     int
	Progress     bool
	MetricsAddr  string
	LogLevel     string
	Test         bool
}

// Add adds the flags to fs
func (f *Flags) Add(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "YAML configuration `file`")
	fs.StringVar(&f.Load, "load", "", "checkpoint `directory` to resume from")
	fs.IntVar(&f.StartEpisode, "start-episode", -1,
		"episode counter to resume from (default: from the checkpoint)")
	fs.IntVar(&f.Episodes, "episodes", -1,
		"number of episodes to run, 0 for no limit (default: from config)")
	fs.BoolVar(&f.Progress, "progress", false, "show a progress bar")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "",
		"`address` to serve Prometheus metrics on")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level")
	fs.BoolVar(&f.Test, "test", false,
		"run the mean policy without learning or saving")
}

func main() {
	var flags Flags
	flags.Add(flag.CommandLine)
	flag.Parse()

	if err := run(flags); err != nil {
		fmt.Fprintln(os.Stderr, "ppo:", err)
		os.Exit(1)
	}
}

func run(flags Flags) error {
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	if flags.Episodes >= 0 {
		cfg.Experiment.Episodes = flags.Episodes
	}
	if flags.MetricsAddr != "" {
		cfg.Metrics.Addr = flags.MetricsAddr
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	runDir := filepath.Join(cfg.CheckpointDir, uuid.New().String())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return errors.Wrap(err, "could not create run directory")
	}
	if err := config.Save(filepath.Join(runDir, "config.yaml"), cfg); err != nil {
		return err
	}
	log = log.With().Str("run", filepath.Base(runDir)).Logger()
	log.Info().Str("dir", runDir).Bool("test", flags.Test).Msg("starting")

	// Environment
	link := bebop.NewLoopback(cfg.Loopback)
	task, err := bebop.New(link, cfg.Env, log)
	if err != nil {
		return err
	}
	env := environment.NewStepLimit(task, cfg.Env.EpisodeSteps)

	// Telemetry
	series := trackers.NewSeries(filepath.Join(runDir, "metrics.gob"))
	recorders := trackers.Multi{series}

	var plot *trackers.Plot
	if cfg.Metrics.PlotEvery > 0 {
		plot = trackers.NewPlot(filepath.Join(runDir, "learning_curve.png"),
			cfg.Metrics.PlotEvery, log)
		recorders = append(recorders, plot)
	}

	if cfg.Metrics.Addr != "" {
		prom, err := trackers.NewPrometheus(cfg.Metrics.Namespace)
		if err != nil {
			return err
		}
		recorders = append(recorders, prom)

		srv := serveMetrics(cfg.Metrics.Addr, prom.Handler(), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// Agent
	lr, err := hyperparam.NewLearningRate(cfg.Agent.LearningRate)
	if err != nil {
		return err
	}
	agent, err := ppo.New(env, cfg.Agent, ppo.Options{
		CheckpointDir: runDir,
		LearningRate:  lr,
		Recorder:      recorders,
		Log:           log,
	})
	if err != nil {
		return err
	}
	defer agent.Close()

	if err := resume(agent, flags, log); err != nil {
		return err
	}

	if flags.Test {
		agent.Eval()
	} else {
		console := hyperparam.NewConsole(lr, os.Stdin, log)
		go func() {
			if err := console.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("learning rate console stopped")
			}
		}()
	}

	// Training loop
	driver, err := experiment.NewDriver(env, agent, cfg.Experiment, log,
		trackers.NewReturn(filepath.Join(runDir, "returns.bin")),
		trackers.NewEpisodeLength(filepath.Join(runDir, "lengths.bin")),
	)
	if err != nil {
		return err
	}
	if flags.Progress {
		driver.ShowProgress(os.Stderr)
	}

	runErr := driver.Run(ctx)

	if err := series.Save(); err != nil {
		log.Error().Err(err).Msg("could not save metrics")
	}
	if plot != nil {
		if err := plot.Save(); err != nil {
			log.Error().Err(err).Msg("could not save learning curve")
		}
	}
	return runErr
}

// resume restores the agent from the checkpoint given on the command
// line, if any
func resume(agent *ppo.PPO, flags Flags, log zerolog.Logger) error {
	if flags.Load != "" {
		if err := agent.Load(flags.Load); err != nil {
			return err
		}
		if err := agent.LoadState(flags.Load); err != nil {
			log.Warn().Err(err).Str("dir", flags.Load).
				Msg("no training state in checkpoint, starting counters at 0")
		}
		log.Info().Str("dir", flags.Load).Int("episode",
			agent.State().Episode).Msg("resumed")
	}
	if flags.StartEpisode >= 0 {
		agent.SetEpisode(flags.StartEpisode)
	}
	return nil
}

// serveMetrics serves handler on addr under /metrics until the
// returned server is shut down
func serveMetrics(addr string, handler http.Handler,
	log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
