package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Dicklesworthstone/procsampler/internal/config"
	"github.com/Dicklesworthstone/procsampler/internal/logging"
	"github.com/Dicklesworthstone/procsampler/internal/model"
	"github.com/Dicklesworthstone/procsampler/internal/monitor"
	"github.com/Dicklesworthstone/procsampler/internal/psutil"
	"github.com/Dicklesworthstone/procsampler/internal/sampler"
	"github.com/Dicklesworthstone/procsampler/internal/sink"
	"github.com/Dicklesworthstone/procsampler/internal/ui"
)

const logFile = "procsampler.log"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "procsampler:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.FromFlags(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	out, err := sink.Open(cfg.Output, cfg.Append)
	if err != nil {
		return err
	}
	defer out.Close()

	// The live view owns the terminal, so diagnostics go to a file.
	if cfg.TUI {
		fd, err := os.OpenFile(filepath.Join(cfg.Output, logFile),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		defer fd.Close()
		logger.SetOutput(fd)
	}

	manifest := sink.NewManifest(cfg.Pattern, cfg.Interval, cfg.Append)
	if err := sink.WriteManifest(cfg.Output, manifest); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := psutil.GopsutilHost{}
	cpus, err := host.CPUCount(ctx)
	if err != nil {
		return err
	}
	tracker, err := sampler.NewTracker(cfg.Matcher(), psutil.GopsutilEnumerator{},
		psutil.MonotonicClock{}, cpus)
	if err != nil {
		return err
	}

	opts := monitor.Options{
		System:   sampler.NewSystemReader(ctx, host, nil),
		Tracker:  tracker,
		Sink:     out,
		Interval: cfg.Interval,
		Cycles:   cfg.Cycles,
		Logger:   logger,
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	logger.WithFields(logrus.Fields{
		"run_id":   manifest.RunID,
		"output":   cfg.Output,
		"pattern":  cfg.Pattern,
		"interval": cfg.Interval.String(),
		"append":   cfg.Append,
		"cpus":     cpus,
	}).Info("Starting procsampler")

	if !cfg.TUI {
		m, err := monitor.New(opts)
		if err != nil {
			return err
		}
		err = m.Run(ctx)
		logger.Info("Stopped")
		return err
	}
	return runWithView(ctx, cfg, opts, logger)
}

func runWithView(ctx context.Context, cfg config.Config,
	opts monitor.Options, logger logrus.FieldLogger) error {
	cycles := make(chan model.Cycle, 1)
	opts.Observer = func(c model.Cycle) {
		// Keep only the newest cycle for the view.
		select {
		case cycles <- c:
			return
		default:
		}
		select {
		case <-cycles:
		default:
		}
		select {
		case cycles <- c:
		default:
		}
	}

	m, err := monitor.New(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
		close(cycles)
	}()

	viewErr := ui.Run(ui.New(cfg.Pattern, cycles, cancel))
	cancel()
	runErr := <-done
	logger.Info("Stopped")
	if viewErr != nil {
		return errors.Wrap(viewErr, "live view")
	}
	return runErr
}

func serveMetrics(addr string, logger logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.WithField("error", err.Error()).Error("Metrics listener failed")
		}
	}()
	return srv
}
