package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/envsensors"
	"github.com/mklimuk/envsensors/air"
	"github.com/mklimuk/envsensors/cmd/sensors/console"
	"github.com/mklimuk/envsensors/config"
	"github.com/mklimuk/envsensors/environment"
	"github.com/mklimuk/envsensors/exporter"
)

// portOpener opens a register port to the device at addr.
type portOpener func(addr uint16) (envsensors.RegisterPort, error)

// pinResolver resolves a configured wake pin name.
type pinResolver func(name string) (air.WakePin, error)

var errNoSensor = errors.New("no sensor enabled in the configuration")

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "poll the enabled sensors and expose them as Prometheus metrics",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "metrics listen address, overrides the config file",
		},
	},
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sess, err := newSession(c)
		if err != nil {
			return console.Fail(err, "adapter initialization error")
		}
		defer sess.Close()
		cfg := sess.cfg
		if c.IsSet("listen") {
			cfg.Exporter.Listen = c.String("listen")
		}

		reg := prometheus.NewRegistry()
		collector, err := exporter.NewCollector(reg, exporter.WithInterval(cfg.Exporter.Interval))
		if err != nil {
			return console.Fail(err, "metrics error")
		}
		closers, err := addSources(ctx, cfg, sess.port, sess.wakePin, collector)
		defer closeAll(closers)
		if err != nil {
			return console.Fail(err, "")
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler(reg))
		srv := &http.Server{
			Addr:              cfg.Exporter.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
		go func() {
			slog.Info("serving metrics", "address", cfg.Exporter.Listen, "interval", cfg.Exporter.Interval)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
				stop()
			}
		}()

		if err := collector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return console.Fail(err, "collector stopped")
		}
		return nil
	},
}

// addSources opens every enabled sensor and registers it with collector.
// Sensors opened before a failure are returned with the error and must be
// closed by the caller. Settings are converted before any port is opened.
func addSources(ctx context.Context, cfg *config.Config, open portOpener, wake pinResolver, collector *exporter.Collector) ([]io.Closer, error) {
	var closers []io.Closer
	// environment sensors go first so the air sensor is compensated in the
	// same pass
	if cfg.BMx280.Enabled {
		opts, err := cfg.BMx280.Options()
		if err != nil {
			return closers, fmt.Errorf("invalid %s configuration: %w", cfg.BMx280.Name, err)
		}
		port, err := open(cfg.BMx280.Address)
		if err != nil {
			return closers, fmt.Errorf("could not open %s: %w", cfg.BMx280.Name, err)
		}
		s, err := environment.NewBMx280(ctx, port, opts...)
		if err != nil {
			return closers, fmt.Errorf("could not open %s: %w", cfg.BMx280.Name, err)
		}
		closers = append(closers, s)
		collector.Add(cfg.BMx280.Name, exporter.BMx280(s))
	}
	if cfg.HTU21D.Enabled {
		res, setRes, err := cfg.HTU21D.ParseResolution()
		if err != nil {
			return closers, fmt.Errorf("invalid %s configuration: %w", cfg.HTU21D.Name, err)
		}
		port, err := open(cfg.HTU21D.Address)
		if err != nil {
			return closers, fmt.Errorf("could not open %s: %w", cfg.HTU21D.Name, err)
		}
		s, err := environment.NewHTU21D(ctx, port)
		if err != nil {
			return closers, fmt.Errorf("could not open %s: %w", cfg.HTU21D.Name, err)
		}
		closers = append(closers, s)
		if setRes {
			if err := s.SetResolution(ctx, res); err != nil {
				return closers, fmt.Errorf("could not set %s resolution: %w", cfg.HTU21D.Name, err)
			}
		}
		collector.Add(cfg.HTU21D.Name, exporter.HTU21D(s))
	}
	if cfg.CCS811.Enabled {
		s, err := openCCS811(ctx, cfg.CCS811, cfg.CCS811.Address, open, wake)
		if err != nil {
			return closers, fmt.Errorf("could not open %s: %w", cfg.CCS811.Name, err)
		}
		closers = append(closers, s)
		collector.Add(cfg.CCS811.Name, exporter.CCS811(s))
	}
	if len(closers) == 0 {
		return nil, errNoSensor
	}
	return closers, nil
}

func closeAll(closers []io.Closer) {
	for _, cl := range closers {
		if err := cl.Close(); err != nil {
			slog.Warn("could not close sensor", "error", err)
		}
	}
}
