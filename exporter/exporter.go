// Package exporter publishes sensor readings as Prometheus metrics.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Quantity is a bit set of the values carried by a Sample.
type Quantity uint8

const (
	Temperature Quantity = 1 << iota
	Pressure
	Humidity
	ECO2
	TVOC
)

// Sample is one reading of a source. Only quantities present in Has are
// published.
type Sample struct {
	Has         Quantity
	Temperature float64
	Pressure    float64
	Humidity    float64
	ECO2        float64
	TVOC        float64
}

// Source produces samples on demand.
type Source interface {
	Sample(ctx context.Context) (Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Sample, error)

func (f SourceFunc) Sample(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// Compensator is implemented by sources that improve their accuracy when fed
// the ambient humidity and temperature.
type Compensator interface {
	SetEnvironmentData(ctx context.Context, humidity, temperature float32) error
}

type source struct {
	name string
	src  Source
}

type Opts struct {
	Interval time.Duration
}

type Opt func(*Opts)

func WithInterval(d time.Duration) Opt {
	return func(o *Opts) {
		if d > 0 {
			o.Interval = d
		}
	}
}

// Collector polls its sources and keeps gauges labelled by device name.
type Collector struct {
	config  Opts
	sources []source

	temperature *prometheus.GaugeVec
	pressure    *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	eco2        *prometheus.GaugeVec
	tvoc        *prometheus.GaugeVec
	readErrors  *prometheus.CounterVec
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"device"},
	)
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer, opts ...Opt) (*Collector, error) {
	config := Opts{Interval: 10 * time.Second}
	for _, opt := range opts {
		opt(&config)
	}
	c := &Collector{
		config:      config,
		temperature: newGauge("env_temperature_celsius", "Air temperature (units: degrees Celsius)"),
		pressure:    newGauge("env_pressure_hpa", "Atmospheric pressure (units: hPa)"),
		humidity:    newGauge("env_humidity_percent", "Relative humidity (units: %RH)"),
		eco2:        newGauge("air_eco2_ppm", "Equivalent carbon dioxide (units: ppm)"),
		tvoc:        newGauge("air_tvoc_ppb", "Total volatile organic compounds (units: ppb)"),
		readErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensor_read_errors_total",
				Help: "Number of failed sensor reads",
			},
			[]string{"device"},
		),
	}
	for _, col := range []prometheus.Collector{c.temperature, c.pressure, c.humidity, c.eco2, c.tvoc, c.readErrors} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("could not register metric: %w", err)
		}
	}
	return c, nil
}

// Add registers a source. Sources are polled in the order they were added;
// compensators receive the latest humidity and temperature sampled before
// them in the same pass.
func (c *Collector) Add(name string, src Source) {
	c.sources = append(c.sources, source{name: name, src: src})
}

// Poll reads every source once. It returns the number of failed reads.
func (c *Collector) Poll(ctx context.Context) int {
	failed := 0
	var env Sample
	for _, s := range c.sources {
		if comp, ok := s.src.(Compensator); ok && env.Has&(Temperature|Humidity) == Temperature|Humidity {
			if err := comp.SetEnvironmentData(ctx, float32(env.Humidity), float32(env.Temperature)); err != nil {
				slog.Warn("could not feed environment data", "device", s.name, "error", err)
			}
		}
		sample, err := s.src.Sample(ctx)
		if err != nil {
			failed++
			c.readErrors.WithLabelValues(s.name).Inc()
			slog.Error("sensor read failed", "device", s.name, "error", err)
			continue
		}
		slog.Debug("sensor read", "device", s.name, "sample", sample)
		c.publish(s.name, sample)
		if sample.Has&Temperature != 0 {
			env.Temperature = sample.Temperature
			env.Has |= Temperature
		}
		if sample.Has&Humidity != 0 {
			env.Humidity = sample.Humidity
			env.Has |= Humidity
		}
	}
	return failed
}

func (c *Collector) publish(name string, s Sample) {
	if s.Has&Temperature != 0 {
		c.temperature.WithLabelValues(name).Set(s.Temperature)
	}
	if s.Has&Pressure != 0 {
		c.pressure.WithLabelValues(name).Set(s.Pressure)
	}
	if s.Has&Humidity != 0 {
		c.humidity.WithLabelValues(name).Set(s.Humidity)
	}
	if s.Has&ECO2 != 0 {
		c.eco2.WithLabelValues(name).Set(s.ECO2)
	}
	if s.Has&TVOC != 0 {
		c.tvoc.WithLabelValues(name).Set(s.TVOC)
	}
}

// Run polls at the configured interval until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()
	for {
		c.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}
