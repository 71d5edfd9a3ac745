package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/envsensors/cmd/sensors/console"
	"github.com/mklimuk/envsensors/environment"
)

var addressFlag = &cli.UintFlag{
	Name:    "address",
	Aliases: []string{"a"},
	Usage:   "device address, overrides the config file",
}

func address(c *cli.Context, configured uint16) uint16 {
	if c.IsSet("address") {
		return uint16(c.Uint("address"))
	}
	return configured
}

var bmx280Cmd = cli.Command{
	Name:  "bmx280",
	Usage: "Bosch BMP280/BME280 pressure, temperature and humidity sensor",
	Subcommands: cli.Commands{
		&bmx280ReadCmd,
		&bmx280ResetCmd,
		&bmx280InfoCmd,
	},
}

// withBMx280 opens the sensor with the configured sampling settings and
// runs fn.
func withBMx280(c *cli.Context, fn func(s *environment.BMx280) error) error {
	sess, err := newSession(c)
	if err != nil {
		return console.Fail(err, "adapter initialization error")
	}
	defer sess.Close()
	opts, err := sess.cfg.BMx280.Options()
	if err != nil {
		return console.Fail(err, "invalid configuration")
	}
	if c.Bool("forced") {
		opts = append(opts, environment.WithMode(environment.ModeSleep))
	}
	port, err := sess.port(address(c, sess.cfg.BMx280.Address))
	if err != nil {
		return console.Fail(err, "could not open device")
	}
	s, err := environment.NewBMx280(c.Context, port, opts...)
	if err != nil {
		return console.Fail(err, "could not open sensor")
	}
	defer func() {
		if err := s.Close(); err != nil {
			console.Errorf("error closing sensor: %s", console.Red(err))
		}
	}()
	return fn(s)
}

var bmx280ReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: []cli.Flag{
		addressFlag,
		&cli.BoolFlag{
			Name:  "forced",
			Usage: "run a single forced-mode conversion before reading",
		},
		&cli.BoolFlag{Name: "yaml"},
	},
	Action: func(c *cli.Context) error {
		return withBMx280(c, func(s *environment.BMx280) error {
			if c.Bool("forced") {
				if err := s.Trigger(c.Context); err != nil {
					return console.Fail(err, "measurement error")
				}
			}
			m, err := s.Measure(c.Context)
			if err != nil {
				return console.Fail(err, "error reading sensor")
			}
			if c.Bool("yaml") {
				return encode(m)
			}
			console.Printf("%s  %s °C\n", console.PictoThermometer, console.White(fmt.Sprintf("%.2f", m.Temperature)))
			if s.Oversampling(environment.Pressure) != environment.OversamplingSkipped {
				console.Printf("%s %s hPa\n", console.PictoPressure, console.White(fmt.Sprintf("%.2f", m.Pressure)))
			}
			if s.Variant().HasHumidity() && s.Oversampling(environment.Humidity) != environment.OversamplingSkipped {
				console.Printf("%s %s %%RH\n", console.PictoHumidity, console.White(fmt.Sprintf("%.2f", m.Humidity)))
			}
			return nil
		})
	},
}

var bmx280ResetCmd = cli.Command{
	Name:  "reset",
	Usage: "soft reset the sensor",
	Flags: []cli.Flag{addressFlag},
	Action: func(c *cli.Context) error {
		return withBMx280(c, func(s *environment.BMx280) error {
			if err := s.Reset(c.Context); err != nil {
				return console.Fail(err, "reset error")
			}
			console.Infof("%s reset", s)
			return nil
		})
	},
}

type bmx280Info struct {
	ChipID       string                  `yaml:"chip_id"`
	Variant      string                  `yaml:"variant"`
	Mode         string                  `yaml:"mode"`
	Oversampling map[string]string       `yaml:"oversampling"`
	Calibration  environment.Calibration `yaml:"calibration"`
}

var bmx280InfoCmd = cli.Command{
	Name:  "info",
	Usage: "print chip identity, settings and calibration",
	Flags: []cli.Flag{addressFlag},
	Action: func(c *cli.Context) error {
		return withBMx280(c, func(s *environment.BMx280) error {
			info := bmx280Info{
				ChipID:       fmt.Sprintf("%#02x", s.ChipID()),
				Variant:      s.Variant().String(),
				Mode:         s.Mode().String(),
				Oversampling: map[string]string{},
				Calibration:  s.Calibration(),
			}
			for _, ch := range []environment.Channel{environment.Temperature, environment.Pressure, environment.Humidity} {
				if ch == environment.Humidity && !s.Variant().HasHumidity() {
					continue
				}
				info.Oversampling[ch.String()] = s.Oversampling(ch).String()
			}
			return encode(info)
		})
	},
}

func encode(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Fail(err, "encoding error")
	}
	return nil
}
