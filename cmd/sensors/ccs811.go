package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/envsensors/air"
	"github.com/mklimuk/envsensors/cmd/sensors/console"
	"github.com/mklimuk/envsensors/config"
)

var ccs811Cmd = cli.Command{
	Name:  "ccs811",
	Usage: "ams CCS811 eCO2 and TVOC sensor",
	Subcommands: cli.Commands{
		&ccs811ReadCmd,
		&ccs811StatusCmd,
		&ccs811ModeCmd,
		&ccs811ResetCmd,
	},
}

func openCCS811(ctx context.Context, cfg config.CCS811Config, addr uint16, open portOpener, wake pinResolver) (*air.CCS811, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	port, err := open(addr)
	if err != nil {
		return nil, fmt.Errorf("could not open device: %w", err)
	}
	if cfg.WakePin != "" {
		pin, err := wake(cfg.WakePin)
		if err != nil {
			_ = port.Close()
			return nil, err
		}
		opts = append(opts, air.WithWakePin(pin))
	}
	return air.NewCCS811(ctx, port, opts...)
}

func withCCS811(c *cli.Context, fn func(s *air.CCS811) error) error {
	sess, err := newSession(c)
	if err != nil {
		return console.Fail(err, "adapter initialization error")
	}
	defer sess.Close()
	s, err := openCCS811(c.Context, sess.cfg.CCS811, address(c, sess.cfg.CCS811.Address), sess.port, sess.wakePin)
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

// waitForData polls the data ready flag until it is set or ctx is done.
func waitForData(ctx context.Context, s *air.CCS811, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ready, err := s.DataReady(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var ccs811ReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: []cli.Flag{
		addressFlag,
		&cli.DurationFlag{
			Name:  "wait",
			Value: 5 * time.Second,
			Usage: "maximum time to wait for a result",
		},
	},
	Action: func(c *cli.Context) error {
		return withCCS811(c, func(s *air.CCS811) error {
			if s.Mode() == air.ModeIdle {
				return console.Exit(1, "sensor is idle, set a drive mode first")
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("wait"))
			defer cancel()
			if err := waitForData(ctx, s, 250*time.Millisecond); err != nil {
				return console.Fail(err, "no data available")
			}
			eco2, tvoc, err := s.ReadAlgorithmResults(c.Context)
			if err != nil {
				return console.Fail(err, "error reading sensor")
			}
			console.Printf("%s %s ppm eCO2\n%s %s ppb TVOC\n",
				console.PictoAir, console.White(eco2), console.PictoAir, console.White(tvoc))
			return nil
		})
	},
}

type ccs811Info struct {
	HardwareID  string     `yaml:"hardware_id"`
	BootVersion string     `yaml:"boot_version,omitempty"`
	AppVersion  string     `yaml:"app_version,omitempty"`
	Mode        string     `yaml:"mode"`
	Status      air.Status `yaml:"status"`
	Errors      []string   `yaml:"errors,omitempty"`
}

var ccs811StatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the decoded status, firmware versions and error flags",
	Flags: []cli.Flag{addressFlag},
	Action: func(c *cli.Context) error {
		return withCCS811(c, func(s *air.CCS811) error {
			status, err := s.Status(c.Context)
			if err != nil {
				return console.Fail(err, "error reading status")
			}
			info := ccs811Info{
				HardwareID: fmt.Sprintf("%#02x", s.HardwareID()),
				Mode:       s.Mode().String(),
				Status:     status,
			}
			if v, ok := s.BootVersion(c.Context); ok {
				info.BootVersion = v.String()
			}
			if v, ok := s.AppVersion(c.Context); ok {
				info.AppVersion = v.String()
			}
			if status.Error {
				err := s.LastError(c.Context)
				var devErr *air.DeviceError
				if errors.As(err, &devErr) {
					info.Errors = devErr.Flags.Tokens()
				} else if err != nil {
					console.Warnf("could not read error flags: %s", err)
				}
			}
			return encode(info)
		})
	},
}

var ccs811ModeCmd = cli.Command{
	Name:      "mode",
	Usage:     "set the drive mode (idle, 1s, 10s, 60s, 250ms)",
	ArgsUsage: "<mode>",
	Flags:     []cli.Flag{addressFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Usage("expected 1 argument, got %d", c.NArg())
		}
		mode, err := air.ParseDriveMode(c.Args().First())
		if err != nil {
			return console.Usage("%s", err)
		}
		return withCCS811(c, func(s *air.CCS811) error {
			if err := s.SetMode(c.Context, mode); err != nil {
				return console.Fail(err, "could not set mode")
			}
			console.Infof("drive mode set to %s", console.White(mode))
			return nil
		})
	},
}

var ccs811ResetCmd = cli.Command{
	Name:  "reset",
	Usage: "software reset; the sensor restarts in idle mode",
	Flags: []cli.Flag{
		addressFlag,
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			ok, err := console.Confirm("reset the CCS811? the baseline will be lost")
			if err != nil {
				return console.Fail(err, "prompt error")
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		return withCCS811(c, func(s *air.CCS811) error {
			if err := s.Reset(c.Context); err != nil {
				return console.Fail(err, "reset error")
			}
			console.Infof("%s reset, mode %s", s, console.White(s.Mode()))
			return nil
		})
	},
}
