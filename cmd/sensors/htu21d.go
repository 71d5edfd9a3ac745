package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/envsensors/cmd/sensors/console"
	"github.com/mklimuk/envsensors/environment"
)

var htu21dCmd = cli.Command{
	Name:  "htu21d",
	Usage: "TE HTU21D temperature and humidity sensor",
	Subcommands: cli.Commands{
		&htu21dReadCmd,
		&htu21dResolutionCmd,
	},
}

func withHTU21D(c *cli.Context, fn func(s *environment.HTU21D) error) error {
	sess, err := newSession(c)
	if err != nil {
		return console.Fail(err, "adapter initialization error")
	}
	defer sess.Close()
	res, setRes, err := sess.cfg.HTU21D.ParseResolution()
	if err != nil {
		return console.Fail(err, "invalid configuration")
	}
	port, err := sess.port(address(c, sess.cfg.HTU21D.Address))
	if err != nil {
		return console.Fail(err, "could not open device")
	}
	s, err := environment.NewHTU21D(c.Context, port)
	if err != nil {
		return console.Fail(err, "could not open sensor")
	}
	defer func() {
		if err := s.Close(); err != nil {
			console.Errorf("error closing sensor: %s", console.Red(err))
		}
	}()
	if setRes && res != s.Resolution() {
		if err := s.SetResolution(c.Context, res); err != nil {
			return console.Fail(err, "could not set resolution")
		}
	}
	return fn(s)
}

var htu21dReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags:   []cli.Flag{addressFlag},
	Action: func(c *cli.Context) error {
		return withHTU21D(c, func(s *environment.HTU21D) error {
			temp, hum, err := s.GetTempAndHum(c.Context)
			if err != nil {
				return console.Fail(err, "error reading sensor")
			}
			console.Printf("%s  %s °C\n%s %s %%RH\n",
				console.PictoThermometer, console.White(fmt.Sprintf("%.2f", temp)),
				console.PictoHumidity, console.White(fmt.Sprintf("%.2f", hum)))
			return nil
		})
	},
}

var htu21dResolutionCmd = cli.Command{
	Name:      "resolution",
	Usage:     "print or set the humidity/temperature resolution (12/14, 8/12, 10/13, 11/11)",
	ArgsUsage: "[resolution]",
	Flags:     []cli.Flag{addressFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() > 1 {
			return console.Usage("expected at most 1 argument, got %d", c.NArg())
		}
		return withHTU21D(c, func(s *environment.HTU21D) error {
			if c.NArg() == 1 {
				res, err := environment.ParseResolution(c.Args().First())
				if err != nil {
					return console.Usage("%s", err)
				}
				if err := s.SetResolution(c.Context, res); err != nil {
					return console.Fail(err, "could not set resolution")
				}
			}
			console.Printf("%s\n", console.White(s.Resolution()))
			return nil
		})
	},
}
