package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/envsensors/adapter"
	"github.com/mklimuk/envsensors/cmd/sensors/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 USB bridge maintenance",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GPIOCmd,
		&mcp2221SetCmd,
		&mcp2221ConfigureCmd,
	},
}

func newMCP2221(c *cli.Context) *adapter.MCP2221 {
	return adapter.NewMCP2221(adapter.WithDump(console.IsVerbose(c.Context)))
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		status, err := newMCP2221(c).Status(c.Context)
		if err != nil {
			return console.Fail(err, "adapter communication error")
		}
		return encode(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current I2C transfer and free the bus",
	Action: func(c *cli.Context) error {
		status, err := newMCP2221(c).ReleaseBus(c.Context)
		if err != nil {
			return console.Fail(err, "adapter communication error")
		}
		return encode(status)
	},
}

type gpioState struct {
	Pin   string `yaml:"pin"`
	Mode  string `yaml:"mode"`
	Value byte   `yaml:"value"`
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print the GP0..GP3 states",
	Action: func(c *cli.Context) error {
		values, err := newMCP2221(c).ReadGPIO(c.Context)
		if err != nil {
			return console.Fail(err, "adapter communication error")
		}
		states := make([]gpioState, 0, len(values))
		for i, v := range values {
			states = append(states, gpioState{Pin: fmt.Sprintf("GP%d", i), Mode: v.Mode.String(), Value: v.Value})
		}
		return encode(states)
	},
}

var mcp2221SetCmd = cli.Command{
	Name:      "set",
	Usage:     "drive a GPIO output, e.g. set 2 low",
	ArgsUsage: "<pin> <low|high>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Usage("expected 2 arguments, got %d", c.NArg())
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return console.Fail(err, "invalid pin")
		}
		var level gpio.Level
		switch c.Args().Get(1) {
		case "low", "0":
			level = gpio.Low
		case "high", "1":
			level = gpio.High
		default:
			return console.Usage("invalid level %q", c.Args().Get(1))
		}
		if err := newMCP2221(c).SetGPIO(c.Context, pin, level); err != nil {
			return console.Fail(err, "adapter communication error")
		}
		console.Infof("GP%d set %s", pin, console.White(level))
		return nil
	},
}

var mcp2221ConfigureCmd = cli.Command{
	Name:      "configure",
	Usage:     "make a pin a plain GPIO input or output in SRAM",
	ArgsUsage: "<pin> <in|out>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Usage("expected 2 arguments, got %d", c.NArg())
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil || pin < 0 || pin >= adapter.GPIOCount {
			return console.Usage("invalid pin %q", c.Args().Get(0))
		}
		var mode adapter.GPIOMode
		switch c.Args().Get(1) {
		case "in":
			mode = adapter.GPIOModeIn
		case "out":
			mode = adapter.GPIOModeOut
		default:
			return console.Usage("invalid mode %q", c.Args().Get(1))
		}
		mcp := newMCP2221(c)
		params, err := mcp.GetGPIOParameters(c.Context)
		if err != nil {
			return console.Fail(err, "adapter communication error")
		}
		params[pin] = adapter.GPIOParameter{Mode: mode, Designation: adapter.GPIOOperation}
		if err := mcp.SetGPIOParameters(c.Context, params); err != nil {
			return console.Fail(err, "adapter communication error")
		}
		console.Infof("GP%d configured as %s", pin, console.White(mode))
		return nil
	},
}
