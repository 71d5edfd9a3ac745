package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"tinygo.org/x/drivers"

	"github.com/mklimuk/envsensors/air"
	"github.com/mklimuk/envsensors/cmd/sensors/console"
	"github.com/mklimuk/envsensors/environment"
	"github.com/mklimuk/envsensors/i2c"
)

type detected struct {
	Address uint16 `yaml:"address"`
	Chip    string `yaml:"chip"`
}

type probe struct {
	addrs []uint16
	reg   byte
	// identify maps the register content to a chip name, empty when unknown
	identify func(id byte) string
}

var probes = []probe{
	{
		addrs: []uint16{environment.BMx280AddressAlt, environment.BMx280Address},
		reg:   0xD0,
		identify: func(id byte) string {
			switch id {
			case environment.BMP280ChipID:
				return "BMP280"
			case environment.BME280ChipID:
				return "BME280"
			}
			return ""
		},
	},
	{
		addrs: []uint16{air.CCS811AddressAlt, air.CCS811Address},
		reg:   0x20,
		identify: func(id byte) string {
			if id == air.CCS811HardwareID {
				return "CCS811"
			}
			return ""
		},
	},
	{
		// the user register read is the only HTU21D command without a delay
		addrs: []uint16{environment.HTU21DAddress},
		reg:   0xE7,
		identify: func(byte) string {
			return "HTU21D"
		},
	},
}

// detect probes the known sensor addresses on bus and returns the chips that
// answered with a recognized identity.
func detect(ctx context.Context, bus drivers.I2C) []detected {
	var found []detected
	for _, p := range probes {
		for _, addr := range p.addrs {
			port := i2c.NewDriversPort(bus, addr)
			id, err := port.ReadReg8(ctx, p.reg)
			if err != nil {
				slog.Debug("no answer", "address", fmt.Sprintf("%#02x", addr), "error", err)
				continue
			}
			chip := p.identify(id)
			if chip == "" {
				slog.Debug("unknown identity", "address", fmt.Sprintf("%#02x", addr), "id", fmt.Sprintf("%#02x", id))
				continue
			}
			found = append(found, detected{Address: addr, Chip: chip})
		}
	}
	return found
}

var detectCmd = cli.Command{
	Name:  "detect",
	Usage: "probe the configured bus for known sensors",
	Action: func(c *cli.Context) error {
		sess, err := newSession(c)
		if err != nil {
			return console.Fail(err, "adapter initialization error")
		}
		defer sess.Close()
		bus, ok := sess.raw()
		if !ok {
			return console.Exit(1, "adapter %s does not support raw transactions", sess.cfg.Adapter)
		}
		return encode(detect(c.Context, bus))
	},
}
