package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/gpio/gpioreg"
	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"github.com/mklimuk/envsensors"
	"github.com/mklimuk/envsensors/adapter"
	"github.com/mklimuk/envsensors/air"
	"github.com/mklimuk/envsensors/cmd/sensors/console"
	"github.com/mklimuk/envsensors/config"
	"github.com/mklimuk/envsensors/i2c"
)

// session holds the transport selected by the global flags. Ports opened
// from it share the underlying bus, which is released by Close.
type session struct {
	cfg *config.Config
	mcp *adapter.MCP2221
	npi *nanopi.Adaptor
	bus periphi2c.BusCloser
	// gobot bus number, negative for the board default
	gobotBus int
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.String("bus")
	}
	return cfg, cfg.Validate()
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, gobotBus: -1}
	switch cfg.Adapter {
	case config.AdapterMCP2221:
		s.mcp = adapter.NewMCP2221(adapter.WithDump(console.IsVerbose(c.Context)))
	case config.AdapterNanoPi:
		if cfg.Bus != "" {
			n, err := strconv.Atoi(cfg.Bus)
			if err != nil {
				return nil, fmt.Errorf("invalid gobot bus number %q: %w", cfg.Bus, err)
			}
			s.gobotBus = n
		}
		s.npi = nanopi.NewNeoAdaptor()
		if err := s.npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
	default:
		bus, err := i2c.OpenBus(cfg.Bus)
		if err != nil {
			return nil, err
		}
		s.bus = bus
	}
	slog.Debug("session opened", "adapter", cfg.Adapter, "bus", cfg.Bus)
	return s, nil
}

// port opens a register port to addr on the session transport.
func (s *session) port(addr uint16) (envsensors.RegisterPort, error) {
	switch {
	case s.mcp != nil:
		return envsensors.NewBusPort(s.mcp, byte(addr)), nil
	case s.npi != nil:
		return i2c.OpenGobot(s.npi, s.gobotBus, int(addr))
	default:
		return i2c.NewPort(s.bus, addr), nil
	}
}

// raw returns the session transport as a plain transaction bus, if it has one.
func (s *session) raw() (drivers.I2C, bool) {
	switch {
	case s.mcp != nil:
		return s.mcp, true
	case s.bus != nil:
		return s.bus, true
	default:
		return nil, false
	}
}

// wakePin resolves a CCS811 nWAKE line: GP0..GP3 on the MCP2221, a gpioreg
// name otherwise.
func (s *session) wakePin(name string) (air.WakePin, error) {
	if s.mcp != nil {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(name), "GP"))
		if err != nil || n < 0 || n >= adapter.GPIOCount {
			return nil, fmt.Errorf("invalid MCP2221 pin %q", name)
		}
		return s.mcp.Pin(n), nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	return pin, nil
}

func (s *session) Close() {
	if s.npi != nil {
		if err := s.npi.I2cBusAdaptor.Finalize(); err != nil {
			console.Errorf("error finalizing adaptor: %s", console.Red(err))
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			console.Errorf("error closing bus: %s", console.Red(err))
		}
	}
}
