package i2c

import (
	"context"
	"encoding/binary"
	"io"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/envsensors"
)

var _ envsensors.RegisterPort = &DriversPort{}

// DriversPort is a register port over any bus implementing the TinyGo
// drivers.I2C transaction contract. periph buses and the MCP2221 adapter
// satisfy it as well.
type DriversPort struct {
	bus    drivers.I2C
	addr   uint16
	closer io.Closer
}

type DriversPortOpt func(*DriversPort)

// WithCloser makes the port close c when it is closed.
func WithCloser(c io.Closer) DriversPortOpt {
	return func(p *DriversPort) {
		p.closer = c
	}
}

func NewDriversPort(bus drivers.I2C, addr uint16, opts ...DriversPortOpt) *DriversPort {
	p := &DriversPort{bus: bus, addr: addr}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *DriversPort) ReadReg8(ctx context.Context, reg byte) (byte, error) {
	var b [1]byte
	err := p.ReadBuffer(ctx, reg, b[:])
	return b[0], err
}

func (p *DriversPort) ReadReg16(ctx context.Context, reg byte) (uint16, error) {
	var b [2]byte
	if err := p.ReadBuffer(ctx, reg, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (p *DriversPort) ReadBuffer(ctx context.Context, reg byte, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.bus.Tx(p.addr, []byte{reg}, buf)
}

func (p *DriversPort) WriteReg8(ctx context.Context, reg byte, value byte) error {
	return p.WriteBuffer(ctx, reg, []byte{value})
}

func (p *DriversPort) WriteBuffer(ctx context.Context, reg byte, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return p.bus.Tx(p.addr, w, nil)
}

func (p *DriversPort) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
