package envsensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

var _ RegisterPort = &BusPort{}

// BusPort speaks the register protocol to a single device over a raw
// addressable bus: the register pointer is written first, then the data is
// read back in a separate transfer.
type BusPort struct {
	bus    I2CBus
	addr   byte
	closer io.Closer
}

type BusPortOpt func(*BusPort)

// WithBusCloser makes Close release the given resource (typically the bus
// itself when the port is its only user).
func WithBusCloser(c io.Closer) BusPortOpt {
	return func(p *BusPort) {
		p.closer = c
	}
}

func NewBusPort(bus I2CBus, addr byte, opts ...BusPortOpt) *BusPort {
	p := &BusPort{bus: bus, addr: addr}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *BusPort) ReadReg8(ctx context.Context, reg byte) (byte, error) {
	var b [1]byte
	if err := p.ReadBuffer(ctx, reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *BusPort) ReadReg16(ctx context.Context, reg byte) (uint16, error) {
	var b [2]byte
	if err := p.ReadBuffer(ctx, reg, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (p *BusPort) ReadBuffer(ctx context.Context, reg byte, buf []byte) error {
	if err := p.bus.WriteToAddr(ctx, p.addr, []byte{reg}); err != nil {
		return fmt.Errorf("could not set register pointer: %w", err)
	}
	if err := p.bus.ReadFromAddr(ctx, p.addr, buf); err != nil {
		return fmt.Errorf("could not read register content: %w", err)
	}
	return nil
}

func (p *BusPort) WriteReg8(ctx context.Context, reg byte, value byte) error {
	return p.WriteBuffer(ctx, reg, []byte{value})
}

func (p *BusPort) WriteBuffer(ctx context.Context, reg byte, data []byte) error {
	out := make([]byte, 0, len(data)+1)
	out = append(out, reg)
	out = append(out, data...)
	if err := p.bus.WriteToAddr(ctx, p.addr, out); err != nil {
		return fmt.Errorf("could not write register: %w", err)
	}
	return nil
}

// Close releases the bus engine and, if configured, the bus itself.
func (p *BusPort) Close() error {
	err := p.bus.Release(context.Background())
	if p.closer != nil {
		if cerr := p.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
