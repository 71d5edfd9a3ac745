package i2c

import (
	"context"
	"encoding/binary"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/mmr"

	"github.com/mklimuk/envsensors"
)

var _ envsensors.RegisterPort = &Port{}

// Port is a register port on a periph I2C bus. Words are little-endian.
type Port struct {
	dev    *i2c.Dev
	regs   mmr.Dev8
	closer io.Closer
}

// NewPort addresses addr on bus. The bus is not closed by the port.
func NewPort(bus i2c.Bus, addr uint16) *Port {
	dev := &i2c.Dev{Bus: bus, Addr: addr}
	return &Port{
		dev:  dev,
		regs: mmr.Dev8{Conn: dev, Order: binary.LittleEndian},
	}
}

// Open opens the named host bus and returns a port owning it.
func Open(busName string, addr uint16) (*Port, error) {
	bus, err := OpenBus(busName)
	if err != nil {
		return nil, err
	}
	p := NewPort(bus, addr)
	p.closer = bus
	return p, nil
}

func (p *Port) ReadReg8(ctx context.Context, reg byte) (byte, error) {
	return p.regs.ReadUint8(reg)
}

func (p *Port) ReadReg16(ctx context.Context, reg byte) (uint16, error) {
	return p.regs.ReadUint16(reg)
}

func (p *Port) ReadBuffer(ctx context.Context, reg byte, buf []byte) error {
	return p.dev.Tx([]byte{reg}, buf)
}

func (p *Port) WriteReg8(ctx context.Context, reg byte, value byte) error {
	return p.regs.WriteUint8(reg, value)
}

func (p *Port) WriteBuffer(ctx context.Context, reg byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return p.dev.Tx(w, nil)
}

func (p *Port) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

func (p *Port) String() string {
	return p.dev.String()
}
