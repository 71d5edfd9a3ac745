package i2c

import (
	"context"
	"fmt"

	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/envsensors"
)

var _ envsensors.RegisterPort = &GobotPort{}

// SMBusConn is the part of a gobot i2c.Connection used by GobotPort.
type SMBusConn interface {
	ReadByteData(reg uint8) (uint8, error)
	ReadWordData(reg uint8) (uint16, error)
	ReadBlockData(reg uint8, b []byte) error
	WriteByteData(reg uint8, val uint8) error
	WriteBlockData(reg uint8, b []byte) error
	Write(b []byte) (int, error)
	Close() error
}

var _ SMBusConn = gobot.Connection(nil)

// GobotPort is a register port over a gobot I2C connection, e.g. the NanoPi
// NEO adaptor. SMBus word reads are little-endian.
type GobotPort struct {
	conn SMBusConn
}

func NewGobotPort(conn SMBusConn) *GobotPort {
	return &GobotPort{conn: conn}
}

// OpenGobot opens a connection to addr on the given bus of the connector.
// A negative bus selects the connector default.
func OpenGobot(connector gobot.Connector, bus int, addr int) (*GobotPort, error) {
	if bus < 0 {
		bus = connector.DefaultI2cBus()
	}
	conn, err := connector.GetI2cConnection(addr, bus)
	if err != nil {
		return nil, fmt.Errorf("could not get i2c connection %d/%#02x: %w", bus, addr, err)
	}
	return NewGobotPort(conn), nil
}

func (p *GobotPort) ReadReg8(ctx context.Context, reg byte) (byte, error) {
	return p.conn.ReadByteData(reg)
}

func (p *GobotPort) ReadReg16(ctx context.Context, reg byte) (uint16, error) {
	return p.conn.ReadWordData(reg)
}

func (p *GobotPort) ReadBuffer(ctx context.Context, reg byte, buf []byte) error {
	return p.conn.ReadBlockData(reg, buf)
}

func (p *GobotPort) WriteReg8(ctx context.Context, reg byte, value byte) error {
	return p.conn.WriteByteData(reg, value)
}

func (p *GobotPort) WriteBuffer(ctx context.Context, reg byte, data []byte) error {
	if len(data) == 0 {
		// command-only write
		_, err := p.conn.Write([]byte{reg})
		return err
	}
	return p.conn.WriteBlockData(reg, data)
}

func (p *GobotPort) Close() error {
	return p.conn.Close()
}
