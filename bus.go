package envsensors

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a raw bus able to address any device connected to it.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// RegisterPort is an opened connection to a single device exposing
// byte-addressed registers 0x00-0xFF. Words are transferred in SMBus
// (little-endian) order.
type RegisterPort interface {
	ReadReg8(ctx context.Context, reg byte) (byte, error)
	ReadReg16(ctx context.Context, reg byte) (uint16, error)
	ReadBuffer(ctx context.Context, reg byte, buf []byte) error
	WriteReg8(ctx context.Context, reg byte, value byte) error
	WriteBuffer(ctx context.Context, reg byte, data []byte) error
	Close() error
}
