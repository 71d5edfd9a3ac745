package envsensors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Width is the size of a raw ADC sample register.
type Width int

const (
	// Width16 is a two byte big-endian sample: msb[7:0] lsb[7:0].
	Width16 Width = 16
	// Width20 is a three byte sample: msb[7:0] lsb[7:0] xlsb[7:4].
	Width20 Width = 20
)

const scratchSize = 8

// Device owns a RegisterPort for the lifetime of a driver. It implements the
// open/closed state machine shared by all drivers and serializes every
// register access through a single lock, so multi-byte reads staged in the
// scratch buffer never interleave.
//
// A Device is open from creation until Close. It cannot be reopened.
type Device struct {
	mx   sync.Mutex
	port RegisterPort
	buf  [scratchSize]byte
}

func NewDevice(port RegisterPort) *Device {
	return &Device{port: port}
}

// IsOpen reports whether the underlying port has not been released yet.
func (d *Device) IsOpen() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.port != nil
}

// Close releases the port. Only the first call reaches the port; later calls
// are no-ops returning nil.
func (d *Device) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.port == nil {
		return nil
	}
	port := d.port
	d.port = nil
	return port.Close()
}

// Abort closes the port after a failed bring-up and returns err wrapped in a
// BringUpError. A close failure is only logged.
func (d *Device) Abort(device string, err error) error {
	if cerr := d.Close(); cerr != nil {
		slog.Warn("could not release port after failed bring-up", "device", device, "error", cerr)
	}
	return &BringUpError{Device: device, Err: err}
}

func (d *Device) ReadReg8(ctx context.Context, reg byte) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.port == nil {
		return 0, ErrNotOpen
	}
	v, err := d.port.ReadReg8(ctx, reg)
	if err != nil {
		return 0, &TransportError{Op: "read byte", Reg: reg, Err: err}
	}
	return v, nil
}

func (d *Device) ReadReg16(ctx context.Context, reg byte) (uint16, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.port == nil {
		return 0, ErrNotOpen
	}
	v, err := d.port.ReadReg16(ctx, reg)
	if err != nil {
		return 0, &TransportError{Op: "read word", Reg: reg, Err: err}
	}
	return v, nil
}

func (d *Device) WriteReg8(ctx context.Context, reg byte, value byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.port == nil {
		return ErrNotOpen
	}
	if err := d.port.WriteReg8(ctx, reg, value); err != nil {
		return &TransportError{Op: "write byte", Reg: reg, Err: err}
	}
	return nil
}

func (d *Device) WriteBuffer(ctx context.Context, reg byte, data []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.port == nil {
		return ErrNotOpen
	}
	if err := d.port.WriteBuffer(ctx, reg, data); err != nil {
		return &TransportError{Op: "write buffer", Reg: reg, Err: err}
	}
	return nil
}

// ReadInto reads n bytes starting at reg into the scratch buffer and hands
// them to decode while the lock is still held. decode must not retain the
// slice.
func (d *Device) ReadInto(ctx context.Context, reg byte, n int, decode func(b []byte)) error {
	if n <= 0 || n > scratchSize {
		return fmt.Errorf("invalid read length %d", n)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.port == nil {
		return ErrNotOpen
	}
	b := d.buf[:n]
	clear(b)
	if err := d.port.ReadBuffer(ctx, reg, b); err != nil {
		return &TransportError{Op: "read buffer", Reg: reg, Err: err}
	}
	decode(b)
	return nil
}

// ReadRaw reads one raw sample of the given width starting at reg.
func (d *Device) ReadRaw(ctx context.Context, reg byte, width Width) (uint32, error) {
	var raw uint32
	var err error
	switch width {
	case Width16:
		err = d.ReadInto(ctx, reg, 2, func(b []byte) { raw = Assemble16(b) })
	case Width20:
		err = d.ReadInto(ctx, reg, 3, func(b []byte) { raw = Assemble20(b) })
	default:
		return 0, fmt.Errorf("unsupported sample width %d", width)
	}
	return raw, err
}

// Update performs a read-modify-write of a control register. Only the bits in
// mask are replaced by the matching bits of value; all other bits keep their
// current content. The resulting register value is returned.
func (d *Device) Update(ctx context.Context, reg, mask, value byte) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.port == nil {
		return 0, ErrNotOpen
	}
	cur, err := d.port.ReadReg8(ctx, reg)
	if err != nil {
		return 0, &TransportError{Op: "read byte", Reg: reg, Err: err}
	}
	next := SetField(cur, mask, value)
	if err := d.port.WriteReg8(ctx, reg, next); err != nil {
		return 0, &TransportError{Op: "write byte", Reg: reg, Err: err}
	}
	return next, nil
}

// SetField clears mask in cur and inserts value restricted to mask.
func SetField(cur, mask, value byte) byte {
	return cur&^mask | value&mask
}

// Assemble16 builds a 16-bit sample from msb[7:0] lsb[7:0].
func Assemble16(b []byte) uint32 {
	return uint32(b[0])<<8 | uint32(b[1])
}

// Assemble20 builds a 20-bit sample from msb[7:0] lsb[7:0] xlsb[7:4]. The low
// nibble of xlsb is not part of the ADC result and is discarded.
func Assemble20(b []byte) uint32 {
	return (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]&0xF0)) >> 4
}
