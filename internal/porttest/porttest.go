// Package porttest provides register port doubles for driver tests.
package porttest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

var ErrInjected = errors.New("injected bus failure")

// MockPort is a testify mock of a register port. ReadBuffer copies
// the first return value into the caller's buffer when it is a []byte.
type MockPort struct {
	mock.Mock
}

func (m *MockPort) ReadReg8(ctx context.Context, reg byte) (byte, error) {
	args := m.Called(ctx, reg)
	return args.Get(0).(byte), args.Error(1)
}

func (m *MockPort) ReadReg16(ctx context.Context, reg byte) (uint16, error) {
	args := m.Called(ctx, reg)
	return args.Get(0).(uint16), args.Error(1)
}

func (m *MockPort) ReadBuffer(ctx context.Context, reg byte, buf []byte) error {
	args := m.Called(ctx, reg, buf)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buf, data)
	}
	return args.Error(1)
}

func (m *MockPort) WriteReg8(ctx context.Context, reg byte, value byte) error {
	args := m.Called(ctx, reg, value)
	return args.Error(0)
}

func (m *MockPort) WriteBuffer(ctx context.Context, reg byte, data []byte) error {
	args := m.Called(ctx, reg, data)
	return args.Error(0)
}

func (m *MockPort) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Write records a single register write seen by Registers.
type Write struct {
	Reg  byte
	Data []byte
}

// Registers is an in-memory register file. Multi-byte accesses span
// consecutive addresses and stop at 0xFF; bytes past the end read as zero.
// Registers declared with Mailbox hold their own byte sequence instead.
// Failures can be injected per register.
type Registers struct {
	mx     sync.Mutex
	mem    [256]byte
	boxes  map[byte][]byte
	writes []Write
	reads  []byte
	fail   map[byte]error
	closed int
}

func NewRegisters() *Registers {
	return &Registers{fail: map[byte]error{}, boxes: map[byte][]byte{}}
}

// Mailbox declares regs as command or mailbox registers: data written to one
// of them never reaches the neighbouring addresses.
func (r *Registers) Mailbox(regs ...byte) *Registers {
	r.mx.Lock()
	defer r.mx.Unlock()
	for _, reg := range regs {
		if _, ok := r.boxes[reg]; !ok {
			r.boxes[reg] = nil
		}
	}
	return r
}

// Set stores data starting at reg.
func (r *Registers) Set(reg byte, data ...byte) *Registers {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.store(reg, data)
	return r
}

func (r *Registers) store(reg byte, data []byte) {
	if _, ok := r.boxes[reg]; ok {
		r.boxes[reg] = append([]byte(nil), data...)
		return
	}
	for i, b := range data {
		if int(reg)+i >= len(r.mem) {
			return
		}
		r.mem[int(reg)+i] = b
	}
}

func (r *Registers) load(reg byte, buf []byte) {
	if box, ok := r.boxes[reg]; ok {
		n := copy(buf, box)
		clear(buf[n:])
		return
	}
	for i := range buf {
		buf[i] = 0
		if int(reg)+i < len(r.mem) {
			buf[i] = r.mem[int(reg)+i]
		}
	}
}

// SetWord stores v in little-endian order at reg.
func (r *Registers) SetWord(reg byte, v uint16) *Registers {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return r.Set(reg, b[:]...)
}

// Fail makes every access to reg return err (ErrInjected when err is nil).
func (r *Registers) Fail(reg byte, err error) *Registers {
	r.mx.Lock()
	defer r.mx.Unlock()
	if err == nil {
		err = ErrInjected
	}
	r.fail[reg] = err
	return r
}

// Get returns the first byte stored at reg.
func (r *Registers) Get(reg byte) byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	var b [1]byte
	r.load(reg, b[:])
	return b[0]
}

// Writes returns a copy of all recorded writes in order.
func (r *Registers) Writes() []Write {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Write(nil), r.writes...)
}

// Reads returns the register addresses read so far in order.
func (r *Registers) Reads() []byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]byte(nil), r.reads...)
}

// ResetLog forgets recorded reads and writes.
func (r *Registers) ResetLog() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.writes = nil
	r.reads = nil
}

// Closed returns how many times Close was called.
func (r *Registers) Closed() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.closed
}

func (r *Registers) ReadReg8(ctx context.Context, reg byte) (byte, error) {
	var b [1]byte
	err := r.ReadBuffer(ctx, reg, b[:])
	return b[0], err
}

func (r *Registers) ReadReg16(ctx context.Context, reg byte) (uint16, error) {
	var b [2]byte
	err := r.ReadBuffer(ctx, reg, b[:])
	return binary.LittleEndian.Uint16(b[:]), err
}

func (r *Registers) ReadBuffer(ctx context.Context, reg byte, buf []byte) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.reads = append(r.reads, reg)
	if err := r.fail[reg]; err != nil {
		return err
	}
	r.load(reg, buf)
	return nil
}

func (r *Registers) WriteReg8(ctx context.Context, reg byte, value byte) error {
	return r.WriteBuffer(ctx, reg, []byte{value})
}

func (r *Registers) WriteBuffer(ctx context.Context, reg byte, data []byte) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if err := r.fail[reg]; err != nil {
		return err
	}
	r.writes = append(r.writes, Write{Reg: reg, Data: append([]byte(nil), data...)})
	r.store(reg, data)
	return nil
}

func (r *Registers) Close() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.closed++
	return nil
}
