package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"periph.io/x/conn/v3/gpio"
	"tinygo.org/x/drivers"

	"github.com/mklimuk/envsensors"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

const (
	cmdStatus      = 0x10
	cmdGetI2CData  = 0x40
	cmdSetGPIO     = 0x50
	cmdGetGPIO     = 0x51
	cmdI2CWrite    = 0x90
	cmdI2CRead     = 0x91
	cmdGetSRAM     = 0xB0
	cmdSetSRAM     = 0xB1
	statusBusy     = 0x01
	statusReadFail = 0x41
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var _ envsensors.I2CBus = &MCP2221{}
var _ drivers.I2C = &MCP2221{}

// HIDDevice is an open USB HID handle exchanging 64 byte reports.
type HIDDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Opener opens the HID device for a single command exchange.
type Opener func() (HIDDevice, error)

// Enumerate lists the connected MCP2221 adapters.
func Enumerate() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

// HIDOpener opens the adapter with the given enumeration index. A negative
// index requires exactly one adapter to be connected.
func HIDOpener(index int) Opener {
	return func() (HIDDevice, error) {
		devs := Enumerate()
		if len(devs) == 0 {
			return nil, ErrDeviceNotFound
		}
		if index < 0 {
			if len(devs) > 1 {
				return nil, fmt.Errorf("ambiguous device identification: %d adapters connected", len(devs))
			}
			index = 0
		}
		if index >= len(devs) {
			return nil, fmt.Errorf("no device with id %d", index)
		}
		dev, err := devs[index].Open()
		if err != nil {
			return nil, fmt.Errorf("error opening device: %w", err)
		}
		return dev, nil
	}
}

type MCP2221Opts struct {
	Opener       Opener
	ResponseWait time.Duration
	Dump         bool
}

type MCP2221Opt func(*MCP2221Opts)

func WithOpener(o Opener) MCP2221Opt {
	return func(opts *MCP2221Opts) {
		opts.Opener = o
	}
}

func WithResponseWait(d time.Duration) MCP2221Opt {
	return func(opts *MCP2221Opts) {
		opts.ResponseWait = d
	}
}

// WithDump logs every report exchanged with the adapter at debug level.
func WithDump(dump bool) MCP2221Opt {
	return func(opts *MCP2221Opts) {
		opts.Dump = dump
	}
}

// MCP2221 is a Microchip USB to I2C/GPIO bridge. It implements
// envsensors.I2CBus so any driver can run from a workstation.
type MCP2221 struct {
	mx       sync.Mutex
	config   MCP2221Opts
	request  []byte
	response []byte
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

// GPIODesignation selects the pin function; only GPIOOperation makes the pin
// usable as a plain input or output.
type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// dedicated functions, shared bit patterns differ per pin
	GPIO0SSPND       GPIODesignation = 0b00000010
	GPIO1ClockOutput GPIODesignation = 0b00000001
	GPIO3LEDI2C      GPIODesignation = 0b00000001
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

// GPIOCount is the number of general purpose pins on the adapter.
const GPIOCount = 4

type GPIOValue struct {
	Mode  GPIOMode `yaml:"mode"`
	Value byte     `yaml:"value"`
}

type GPIOParameter struct {
	Mode        GPIOMode        `yaml:"mode"`
	Designation GPIODesignation `yaml:"designation"`
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		Opener:       HIDOpener(-1),
		ResponseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP2221{
		config:   config,
		request:  make([]byte, reportSize),
		response: make([]byte, reportSize),
	}
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > reportSize-4 {
		return fmt.Errorf("write to %x failed: %d bytes exceed a single report", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == statusBusy {
		slog.Debug("adapter busy", "address", fmt.Sprintf("%#02x", address))
		return envsensors.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > reportSize-4 {
		return fmt.Errorf("read from %x failed: %d bytes exceed a single report", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == statusBusy {
		return envsensors.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetI2CData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == statusReadFail {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// Tx writes w and then reads r from addr. Either may be empty.
func (d *MCP2221) Tx(addr uint16, w, r []byte) error {
	ctx := context.Background()
	if len(w) > 0 || len(r) == 0 {
		if err := d.WriteToAddr(ctx, byte(addr), w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		return d.ReadFromAddr(ctx, byte(addr), r)
	}
	return nil
}

// SetGPIOParameters writes the GP settings to SRAM.
func (d *MCP2221) SetGPIOParameters(ctx context.Context, params [GPIOCount]GPIOParameter) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetSRAM
	// alter GPIO configuration
	d.request[7] = 0x80
	for i, p := range params {
		d.request[8+i] = byte(p.Designation) | byte(p.Mode)
	}
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) ([GPIOCount]GPIOParameter, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var res [GPIOCount]GPIOParameter
	d.resetBuffers()
	d.request[0] = cmdGetSRAM
	if err := d.send(ctx); err != nil {
		return res, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return res, ErrCommandUnsupported
	}
	for i := range res {
		b := d.response[22+i]
		res[i] = GPIOParameter{
			Mode:        GPIOMode(b & gpioModeMask),
			Designation: GPIODesignation(b & gpioOperationMask),
		}
	}
	return res, nil
}

func (d *MCP2221) ReadGPIO(ctx context.Context) ([GPIOCount]GPIOValue, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var res [GPIOCount]GPIOValue
	d.resetBuffers()
	d.request[0] = cmdGetGPIO
	if err := d.send(ctx); err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return res, ErrCommandFailed
	}
	for i := range res {
		res[i] = GPIOValue{Mode: GPIOModeNoOperation, Value: d.response[2+2*i]}
		if dir := d.response[3+2*i]; dir != byte(GPIOModeNoOperation) {
			res[i].Mode = GPIOMode(dir << 3)
		}
	}
	return res, nil
}

// SetGPIO drives pin as an output at the given level.
func (d *MCP2221) SetGPIO(ctx context.Context, pin int, level gpio.Level) error {
	if pin < 0 || pin >= GPIOCount {
		return fmt.Errorf("invalid GPIO %d", pin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetGPIO
	// per pin: alter output, output value, alter direction, direction
	base := 2 + 4*pin
	d.request[base] = 0x01
	if level {
		d.request[base+1] = 0x01
	}
	d.request[base+2] = 0x01
	d.request[base+3] = 0x00
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set GPIO command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

// Pin returns an output pin usable as a CCS811 wake line.
func (d *MCP2221) Pin(n int) *MCP2221Pin {
	return &MCP2221Pin{adapter: d, n: n}
}

type MCP2221Pin struct {
	adapter *MCP2221
	n       int
}

func (p *MCP2221Pin) Out(l gpio.Level) error {
	return p.adapter.SetGPIO(context.Background(), p.n, l)
}

func (p *MCP2221Pin) String() string {
	return fmt.Sprintf("MCP2221/GP%d", p.n)
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels any pending I2C transfer so the next device starts on a
// clean bus.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	// cancel current transfer
	d.request[2] = 0x10
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// send writes the request report and reads the response report.
func (d *MCP2221) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := d.config.Opener()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	if d.config.Dump {
		slog.Debug("sending message to adapter", "report", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.config.ResponseWait > 0 {
		timer := time.NewTimer(d.config.ResponseWait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if d.config.Dump {
		slog.Debug("read message from adapter", "report", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
