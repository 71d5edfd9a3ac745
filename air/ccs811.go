package air

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/envsensors"
)

const (
	CCS811Address    = 0x5B
	CCS811AddressAlt = 0x5A

	// CCS811HardwareID is the content of the HW_ID register.
	CCS811HardwareID = 0x81
)

const (
	ccsRegStatus      = 0x00
	ccsRegMode        = 0x01
	ccsRegAlgResult   = 0x02
	ccsRegEnvData     = 0x05
	ccsRegHardwareID  = 0x20
	ccsRegBootVersion = 0x23
	ccsRegAppVersion  = 0x24
	ccsRegErrorID     = 0xE0
	ccsRegStartApp    = 0xF4
	ccsRegReset       = 0xFF
)

const (
	ccsDriveModeMask  = 0b01110000
	ccsDriveModeShift = 4

	ccsStatusError     = 1 << 0
	ccsStatusDataReady = 1 << 3
	ccsStatusAppValid  = 1 << 4
	ccsStatusFwMode    = 1 << 7
)

var ccsResetSequence = []byte{0x11, 0xE5, 0x72, 0x8A}

var ErrAppNotValid = errors.New("ccs811: application not valid")

// DriveMode is the CCS811 measurement interval.
type DriveMode byte

const (
	// ModeIdle is the low current mode, no measurements.
	ModeIdle DriveMode = iota
	// Mode1s is constant power mode, measurement every second.
	Mode1s
	// Mode10s is pulse heating mode, measurement every 10 seconds.
	Mode10s
	// Mode60s is low power pulse heating mode, measurement every 60 seconds.
	Mode60s
	// Mode250ms is constant power mode, raw sensor data every 250ms.
	Mode250ms
)

func (m DriveMode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case Mode1s:
		return "1s"
	case Mode10s:
		return "10s"
	case Mode60s:
		return "60s"
	case Mode250ms:
		return "250ms"
	default:
		return fmt.Sprintf("DriveMode(%d)", byte(m))
	}
}

// ParseDriveMode is the inverse of DriveMode.String.
func ParseDriveMode(s string) (DriveMode, error) {
	for m := ModeIdle; m <= Mode250ms; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown drive mode %q", s)
}

// Status is the decoded STATUS register.
type Status struct {
	Error        bool `yaml:"error"`
	DataReady    bool `yaml:"data_ready"`
	AppValid     bool `yaml:"app_valid"`
	FirmwareMode bool `yaml:"firmware_mode"`
}

func decodeStatus(b byte) Status {
	return Status{
		Error:        b&ccsStatusError != 0,
		DataReady:    b&ccsStatusDataReady != 0,
		AppValid:     b&ccsStatusAppValid != 0,
		FirmwareMode: b&ccsStatusFwMode != 0,
	}
}

// ErrorFlags is the content of the ERROR_ID register.
type ErrorFlags byte

const (
	ErrMsgInvalid      ErrorFlags = 1 << 0
	ErrReadRegInvalid  ErrorFlags = 1 << 1
	ErrMeasModeInvalid ErrorFlags = 1 << 2
	ErrMaxResistance   ErrorFlags = 1 << 3
	ErrHeaterFault     ErrorFlags = 1 << 4
	ErrHeaterSupply    ErrorFlags = 1 << 5
)

var errorTokens = []struct {
	flag  ErrorFlags
	token string
}{
	{ErrHeaterSupply, "HeaterSupply"},
	{ErrHeaterFault, "HeaterFault"},
	{ErrMaxResistance, "MaxResistance"},
	{ErrMeasModeInvalid, "MeasModeInvalid"},
	{ErrReadRegInvalid, "ReadRegInvalid"},
	{ErrMsgInvalid, "MsgInvalid"},
}

// Tokens returns the names of the set flags, most severe first.
func (f ErrorFlags) Tokens() []string {
	var tokens []string
	for _, e := range errorTokens {
		if f&e.flag != 0 {
			tokens = append(tokens, e.token)
		}
	}
	return tokens
}

// DeviceError is reported when the device raises the STATUS error bit.
type DeviceError struct {
	Flags ErrorFlags
}

func (e *DeviceError) Error() string {
	tokens := e.Flags.Tokens()
	if len(tokens) == 0 {
		return fmt.Sprintf("ccs811: device error %#02x", byte(e.Flags))
	}
	return "ccs811: device error: " + strings.Join(tokens, " ")
}

// Version is a firmware version.
type Version struct {
	Major   uint8
	Minor   uint8
	Trivial uint8
}

func decodeVersion(b []byte) Version {
	return Version{Major: b[0] >> 4, Minor: b[0] & 0x0F, Trivial: b[1]}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Trivial)
}

// WakePin drives the active-low nWAKE line. gpio.PinOut satisfies it.
type WakePin interface {
	Out(l gpio.Level) error
}

type CCS811Opts struct {
	Wake       WakePin
	WakeDelay  time.Duration
	ResetDelay time.Duration
	Mode       *DriveMode
}

type CCS811Opt func(*CCS811Opts)

// WithWakePin asserts nWAKE for the lifetime of the handle.
func WithWakePin(pin WakePin) CCS811Opt {
	return func(o *CCS811Opts) {
		o.Wake = pin
	}
}

// WithDriveMode sets the drive mode once the application has started.
func WithDriveMode(mode DriveMode) CCS811Opt {
	return func(o *CCS811Opts) {
		o.Mode = &mode
	}
}

func WithResetDelay(d time.Duration) CCS811Opt {
	return func(o *CCS811Opts) {
		o.ResetDelay = d
	}
}

// CCS811 represents an ams CCS811 digital gas sensor reporting equivalent CO2
// and total volatile organic compounds.
//
// Typical usage:
//
//	s, err := NewCCS811(ctx, port)
//	err = s.SetMode(ctx, Mode1s)
//	eco2, tvoc, err := s.ReadAlgorithmResults(ctx)
type CCS811 struct {
	dev    *envsensors.Device
	config CCS811Opts
	hwID   byte
	mode   DriveMode

	release sync.Once
}

// NewCCS811 takes ownership of port and starts the application firmware.
// On failure the port is closed and the wake pin released.
func NewCCS811(ctx context.Context, port envsensors.RegisterPort, opts ...CCS811Opt) (*CCS811, error) {
	config := CCS811Opts{
		WakeDelay:  50 * time.Microsecond,
		ResetDelay: 2 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	s := &CCS811{dev: envsensors.NewDevice(port), config: config}
	if err := s.connect(ctx); err != nil {
		err = s.dev.Abort("ccs811", err)
		s.releaseWake()
		return nil, err
	}
	return s, nil
}

func (s *CCS811) connect(ctx context.Context) error {
	if s.config.Wake != nil {
		if err := s.config.Wake.Out(gpio.Low); err != nil {
			return fmt.Errorf("could not assert wake pin: %w", err)
		}
		time.Sleep(s.config.WakeDelay)
	}
	id, err := s.dev.ReadReg8(ctx, ccsRegHardwareID)
	if err != nil {
		return fmt.Errorf("could not read hardware id: %w", err)
	}
	s.hwID = id
	if id != CCS811HardwareID {
		slog.Warn("unexpected ccs811 hardware id", "hw_id", fmt.Sprintf("%#02x", id))
	}
	if err := s.startApp(ctx); err != nil {
		return err
	}
	if s.config.Mode != nil {
		return s.SetMode(ctx, *s.config.Mode)
	}
	return nil
}

// startApp moves the device from boot to application mode.
func (s *CCS811) startApp(ctx context.Context) error {
	b, err := s.dev.ReadReg8(ctx, ccsRegStatus)
	if err != nil {
		return fmt.Errorf("could not read status: %w", err)
	}
	status := decodeStatus(b)
	if status.Error {
		return s.readError(ctx)
	}
	if !status.AppValid {
		return ErrAppNotValid
	}
	// the transition is a write with no data
	if err := s.dev.WriteBuffer(ctx, ccsRegStartApp, nil); err != nil {
		return fmt.Errorf("could not start application: %w", err)
	}
	s.mode = ModeIdle
	slog.Debug("ccs811 application started", "hw_id", fmt.Sprintf("%#02x", s.hwID))
	return nil
}

func (s *CCS811) readError(ctx context.Context) error {
	flags, err := s.dev.ReadReg8(ctx, ccsRegErrorID)
	if err != nil {
		return fmt.Errorf("could not read error id: %w", err)
	}
	return &DeviceError{Flags: ErrorFlags(flags)}
}

func (s *CCS811) releaseWake() {
	if s.config.Wake == nil {
		return
	}
	s.release.Do(func() {
		if err := s.config.Wake.Out(gpio.High); err != nil {
			slog.Warn("could not release ccs811 wake pin", "error", err)
		}
	})
}

// Close releases the port and the wake pin. Calling it more than once is safe.
func (s *CCS811) Close() error {
	err := s.dev.Close()
	s.releaseWake()
	return err
}

func (s *CCS811) IsOpen() bool {
	return s.dev.IsOpen()
}

// HardwareID returns the HW_ID read at connect time.
func (s *CCS811) HardwareID() byte {
	return s.hwID
}

func (s *CCS811) String() string {
	return "CCS811"
}

// Mode returns the drive mode last set.
func (s *CCS811) Mode() DriveMode {
	return s.mode
}

// SetMode changes the drive mode keeping the interrupt and threshold bits of
// MEAS_MODE.
func (s *CCS811) SetMode(ctx context.Context, mode DriveMode) error {
	if !s.dev.IsOpen() {
		return envsensors.ErrNotOpen
	}
	if mode > Mode250ms {
		return fmt.Errorf("ccs811: invalid drive mode %d", mode)
	}
	if _, err := s.dev.Update(ctx, ccsRegMode, ccsDriveModeMask, byte(mode)<<ccsDriveModeShift); err != nil {
		return fmt.Errorf("ccs811: could not set mode: %w", err)
	}
	s.mode = mode
	return nil
}

// Status reads and decodes the STATUS register.
func (s *CCS811) Status(ctx context.Context) (Status, error) {
	b, err := s.dev.ReadReg8(ctx, ccsRegStatus)
	if err != nil {
		return Status{}, fmt.Errorf("ccs811: could not read status: %w", err)
	}
	return decodeStatus(b), nil
}

// DataReady reports whether a new algorithm result is available.
func (s *CCS811) DataReady(ctx context.Context) (bool, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return false, err
	}
	return st.DataReady, nil
}

// LastError reads ERROR_ID. It returns nil when no flag is set.
func (s *CCS811) LastError(ctx context.Context) error {
	flags, err := s.dev.ReadReg8(ctx, ccsRegErrorID)
	if err != nil {
		return fmt.Errorf("ccs811: could not read error id: %w", err)
	}
	if flags == 0 {
		return nil
	}
	return &DeviceError{Flags: ErrorFlags(flags)}
}

// ReadAlgorithmResults returns equivalent CO2 in ppm and TVOC in ppb.
func (s *CCS811) ReadAlgorithmResults(ctx context.Context) (uint16, uint16, error) {
	var eco2, tvoc uint16
	err := s.dev.ReadInto(ctx, ccsRegAlgResult, 4, func(b []byte) {
		eco2 = uint16(envsensors.Assemble16(b[0:2]))
		tvoc = uint16(envsensors.Assemble16(b[2:4]))
	})
	if err != nil {
		return 0, 0, fmt.Errorf("ccs811: could not read algorithm results: %w", err)
	}
	return eco2, tvoc, nil
}

// SetEnvironmentData feeds ambient humidity (%RH) and temperature (Celsius) to
// the compensation algorithm. Values are clamped to the register range.
func (s *CCS811) SetEnvironmentData(ctx context.Context, humidity, temperature float32) error {
	hum := envFixedPoint(float64(humidity))
	// temperature is stored with a 25 degree offset
	temp := envFixedPoint(float64(temperature) + 25)
	data := []byte{byte(hum >> 8), byte(hum), byte(temp >> 8), byte(temp)}
	if err := s.dev.WriteBuffer(ctx, ccsRegEnvData, data); err != nil {
		return fmt.Errorf("ccs811: could not write environment data: %w", err)
	}
	return nil
}

// envFixedPoint encodes v in 1/512 units.
func envFixedPoint(v float64) uint16 {
	raw := math.Round(v * 512)
	switch {
	case raw < 0:
		return 0
	case raw > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(raw)
}

// Reset issues a software reset and starts the application again. The drive
// mode returns to idle.
func (s *CCS811) Reset(ctx context.Context) error {
	if err := s.dev.WriteBuffer(ctx, ccsRegReset, ccsResetSequence); err != nil {
		return fmt.Errorf("ccs811: software reset failed: %w", err)
	}
	timer := time.NewTimer(s.config.ResetDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	err := s.startApp(ctx)
	var devErr *DeviceError
	if err == nil || errors.Is(err, ErrAppNotValid) || errors.As(err, &devErr) {
		return err
	}
	return fmt.Errorf("ccs811: restart application: %w", err)
}

// BootVersion returns the bootloader version. The second value is false when
// the version could not be read.
func (s *CCS811) BootVersion(ctx context.Context) (Version, bool) {
	return s.version(ctx, ccsRegBootVersion, "boot")
}

// AppVersion returns the application firmware version. The second value is
// false when the version could not be read.
func (s *CCS811) AppVersion(ctx context.Context) (Version, bool) {
	return s.version(ctx, ccsRegAppVersion, "app")
}

func (s *CCS811) version(ctx context.Context, reg byte, kind string) (Version, bool) {
	var v Version
	err := s.dev.ReadInto(ctx, reg, 2, func(b []byte) {
		v = decodeVersion(b)
	})
	if err != nil {
		slog.Debug("could not read ccs811 version", "kind", kind, "error", err)
		return Version{}, false
	}
	return v, true
}
