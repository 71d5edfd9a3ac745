package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/envsensors"
)

const (
	BMx280Address    = 0x77
	BMx280AddressAlt = 0x76

	BMP280ChipID = 0x58
	BME280ChipID = 0x60
)

const (
	bmxRegTempCalib  = 0x88
	bmxRegPressCalib = 0x8E
	bmxRegHumCalib1  = 0xA1
	bmxRegHumCalib2  = 0xE1
	bmxRegHumCalib3  = 0xE3
	bmxRegHumCalib4  = 0xE4
	bmxRegHumCalib6  = 0xE7

	bmxRegID      = 0xD0
	bmxRegReset   = 0xE0
	bmxRegCtrlHum = 0xF2
	bmxRegStatus  = 0xF3
	bmxRegCtrl    = 0xF4
	bmxRegConfig  = 0xF5

	bmxRegPress = 0xF7
	bmxRegTemp  = 0xFA
	bmxRegHum   = 0xFD
)

const (
	bmxResetCommand = 0xB6

	bmxPowerModeMask        = 0b00000011
	bmxHumOversampleMask    = 0b00000111
	bmxPressOversampleMask  = 0b00011100
	bmxPressOversampleShift = 2
	bmxTempOversampleMask   = 0b11100000
	bmxTempOversampleShift  = 5
	bmxFilterMask           = 0b00011100
	bmxFilterShift          = 2
	bmxStandbyMask          = 0b11100000
	bmxStandbyShift         = 5

	bmxStatusMeasuring = 0b00001000
)

var ErrUnknownChip = errors.New("unknown chip id")

// Variant tells which member of the BMx280 family is connected.
type Variant int

const (
	VariantBMP280 Variant = iota
	VariantBME280
)

// HasHumidity reports whether the variant has a humidity channel.
func (v Variant) HasHumidity() bool {
	return v == VariantBME280
}

func (v Variant) String() string {
	if v == VariantBME280 {
		return "BME280"
	}
	return "BMP280"
}

// PowerMode of the BMx280.
type PowerMode byte

const (
	ModeSleep PowerMode = iota
	ModeForced
	ModeNormal
)

func (m PowerMode) bits() byte {
	switch m {
	case ModeForced:
		return 0b01
	case ModeNormal:
		return 0b11
	default:
		return 0b00
	}
}

func (m PowerMode) String() string {
	switch m {
	case ModeSleep:
		return "sleep"
	case ModeForced:
		return "forced"
	case ModeNormal:
		return "normal"
	default:
		return fmt.Sprintf("PowerMode(%d)", byte(m))
	}
}

// Oversampling multiplier. OversamplingSkipped disables the measurement.
type Oversampling byte

const (
	OversamplingSkipped Oversampling = iota
	Oversampling1x
	Oversampling2x
	Oversampling4x
	Oversampling8x
	Oversampling16x
)

func (o Oversampling) String() string {
	switch o {
	case OversamplingSkipped:
		return "skipped"
	case Oversampling1x, Oversampling2x, Oversampling4x, Oversampling8x, Oversampling16x:
		return fmt.Sprintf("%dx", 1<<(o-1))
	default:
		return fmt.Sprintf("Oversampling(%d)", byte(o))
	}
}

// Channel is a measured quantity with its own oversampling setting.
type Channel int

const (
	Temperature Channel = iota
	Pressure
	Humidity
)

func (c Channel) String() string {
	switch c {
	case Temperature:
		return "temperature"
	case Pressure:
		return "pressure"
	case Humidity:
		return "humidity"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// Filter is the IIR filter coefficient.
type Filter byte

const (
	FilterOff Filter = iota
	Filter2
	Filter4
	Filter8
	Filter16
)

// Standby is the inactive duration between measurements in normal mode.
type Standby byte

const (
	Standby0_5ms Standby = iota
	Standby62_5ms
	Standby125ms
	Standby250ms
	Standby500ms
	Standby1000ms
	Standby10ms
	Standby20ms
)

// Measurement is the result of a combined read. Pressure is in hPa,
// humidity in %RH; disabled quantities are left at zero.
type Measurement struct {
	Temperature float32 `yaml:"temperature"`
	Pressure    float32 `yaml:"pressure,omitempty"`
	Humidity    float32 `yaml:"humidity,omitempty"`
}

type BMx280Opts struct {
	Reset        bool
	Mode         *PowerMode
	Oversampling map[Channel]Oversampling
	Filter       *Filter
	Standby      *Standby
	PollInterval time.Duration
}

type BMx280Opt func(*BMx280Opts)

// WithSoftReset resets the device before calibration is read.
func WithSoftReset() BMx280Opt {
	return func(o *BMx280Opts) {
		o.Reset = true
	}
}

func WithMode(mode PowerMode) BMx280Opt {
	return func(o *BMx280Opts) {
		o.Mode = &mode
	}
}

func WithOversampling(ch Channel, level Oversampling) BMx280Opt {
	return func(o *BMx280Opts) {
		if o.Oversampling == nil {
			o.Oversampling = map[Channel]Oversampling{}
		}
		o.Oversampling[ch] = level
	}
}

func WithFilter(f Filter) BMx280Opt {
	return func(o *BMx280Opts) {
		o.Filter = &f
	}
}

func WithStandby(s Standby) BMx280Opt {
	return func(o *BMx280Opts) {
		o.Standby = &s
	}
}

// WithPollInterval sets how often the status register is polled while a
// forced measurement is in progress.
func WithPollInterval(d time.Duration) BMx280Opt {
	return func(o *BMx280Opts) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// BMx280 represents a Bosch BMP280 (temperature, pressure) or BME280
// (temperature, pressure, humidity) sensor. The variant is detected from the
// chip id at connect time.
//
// A freshly connected device keeps its power-on configuration (sleep mode,
// every channel skipped) unless options are given. Reads of a skipped channel
// fail with envsensors.ErrConfiguration.
type BMx280 struct {
	dev     *envsensors.Device
	config  BMx280Opts
	chipID  byte
	variant Variant
	calib   Calibration

	mode         PowerMode
	oversampling [3]Oversampling
}

// NewBMx280 takes ownership of port and brings the device up: chip id,
// optional soft reset, calibration and the requested configuration.
// On failure the port is closed and a *envsensors.BringUpError is returned.
func NewBMx280(ctx context.Context, port envsensors.RegisterPort, opts ...BMx280Opt) (*BMx280, error) {
	config := BMx280Opts{
		Oversampling: map[Channel]Oversampling{},
		PollInterval: 2 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	s := &BMx280{dev: envsensors.NewDevice(port), config: config}
	if err := s.connect(ctx); err != nil {
		return nil, s.dev.Abort("bmx280", err)
	}
	return s, nil
}

func (s *BMx280) connect(ctx context.Context) error {
	id, err := s.dev.ReadReg8(ctx, bmxRegID)
	if err != nil {
		return fmt.Errorf("could not read chip id: %w", err)
	}
	s.chipID = id
	switch id {
	case BMP280ChipID:
		s.variant = VariantBMP280
	case BME280ChipID:
		s.variant = VariantBME280
	default:
		return fmt.Errorf("%w %#02x", ErrUnknownChip, id)
	}
	if s.config.Reset {
		if err := s.Reset(ctx); err != nil {
			return err
		}
	}
	if err := s.readCalibration(ctx); err != nil {
		return fmt.Errorf("could not read calibration: %w", err)
	}
	slog.Debug("bmx280 connected", "variant", s.variant, "chip_id", fmt.Sprintf("%#02x", id), "calibration", s.calib)
	return s.configure(ctx)
}

func (s *BMx280) readCalibration(ctx context.Context) error {
	// temperature: 3 words, first one unsigned
	t := [3]uint16{}
	for i := range t {
		w, err := s.dev.ReadReg16(ctx, bmxRegTempCalib+byte(2*i))
		if err != nil {
			return err
		}
		t[i] = w
	}
	s.calib.Temperature = TemperatureCalibration{T1: t[0], T2: int16(t[1]), T3: int16(t[2])}

	// pressure: 9 words, first one unsigned
	p := [9]uint16{}
	for i := range p {
		w, err := s.dev.ReadReg16(ctx, bmxRegPressCalib+byte(2*i))
		if err != nil {
			return err
		}
		p[i] = w
	}
	s.calib.Pressure = PressureCalibration{
		P1: p[0],
		P2: int16(p[1]),
		P3: int16(p[2]),
		P4: int16(p[3]),
		P5: int16(p[4]),
		P6: int16(p[5]),
		P7: int16(p[6]),
		P8: int16(p[7]),
		P9: int16(p[8]),
	}

	if !s.variant.HasHumidity() {
		return nil
	}
	h1, err := s.dev.ReadReg8(ctx, bmxRegHumCalib1)
	if err != nil {
		return err
	}
	h2, err := s.dev.ReadReg16(ctx, bmxRegHumCalib2)
	if err != nil {
		return err
	}
	h3, err := s.dev.ReadReg8(ctx, bmxRegHumCalib3)
	if err != nil {
		return err
	}
	var h4, h5 int16
	err = s.dev.ReadInto(ctx, bmxRegHumCalib4, 3, func(b []byte) {
		h4, h5 = splitHumidityNibbles(b)
	})
	if err != nil {
		return err
	}
	h6, err := s.dev.ReadReg8(ctx, bmxRegHumCalib6)
	if err != nil {
		return err
	}
	s.calib.Humidity = HumidityCalibration{
		H1: h1,
		H2: int16(h2),
		H3: h3,
		H4: h4,
		H5: h5,
		H6: int8(h6),
	}
	return nil
}

func (s *BMx280) configure(ctx context.Context) error {
	// humidity first: ctrl_hum is latched by the following ctrl_meas write
	for _, ch := range []Channel{Humidity, Temperature, Pressure} {
		level, ok := s.config.Oversampling[ch]
		if !ok {
			continue
		}
		if ch == Humidity && !s.variant.HasHumidity() {
			slog.Debug("ignoring humidity oversampling", "variant", s.variant)
			continue
		}
		if err := s.SetOversampling(ctx, ch, level); err != nil {
			return err
		}
	}
	if s.config.Filter != nil {
		if err := s.SetFilter(ctx, *s.config.Filter); err != nil {
			return err
		}
	}
	if s.config.Standby != nil {
		if err := s.SetStandby(ctx, *s.config.Standby); err != nil {
			return err
		}
	}
	if s.config.Mode != nil {
		if err := s.SetMode(ctx, *s.config.Mode); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the port. Calling it more than once is safe.
func (s *BMx280) Close() error {
	return s.dev.Close()
}

func (s *BMx280) IsOpen() bool {
	return s.dev.IsOpen()
}

func (s *BMx280) ChipID() byte {
	return s.chipID
}

func (s *BMx280) Variant() Variant {
	return s.variant
}

// Calibration returns a copy of the trimming parameters.
func (s *BMx280) Calibration() Calibration {
	return s.calib
}

func (s *BMx280) Mode() PowerMode {
	return s.mode
}

func (s *BMx280) Oversampling(ch Channel) Oversampling {
	if ch < Temperature || ch > Humidity {
		return OversamplingSkipped
	}
	return s.oversampling[ch]
}

func (s *BMx280) String() string {
	return s.variant.String()
}

// Reset issues a soft reset. The device returns to its power-on state, so the
// in-memory configuration is reset as well.
func (s *BMx280) Reset(ctx context.Context) error {
	if err := s.dev.WriteReg8(ctx, bmxRegReset, bmxResetCommand); err != nil {
		return fmt.Errorf("bmx280: soft reset failed: %w", err)
	}
	// start-up time after reset is 2ms
	time.Sleep(2 * time.Millisecond)
	s.mode = ModeSleep
	s.oversampling = [3]Oversampling{}
	return nil
}

// SetMode sets the power mode bits of ctrl_meas.
func (s *BMx280) SetMode(ctx context.Context, mode PowerMode) error {
	if mode > ModeNormal {
		return fmt.Errorf("bmx280: invalid power mode %d", mode)
	}
	if _, err := s.dev.Update(ctx, bmxRegCtrl, bmxPowerModeMask, mode.bits()); err != nil {
		return fmt.Errorf("bmx280: could not set mode: %w", err)
	}
	s.mode = mode
	return nil
}

// SetOversampling sets the oversampling of a single channel. Humidity is only
// available on the BME280.
func (s *BMx280) SetOversampling(ctx context.Context, ch Channel, level Oversampling) error {
	if !s.dev.IsOpen() {
		return envsensors.ErrNotOpen
	}
	if level > Oversampling16x {
		return fmt.Errorf("bmx280: invalid oversampling %d", level)
	}
	var err error
	switch ch {
	case Temperature:
		_, err = s.dev.Update(ctx, bmxRegCtrl, bmxTempOversampleMask, byte(level)<<bmxTempOversampleShift)
	case Pressure:
		_, err = s.dev.Update(ctx, bmxRegCtrl, bmxPressOversampleMask, byte(level)<<bmxPressOversampleShift)
	case Humidity:
		if !s.variant.HasHumidity() {
			return fmt.Errorf("bmx280: humidity: %w", envsensors.ErrUnsupported)
		}
		_, err = s.dev.Update(ctx, bmxRegCtrlHum, bmxHumOversampleMask, byte(level))
		if err == nil {
			// ctrl_hum only takes effect after a write to ctrl_meas
			_, err = s.dev.Update(ctx, bmxRegCtrl, 0, 0)
		}
	default:
		return fmt.Errorf("bmx280: invalid channel %d", ch)
	}
	if err != nil {
		return fmt.Errorf("bmx280: could not set %s oversampling: %w", ch, err)
	}
	s.oversampling[ch] = level
	return nil
}

// SetFilter sets the IIR filter coefficient in the config register.
func (s *BMx280) SetFilter(ctx context.Context, f Filter) error {
	if f > Filter16 {
		return fmt.Errorf("bmx280: invalid filter %d", f)
	}
	if _, err := s.dev.Update(ctx, bmxRegConfig, bmxFilterMask, byte(f)<<bmxFilterShift); err != nil {
		return fmt.Errorf("bmx280: could not set filter: %w", err)
	}
	return nil
}

// SetStandby sets the standby time used in normal mode.
func (s *BMx280) SetStandby(ctx context.Context, sb Standby) error {
	if sb > Standby20ms {
		return fmt.Errorf("bmx280: invalid standby %d", sb)
	}
	if _, err := s.dev.Update(ctx, bmxRegConfig, bmxStandbyMask, byte(sb)<<bmxStandbyShift); err != nil {
		return fmt.Errorf("bmx280: could not set standby: %w", err)
	}
	return nil
}

// Trigger starts a single measurement in forced mode and waits until the
// device reports completion. The device returns to sleep mode afterwards.
func (s *BMx280) Trigger(ctx context.Context) error {
	if err := s.SetMode(ctx, ModeForced); err != nil {
		return err
	}
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		status, err := s.dev.ReadReg8(ctx, bmxRegStatus)
		if err != nil {
			return fmt.Errorf("bmx280: could not read status: %w", err)
		}
		if status&bmxStatusMeasuring == 0 {
			s.mode = ModeSleep
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// require checks that the device is open, the variant supports every channel
// and none of them is skipped. It never touches the bus.
func (s *BMx280) require(channels ...Channel) error {
	if !s.dev.IsOpen() {
		return envsensors.ErrNotOpen
	}
	for _, ch := range channels {
		if ch == Humidity && !s.variant.HasHumidity() {
			return fmt.Errorf("bmx280: humidity: %w", envsensors.ErrUnsupported)
		}
	}
	for _, ch := range channels {
		if s.oversampling[ch] == OversamplingSkipped {
			return fmt.Errorf("%w: %s oversampling is skipped", envsensors.ErrConfiguration, ch)
		}
	}
	return nil
}

// temperature reads and compensates the temperature, returning the fine value
// as well.
func (s *BMx280) temperature(ctx context.Context) (float64, float64, error) {
	raw, err := s.dev.ReadRaw(ctx, bmxRegTemp, envsensors.Width20)
	if err != nil {
		return 0, 0, fmt.Errorf("bmx280: could not read temperature: %w", err)
	}
	t, fine := s.calib.Temperature.Compensate(raw)
	return t, fine, nil
}

func (s *BMx280) pressure(ctx context.Context, fine float64) (float64, error) {
	raw, err := s.dev.ReadRaw(ctx, bmxRegPress, envsensors.Width20)
	if err != nil {
		return 0, fmt.Errorf("bmx280: could not read pressure: %w", err)
	}
	return s.calib.Pressure.Compensate(raw, fine), nil
}

func (s *BMx280) humidity(ctx context.Context, fine float64) (float64, error) {
	raw, err := s.dev.ReadRaw(ctx, bmxRegHum, envsensors.Width16)
	if err != nil {
		return 0, fmt.Errorf("bmx280: could not read humidity: %w", err)
	}
	return s.calib.Humidity.Compensate(raw, fine), nil
}

// GetTemperature returns temperature in Celsius.
func (s *BMx280) GetTemperature(ctx context.Context) (float32, error) {
	if err := s.require(Temperature); err != nil {
		return 0, err
	}
	t, _, err := s.temperature(ctx)
	return float32(t), err
}

// GetPressure returns pressure in hPa. Temperature is sampled as well since
// the pressure formula depends on it; prefer GetTempAndPressure when both are
// needed.
func (s *BMx280) GetPressure(ctx context.Context) (float32, error) {
	_, p, err := s.GetTempAndPressure(ctx)
	return p, err
}

// GetHumidity returns relative humidity in %RH.
func (s *BMx280) GetHumidity(ctx context.Context) (float32, error) {
	_, h, err := s.GetTempAndHum(ctx)
	return h, err
}

// GetTempAndPressure returns temperature in Celsius and pressure in hPa.
func (s *BMx280) GetTempAndPressure(ctx context.Context) (float32, float32, error) {
	if err := s.require(Temperature, Pressure); err != nil {
		return 0, 0, err
	}
	t, fine, err := s.temperature(ctx)
	if err != nil {
		return 0, 0, err
	}
	p, err := s.pressure(ctx, fine)
	if err != nil {
		return 0, 0, err
	}
	return float32(t), float32(p), nil
}

// GetTempAndHum returns temperature in Celsius and humidity in %RH.
func (s *BMx280) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	if err := s.require(Humidity, Temperature); err != nil {
		return 0, 0, err
	}
	t, fine, err := s.temperature(ctx)
	if err != nil {
		return 0, 0, err
	}
	h, err := s.humidity(ctx, fine)
	if err != nil {
		return 0, 0, err
	}
	return float32(t), float32(h), nil
}

// GetAll returns temperature, pressure and humidity from one read cycle.
func (s *BMx280) GetAll(ctx context.Context) (Measurement, error) {
	if err := s.require(Humidity, Temperature, Pressure); err != nil {
		return Measurement{}, err
	}
	t, fine, err := s.temperature(ctx)
	if err != nil {
		return Measurement{}, err
	}
	p, err := s.pressure(ctx, fine)
	if err != nil {
		return Measurement{}, err
	}
	h, err := s.humidity(ctx, fine)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{Temperature: float32(t), Pressure: float32(p), Humidity: float32(h)}, nil
}

// Measure reads every enabled channel. Temperature must be enabled.
func (s *BMx280) Measure(ctx context.Context) (Measurement, error) {
	if err := s.require(Temperature); err != nil {
		return Measurement{}, err
	}
	t, fine, err := s.temperature(ctx)
	if err != nil {
		return Measurement{}, err
	}
	m := Measurement{Temperature: float32(t)}
	if s.oversampling[Pressure] != OversamplingSkipped {
		p, err := s.pressure(ctx, fine)
		if err != nil {
			return Measurement{}, err
		}
		m.Pressure = float32(p)
	}
	if s.variant.HasHumidity() && s.oversampling[Humidity] != OversamplingSkipped {
		h, err := s.humidity(ctx, fine)
		if err != nil {
			return Measurement{}, err
		}
		m.Humidity = float32(h)
	}
	return m, nil
}

// Sense fills e with every enabled quantity.
func (s *BMx280) Sense(ctx context.Context, e *physic.Env) error {
	m, err := s.Measure(ctx)
	if err != nil {
		return err
	}
	e.Temperature = celsius(m.Temperature)
	if s.oversampling[Pressure] != OversamplingSkipped {
		e.Pressure = hectopascal(m.Pressure)
	}
	if s.variant.HasHumidity() && s.oversampling[Humidity] != OversamplingSkipped {
		e.Humidity = relativeHumidity(m.Humidity)
	}
	return nil
}
