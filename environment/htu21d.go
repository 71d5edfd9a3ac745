package environment

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/envsensors"
)

// HTU21DAddress is the fixed I2C address of the HTU21D.
const HTU21DAddress = 0x40

const (
	htu21dRegTempNoHold = 0xF3
	htu21dRegHumNoHold  = 0xF5
	htu21dRegUserRead   = 0xE7
	htu21dRegUserWrite  = 0xE6
	htu21dRegReset      = 0xFE

	// user register bits 7 and 0 select the measurement resolution
	htu21dResolutionMask = 0b10000001
)

// Resolution is the HTU21D measurement resolution, humidity/temperature bits.
type Resolution byte

const (
	Resolution12_14 Resolution = 0b00000000
	Resolution8_12  Resolution = 0b00000001
	Resolution10_13 Resolution = 0b10000000
	Resolution11_11 Resolution = 0b10000001
)

func (r Resolution) String() string {
	switch r {
	case Resolution12_14:
		return "RH 12 bit / T 14 bit"
	case Resolution8_12:
		return "RH 8 bit / T 12 bit"
	case Resolution10_13:
		return "RH 10 bit / T 13 bit"
	case Resolution11_11:
		return "RH 11 bit / T 11 bit"
	default:
		return fmt.Sprintf("Resolution(%#08b)", byte(r))
	}
}

// HTU21D represents a TE Connectivity HTU21D(F) humidity and temperature sensor.
// Conversion uses the fixed datasheet coefficients; the device carries no
// calibration registers.
//
// Typical usage:
//
//	s, err := NewHTU21D(ctx, port)
//	t, h, err := s.GetTempAndHum(ctx)
type HTU21D struct {
	dev        *envsensors.Device
	resolution Resolution
}

// NewHTU21D takes ownership of port, reads the current resolution and issues
// a soft reset. On failure the port is closed.
func NewHTU21D(ctx context.Context, port envsensors.RegisterPort) (*HTU21D, error) {
	s := &HTU21D{dev: envsensors.NewDevice(port)}
	if err := s.connect(ctx); err != nil {
		return nil, s.dev.Abort("htu21d", err)
	}
	return s, nil
}

func (s *HTU21D) connect(ctx context.Context) error {
	user, err := s.dev.ReadReg8(ctx, htu21dRegUserRead)
	if err != nil {
		return fmt.Errorf("could not read user register: %w", err)
	}
	s.resolution = Resolution(user & htu21dResolutionMask)
	if err := s.dev.WriteReg8(ctx, htu21dRegReset, 1); err != nil {
		return fmt.Errorf("soft reset failed: %w", err)
	}
	slog.Debug("htu21d connected", "resolution", s.resolution)
	return nil
}

// Close releases the port. Calling it more than once is safe.
func (s *HTU21D) Close() error {
	return s.dev.Close()
}

func (s *HTU21D) IsOpen() bool {
	return s.dev.IsOpen()
}

// Resolution returns the resolution read at connect time or last set.
func (s *HTU21D) Resolution() Resolution {
	return s.resolution
}

// SetResolution changes the measurement resolution leaving the remaining user
// register bits untouched.
func (s *HTU21D) SetResolution(ctx context.Context, res Resolution) error {
	cur, err := s.dev.ReadReg8(ctx, htu21dRegUserRead)
	if err != nil {
		return fmt.Errorf("htu21d: could not read user register: %w", err)
	}
	next := envsensors.SetField(cur, htu21dResolutionMask, byte(res))
	if err := s.dev.WriteReg8(ctx, htu21dRegUserWrite, next); err != nil {
		return fmt.Errorf("htu21d: could not write user register: %w", err)
	}
	s.resolution = res
	return nil
}

// GetTemperature returns temperature in Celsius.
func (s *HTU21D) GetTemperature(ctx context.Context) (float32, error) {
	raw, err := s.dev.ReadRaw(ctx, htu21dRegTempNoHold, envsensors.Width16)
	if err != nil {
		return 0, fmt.Errorf("htu21d: could not read temperature: %w", err)
	}
	return HTU21DTemperature(raw), nil
}

// GetHumidity returns relative humidity in %RH.
func (s *HTU21D) GetHumidity(ctx context.Context) (float32, error) {
	raw, err := s.dev.ReadRaw(ctx, htu21dRegHumNoHold, envsensors.Width16)
	if err != nil {
		return 0, fmt.Errorf("htu21d: could not read humidity: %w", err)
	}
	return HTU21DHumidity(raw), nil
}

// GetTempAndHum reads temperature first, then humidity.
func (s *HTU21D) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	temp, err := s.GetTemperature(ctx)
	if err != nil {
		return 0, 0, err
	}
	hum, err := s.GetHumidity(ctx)
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

// Sense fills temperature and humidity of e.
func (s *HTU21D) Sense(ctx context.Context, e *physic.Env) error {
	temp, hum, err := s.GetTempAndHum(ctx)
	if err != nil {
		return err
	}
	e.Temperature = celsius(temp)
	e.Humidity = relativeHumidity(hum)
	return nil
}

func (s *HTU21D) String() string {
	return "HTU21D"
}

// HTU21DTemperature converts a raw temperature code.
// T = -46.85 + 175.72 * ST / 2^16, computed in milli-degrees.
// The two status bits are masked off first.
func HTU21DTemperature(raw uint32) float32 {
	temp := int32((21965*(raw&0xFFFC))>>13) - 46850
	return float32(temp) / 1000
}

// HTU21DHumidity converts a raw humidity code.
// RH = -6 + 125 * SRH / 2^16, computed in milli-percent.
func HTU21DHumidity(raw uint32) float32 {
	hum := int32((15625*(raw&0xFFFC))>>13) - 6000
	return float32(hum) / 1000
}
