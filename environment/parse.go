package environment

import (
	"fmt"
	"strings"
)

var filterNames = map[Filter]string{
	FilterOff: "off",
	Filter2:   "2",
	Filter4:   "4",
	Filter8:   "8",
	Filter16:  "16",
}

func (f Filter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Filter(%d)", byte(f))
}

var standbyNames = map[Standby]string{
	Standby0_5ms:  "0.5ms",
	Standby62_5ms: "62.5ms",
	Standby125ms:  "125ms",
	Standby250ms:  "250ms",
	Standby500ms:  "500ms",
	Standby1000ms: "1000ms",
	Standby10ms:   "10ms",
	Standby20ms:   "20ms",
}

func (s Standby) String() string {
	if name, ok := standbyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Standby(%d)", byte(s))
}

func ParsePowerMode(s string) (PowerMode, error) {
	for m := ModeSleep; m <= ModeNormal; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown power mode %q", s)
}

// ParseOversampling accepts "skipped" (or "skip", "0") and "1x" through "16x".
func ParseOversampling(s string) (Oversampling, error) {
	switch strings.ToLower(s) {
	case "skip", "0":
		return OversamplingSkipped, nil
	}
	for o := OversamplingSkipped; o <= Oversampling16x; o++ {
		if strings.EqualFold(o.String(), s) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown oversampling %q", s)
}

// ParseFilter accepts "off" or the filter coefficient.
func ParseFilter(s string) (Filter, error) {
	for f, name := range filterNames {
		if strings.EqualFold(name, s) {
			return f, nil
		}
	}
	if s == "0" {
		return FilterOff, nil
	}
	return 0, fmt.Errorf("unknown filter coefficient %q", s)
}

func ParseStandby(s string) (Standby, error) {
	for sb, name := range standbyNames {
		if strings.EqualFold(name, s) {
			return sb, nil
		}
	}
	return 0, fmt.Errorf("unknown standby time %q", s)
}

var resolutionNames = map[string]Resolution{
	"12/14": Resolution12_14,
	"8/12":  Resolution8_12,
	"10/13": Resolution10_13,
	"11/11": Resolution11_11,
}

// ParseResolution accepts the humidity/temperature bit counts, e.g. "12/14".
func ParseResolution(s string) (Resolution, error) {
	if r, ok := resolutionNames[s]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("unknown resolution %q", s)
}

func ParseChannel(s string) (Channel, error) {
	for ch := Temperature; ch <= Humidity; ch++ {
		if strings.EqualFold(ch.String(), s) {
			return ch, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}
