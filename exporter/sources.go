package exporter

import (
	"context"

	"github.com/mklimuk/envsensors/air"
	"github.com/mklimuk/envsensors/environment"
)

// BMx280 samples every enabled channel of the sensor.
func BMx280(s *environment.BMx280) Source {
	return SourceFunc(func(ctx context.Context) (Sample, error) {
		m, err := s.Measure(ctx)
		if err != nil {
			return Sample{}, err
		}
		sample := Sample{Has: Temperature, Temperature: float64(m.Temperature)}
		if s.Oversampling(environment.Pressure) != environment.OversamplingSkipped {
			sample.Has |= Pressure
			sample.Pressure = float64(m.Pressure)
		}
		if s.Variant().HasHumidity() && s.Oversampling(environment.Humidity) != environment.OversamplingSkipped {
			sample.Has |= Humidity
			sample.Humidity = float64(m.Humidity)
		}
		return sample, nil
	})
}

// HTU21D samples temperature and humidity.
func HTU21D(s *environment.HTU21D) Source {
	return SourceFunc(func(ctx context.Context) (Sample, error) {
		t, h, err := s.GetTempAndHum(ctx)
		if err != nil {
			return Sample{}, err
		}
		return Sample{Has: Temperature | Humidity, Temperature: float64(t), Humidity: float64(h)}, nil
	})
}

// CCS811 samples the algorithm results and forwards environment data to the
// sensor.
func CCS811(s *air.CCS811) Source {
	return ccs811Source{s}
}

type ccs811Source struct {
	*air.CCS811
}

func (s ccs811Source) Sample(ctx context.Context) (Sample, error) {
	eco2, tvoc, err := s.ReadAlgorithmResults(ctx)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Has: ECO2 | TVOC, ECO2: float64(eco2), TVOC: float64(tvoc)}, nil
}
