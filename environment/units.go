package environment

import (
	"math"

	"periph.io/x/conn/v3/physic"
)

func celsius(c float32) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(math.Round(float64(c)*1000))*physic.MilliCelsius
}

func relativeHumidity(rh float32) physic.RelativeHumidity {
	return physic.RelativeHumidity(math.Round(float64(rh) * float64(physic.PercentRH)))
}

// hectopascal converts hPa into physic.Pressure with millipascal resolution.
func hectopascal(hpa float32) physic.Pressure {
	return physic.Pressure(math.Round(float64(hpa)*100_000)) * physic.MilliPascal
}
