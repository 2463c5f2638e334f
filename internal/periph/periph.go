// Package periph provides the I2C peripherals the interlocks consume as
// primitives: a 12-bit DAC write for the pressure regulator and a millivolt
// ADC read for the pressure and temperature sensors.
// Devices sit on a periph.io i2c.Bus, so they run against the host bus in
// production and a scripted bus in tests.
package periph

import "fmt"

// MillivoltReader reads one single-ended ADC channel.
type MillivoltReader interface {
	ReadMillivolts(channel int) (float64, error)
}

// LinearSensor converts an ADC channel to engineering units:
// value = millivolts*Scale + Offset.
type LinearSensor struct {
	ADC     MillivoltReader
	Channel int
	Scale   float64
	Offset  float64
}

// Read returns the channel reading in engineering units.
func (s *LinearSensor) Read() (float64, error) {
	mv, err := s.ADC.ReadMillivolts(s.Channel)
	if err != nil {
		return 0, fmt.Errorf("read channel %d: %w", s.Channel, err)
	}
	return mv*s.Scale + s.Offset, nil
}
