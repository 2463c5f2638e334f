package periph

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

// DefaultADS1115Address is the ADS1115 address with ADDR tied to ground.
const DefaultADS1115Address = 0x48

const (
	adcFullScale = 4096 * physic.MilliVolt
	// The fastest rate keeps a single-shot read at about a millisecond.
	adcRate = 860 * physic.Hertz
)

var singleEnded = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// ADS1115 reads single-ended channels of a 16-bit four channel ADC.
type ADS1115 struct {
	mu   sync.Mutex
	dev  *ads1x15.Dev
	pins [len(singleEnded)]ads1x15.PinADC
}

// NewADS1115 returns an ADC on bus. A zero addr selects the default address.
func NewADS1115(bus i2c.Bus, addr uint16) (*ADS1115, error) {
	if addr == 0 {
		addr = DefaultADS1115Address
	}
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
	if err != nil {
		return nil, fmt.Errorf("ads1115 at 0x%02x: %w", addr, err)
	}
	return &ADS1115{dev: dev}, nil
}

// ReadMillivolts runs one single-ended conversion on channel (0-3).
// It blocks for one conversion time.
func (a *ADS1115) ReadMillivolts(channel int) (float64, error) {
	if channel < 0 || channel >= len(singleEnded) {
		return 0, fmt.Errorf("ads1115: channel %d out of range", channel)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pins[channel]
	if p == nil {
		var err error
		p, err = a.dev.PinForChannel(singleEnded[channel], adcFullScale, adcRate, ads1x15.BestQuality)
		if err != nil {
			return 0, fmt.Errorf("ads1115 channel %d: %w", channel, err)
		}
		a.pins[channel] = p
	}

	s, err := p.Read()
	if err != nil {
		return 0, fmt.Errorf("ads1115 read channel %d: %w", channel, err)
	}
	return float64(s.V) / float64(physic.MilliVolt), nil
}

// Close halts every channel opened so far.
func (a *ADS1115) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for i, p := range a.pins {
		if p == nil {
			continue
		}
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt channel %d: %w", i, err))
		}
		a.pins[i] = nil
	}
	return errors.Join(errs...)
}
