package interlock

import "errors"

// testPins is an in-memory pin bank. Unset pins read low.
type testPins struct {
	levels  map[int]bool
	writes  []pinWrite
	readErr map[int]error
}

type pinWrite struct {
	pin  int
	high bool
}

func newTestPins() *testPins {
	return &testPins{levels: map[int]bool{}, readErr: map[int]error{}}
}

func (p *testPins) ReadPin(pin int) (bool, error) {
	if err := p.readErr[pin]; err != nil {
		return false, err
	}
	return p.levels[pin], nil
}

func (p *testPins) WritePin(pin int, high bool) error {
	p.writes = append(p.writes, pinWrite{pin, high})
	p.levels[pin] = high
	return nil
}

type testSensor struct {
	value float64
	err   error
}

func (s *testSensor) Read() (float64, error) {
	return s.value, s.err
}

type testDAC struct {
	codes []uint16
	err   error
}

func (d *testDAC) Write(code uint16) error {
	if d.err != nil {
		return d.err
	}
	d.codes = append(d.codes, code)
	return nil
}

func (d *testDAC) last() uint16 {
	if len(d.codes) == 0 {
		return 0
	}
	return d.codes[len(d.codes)-1]
}

var errSimulated = errors.New("simulated error")
