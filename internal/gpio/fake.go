package gpio

import "fmt"

// FakePins is a test double that plays back scripted pin levels.
type FakePins struct {
	// Samples contains scripted levels keyed by offset.
	// Each call to Advance() moves to the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Writes records every WritePin call in order.
	Writes []Write

	// outputs holds the last level written per offset.
	outputs map[int]bool

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by ReadPin()
	ReadError error
}

// Sample is one snapshot of input levels. Offsets not present read low.
type Sample map[int]bool

// Write is a recorded output write.
type Write struct {
	Offset int
	High   bool
}

// NewFakePins creates FakePins with the given samples.
func NewFakePins(samples []Sample) *FakePins {
	return &FakePins{Samples: samples, outputs: make(map[int]bool)}
}

// ReadPin returns the level of offset in the current sample, or the last
// level written to it when it is an output.
func (f *FakePins) ReadPin(offset int) (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if v, ok := f.outputs[offset]; ok {
		return v, nil
	}
	if len(f.Samples) == 0 {
		return false, fmt.Errorf("no samples configured")
	}
	return f.Samples[f.index][offset], nil
}

// WritePin records the write.
func (f *FakePins) WritePin(offset int, high bool) error {
	f.Writes = append(f.Writes, Write{Offset: offset, High: high})
	f.outputs[offset] = high
	return nil
}

// Advance moves to the next sample.
// If samples are exhausted, the last sample is kept.
func (f *FakePins) Advance() {
	if f.index < len(f.Samples)-1 {
		f.index++
	}
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the pins to the beginning of samples.
func (f *FakePins) Reset() {
	f.index = 0
	f.Closed = false
	f.Writes = nil
	f.outputs = make(map[int]bool)
}
