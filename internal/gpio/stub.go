//go:build !linux

package gpio

import "errors"

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(chipName string, inputs []Input, outputs []int) (*RealPins, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ReadPin is not implemented on non-Linux platforms.
func (p *RealPins) ReadPin(offset int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// WritePin is not implemented on non-Linux platforms.
func (p *RealPins) WritePin(offset int, high bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *RealPins) Close() error {
	return nil
}
