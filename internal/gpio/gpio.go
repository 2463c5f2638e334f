// Package gpio provides digital pin I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Pins reads and drives digital lines by offset.
type Pins interface {
	// ReadPin returns the electrical level of an input line (true = high).
	ReadPin(offset int) (bool, error)

	// WritePin drives an output line.
	WritePin(offset int, high bool) error

	// Close releases GPIO resources.
	Close() error
}

// Pull selects the bias of an input line.
type Pull int

const (
	PullNone Pull = iota
	PullDown
	PullUp
)

// Input describes an input line to request.
type Input struct {
	Offset int
	Pull   Pull
}

