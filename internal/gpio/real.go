//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPins drives lines on a Linux GPIO character device.
type RealPins struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
}

// NewRealPins requests the given inputs and outputs on chipName.
// Outputs start low.
func NewRealPins(chipName string, inputs []Input, outputs []int) (*RealPins, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPins{
		chip:    chip,
		inputs:  make(map[int]*gpiocdev.Line),
		outputs: make(map[int]*gpiocdev.Line),
	}

	for _, in := range inputs {
		line, err := chip.RequestLine(in.Offset, gpiocdev.AsInput, biasOption(in.Pull))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request input pin %d: %w", in.Offset, err)
		}
		p.inputs[in.Offset] = line
	}

	for _, offset := range outputs {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request output pin %d: %w", offset, err)
		}
		p.outputs[offset] = line
	}

	return p, nil
}

func biasOption(pull Pull) gpiocdev.LineReqOption {
	switch pull {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// ReadPin returns the level of a requested input line.
func (p *RealPins) ReadPin(offset int) (bool, error) {
	line, ok := p.inputs[offset]
	if !ok {
		return false, fmt.Errorf("pin %d not requested as input", offset)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", offset, err)
	}
	return v != 0, nil
}

// WritePin drives a requested output line.
func (p *RealPins) WritePin(offset int, high bool) error {
	line, ok := p.outputs[offset]
	if !ok {
		return fmt.Errorf("pin %d not requested as output", offset)
	}
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", offset, err)
	}
	return nil
}

// Close releases GPIO resources.
// Outputs are driven low and reconfigured as pulled-down inputs before
// closing so a restarting daemon never leaves an actuator engaged.
func (p *RealPins) Close() error {
	var errs []error

	for offset, line := range p.outputs {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pin %d low: %w", offset, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", offset, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", offset, err))
		}
	}
	for offset, line := range p.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", offset, err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
