package periph

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// DefaultMCP4725Address is the MCP4725 address with A0 tied low.
const DefaultMCP4725Address = 0x60

// MCP4725 is a 12-bit I2C DAC.
type MCP4725 struct {
	dev i2c.Dev
}

// NewMCP4725 returns a DAC on bus. A zero addr selects the default address.
func NewMCP4725(bus i2c.Bus, addr uint16) *MCP4725 {
	if addr == 0 {
		addr = DefaultMCP4725Address
	}
	return &MCP4725{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

// Write sets the output code with a fast-mode write. Codes above 4095 are
// clamped.
func (d *MCP4725) Write(code uint16) error {
	if code > 0x0FFF {
		code = 0x0FFF
	}
	// Fast mode: C2 C1 PD1 PD0 all zero, then the 12-bit code.
	if err := d.dev.Tx([]byte{byte(code>>8) & 0x0F, byte(code)}, nil); err != nil {
		return fmt.Errorf("mcp4725 write: %w", err)
	}
	return nil
}
