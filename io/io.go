// Package io defines the basic interfaces for working
// with a 6502 family based I/O port (generally bi-directional).
// It's intended that implementors of I/O (such as a 6532) call
// the input callback (if provided) on every clock tick and properly
// account for the fact that output won't mirror input for a clock
// cycle (to account for latches being loaded)
package io

// PortIn8 is the input half of an 8 bit I/O port (e.g. a PIA port A/B
// driven by external switches or a joystick port).
type PortIn8 interface {
	// Input will return the current value being set on the given input port.
	Input() uint8
}

// PortOut8 is the output half of an 8 bit I/O port, as read back from a
// chip's output latch.
type PortOut8 interface {
	// Output returns the current value being driven by the port's output latch.
	Output() uint8
}

// PortIn1 defines a single bit input port, such as a joystick direction,
// a console switch, or a paddle button.
type PortIn1 interface {
	// Input returns the current state of the pin, true meaning driven high.
	Input() bool
}

// PortOut1 defines a single bit output port, such as a TIA output latch used
// for INPT4/INPT5 when in latched mode.
type PortOut1 interface {
	// Output returns the current state of the output latch.
	Output() bool
}
