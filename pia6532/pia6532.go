// Package pia6532 implements the RIOT (RAM/IO/Timer) 6532 chip:
// 128 bytes of RAM, two 8 bit bidirectional ports with data direction
// registers, PA7 edge detection and the programmable interval timer.
// Register layout per the Rockwell R6532 datasheet:
// http://www.ionpool.net/arcade/gottlieb/technical/datasheets/R6532_datasheet.pdf
package pia6532

import (
	"errors"
	"fmt"

	"github.com/retrosilicon/vcs6502/io"
	"github.com/retrosilicon/vcs6502/memory"
)

var (
	_ = memory.Bank(&Chip{})
	_ = memory.Bank(&ioRegs{})
)

type edgeType int

// out holds the data for an 8 bit I/O port.
type out struct {
	data uint8
}

// Output implements the interface for io.PortOut8
func (o *out) Output() uint8 {
	return o.data
}

const (
	kEDGE_UNIMPLEMENTED edgeType = iota // Start of valid edge detect enumerations.
	kEDGE_POSITIVE                      // Positive edge detection
	kEDGE_NEGATIVE                      // Negative edge detection
	kEDGE_MAX                           // End of edge enumerations.
)

// Register offsets once A2 (RAM select) has been decoded away. Only 5
// address pins reach the register file so there's heavy aliasing; the
// canonical names below follow the datasheet, aliases are listed per
// case in read()/write().
const (
	kREAD_DRA       = uint16(0x0000) // Port A data (ORA in the datasheet, SWCHA on a 2600).
	kREAD_DDRA      = uint16(0x0001)
	kREAD_DRB       = uint16(0x0002) // Port B data (SWCHB on a 2600).
	kREAD_DDRB      = uint16(0x0003)
	kREAD_INTIM     = uint16(0x0004) // Timer counter, reading disables the timer interrupt.
	kREAD_TIMINT    = uint16(0x0005) // Interrupt flags: D7 timer, D6 PA7 edge.
	kREAD_INTIM_IRQ = uint16(0x000C) // Timer counter, reading re-enables the timer interrupt.

	kWRITE_DRA          = uint16(0x0000)
	kWRITE_DDRA         = uint16(0x0001)
	kWRITE_DRB          = uint16(0x0002)
	kWRITE_DDRB         = uint16(0x0003)
	kWRITE_EDGE_NEG     = uint16(0x0004) // PA7 negative edge detect, no interrupt.
	kWRITE_EDGE_POS     = uint16(0x0005) // PA7 positive edge detect, no interrupt.
	kWRITE_EDGE_NEG_IRQ = uint16(0x0006)
	kWRITE_EDGE_POS_IRQ = uint16(0x0007)
	kWRITE_TIM1T        = uint16(0x0014) // Load timer, divide by 1.
	kWRITE_TIM8T        = uint16(0x0015) // Load timer, divide by 8.
	kWRITE_TIM64T       = uint16(0x0016) // Load timer, divide by 64.
	kWRITE_T1024T       = uint16(0x0017) // Load timer, divide by 1024.
	kWRITE_TIM1T_IRQ    = uint16(0x001C)
	kWRITE_TIM8T_IRQ    = uint16(0x001D)
	kWRITE_TIM64T_IRQ   = uint16(0x001E)
	kWRITE_T1024T_IRQ   = uint16(0x001F)

	kMASK_TIMER_IRQ = uint8(0x80) // D7 of TIMINT.
	kMASK_EDGE_IRQ  = uint8(0x40) // D6 of TIMINT.
	kMASK_NONE      = uint8(0x00)

	kMASK_RAM     = uint16(0x7F)
	kMASK_RW      = uint16(0x1F)
	kMASK_IRQ_BIT = uint16(0x08) // A3 selects interrupt enable on timer writes/reads.
	kMASK_DIVIDER = uint16(0x07)

	kDIVIDE_1    = uint16(0x0001)
	kDIVIDE_8    = uint16(0x0008)
	kDIVIDE_64   = uint16(0x0040)
	kDIVIDE_1024 = uint16(0x0400)

	kPA7 = uint8(0x80)
)

// ioRegs exposes the register portion of the chip through a memory.Bank
// interface, distinct from the RAM portion (selected by the RS pin on
// real hardware).
type ioRegs struct {
	p          *Chip
	databusVal uint8
}

// Chip implements all modes needed for a 6532: internal RAM, the two I/O
// ports and the interval timer with its interrupt flags.
type Chip struct {
	clocks   int  // Total number of clock cycles since start.
	debug    bool // If true Debug() emits output.
	tickDone bool // True if TickDone() was called before the current Tick() call
	regs     *ioRegs

	portAOutput       *out       // The output latch of port A.
	shadowPortAOutput uint8      // Shadow for portAOutput, loaded on TickDone().
	portBOutput       *out       // The output latch of port B.
	shadowPortBOutput uint8      // Shadow for portBOutput, loaded on TickDone().
	portAInput        io.PortIn8 // External driver of port A pins (joysticks on a 2600).
	portBInput        io.PortIn8 // External driver of port B pins (console switches on a 2600).
	holdPortA         uint8      // Most recent PA7 sample used for edge detection.
	ddrA              uint8      // Port A data direction register.
	shadowDdrA        uint8
	ddrB              uint8 // Port B data direction register.
	shadowDdrB        uint8

	ram memory.Bank // The 128 byte RAM.

	timer          uint8  // Current INTIM counter value.
	shadowTimer    uint8  // Pending INTIM value from a timer write.
	wroteTimer     bool   // A timer write is pending for TickDone().
	divider        uint16 // Divider selected by the last timer write (1/8/64/1024).
	shadowDivider  uint16
	prescale       uint16 // Cycles left until the next INTIM decrement.
	shadowPrescale uint16
	expired        bool // Timer has underflowed and now decrements every cycle.

	timerIrq        bool // Timer underflow raises the interrupt flag.
	shadowTimerIrq  bool
	wroteIrq        bool  // Interrupt enable/flag state is pending for TickDone().
	flags           uint8 // Current TIMINT value. D7 timer, D6 edge.
	shadowFlags     uint8
	edgeIrq         bool // PA7 edge detection raises the interrupt flag.
	shadowEdgeIrq   bool
	edgeStyle       edgeType // Which PA7 transition to detect.
	shadowEdgeStyle edgeType

	parent     memory.Bank // If non-nil the containing memory.Bank.
	databusVal uint8       // The most recent val seen cross the databus (read or write).
}

type ChipDef struct {
	// PortA is the I/O port for port A.
	PortA io.PortIn8

	// PortB is the I/O port for port B.
	PortB io.PortIn8

	// Debug if true wll emit output from Debug() calls
	Debug bool

	// Parent if non-nil defines a containing memory.Bank this chip is contained within.
	Parent memory.Bank
}

// Init returns a fully initialized 6532.
func Init(d *ChipDef) (*Chip, error) {
	p := &Chip{
		portAOutput: &out{},
		portBOutput: &out{},
		portAInput:  d.PortA,
		portBInput:  d.PortB,
		tickDone:    true,
		debug:       d.Debug,
		parent:      d.Parent,
	}
	var err error
	if p.ram, err = memory.New8BitRAMBank(0x80, p); err != nil {
		return nil, fmt.Errorf("can't initialize RAM: %v", err)
	}
	p.regs = &ioRegs{p, 0}
	p.PowerOn()
	return p, nil
}

// PowerOn implements the memory interface for ram.
// It performs a full power-on/reset for the 6532.
func (p *Chip) PowerOn() {
	// Allowed to initialize the RAM since we own it directly.
	p.ram.PowerOn()
	p.Reset()
}

// Reset implements the memory interface for ram.
// It does a soft reset on the 6532 based on holding RES low on the chip.
// All registers zero; the timer comes up in divide-by-1024 mode, which
// real hardware does and some programs rely on to watch for a zero
// crossing without programming the chip first.
func (p *Chip) Reset() {
	p.tickDone = true
	p.portAOutput.data = 0x00
	p.shadowPortAOutput = 0x00
	p.holdPortA = 0x00
	p.ddrA = 0x00
	p.shadowDdrA = 0x00
	p.portBOutput.data = 0x00
	p.shadowPortBOutput = 0x00
	p.ddrB = 0x00
	p.shadowDdrB = 0x00
	p.timer = 0x00
	p.wroteTimer = false
	p.shadowTimer = 0x00
	p.divider = kDIVIDE_1024
	p.shadowDivider = kDIVIDE_1024
	p.prescale = kDIVIDE_1024
	p.shadowPrescale = kDIVIDE_1024
	p.expired = false
	p.timerIrq = false
	p.shadowTimerIrq = false
	p.wroteIrq = false
	p.flags = 0x00
	p.shadowFlags = 0x00
	p.edgeIrq = false
	p.shadowEdgeIrq = false
	p.edgeStyle = kEDGE_NEGATIVE
	p.shadowEdgeStyle = kEDGE_NEGATIVE
}

// PortA returns an io.PortOut8 for getting the current output pins of Port A.
func (p *Chip) PortA() io.PortOut8 {
	return p.portAOutput
}

// PortB returns an io.PortOut8 for getting the current output pins of Port B.
func (p *Chip) PortB() io.PortOut8 {
	return p.portBOutput
}

// IO returns a memory.Bank which interfaces to the register portion of the chip.
func (p *Chip) IO() memory.Bank {
	return p.regs
}

// Read implements the interface for memory.Bank and gives access to the RAM
// portion of the chip. Use IO() to get an interface to the register section.
func (p *Chip) Read(addr uint16) uint8 {
	val := p.read(addr, true)
	p.databusVal = val
	return val
}

// Write implements the interface for memory.Bank and gives access to the RAM
// portion of the chip. Use IO() to get an interface to the register section.
func (p *Chip) Write(addr uint16, val uint8) {
	p.databusVal = val
	p.write(addr, true, val)
}

// Parent implements the interface for returning a possible parent memory.Bank.
func (p *Chip) Parent() memory.Bank {
	return p.parent
}

// DatabusVal returns the most recent seen databus item.
func (p *Chip) DatabusVal() uint8 {
	return p.databusVal
}

// Read implements the interface for memory.Bank for the register section.
func (i *ioRegs) Read(addr uint16) uint8 {
	val := i.p.read(addr, false)
	i.databusVal = val
	return val
}

// Write implements the interface for memory.Bank for the register section.
func (i *ioRegs) Write(addr uint16, val uint8) {
	i.databusVal = val
	i.p.write(addr, false, val)
}

func (i *ioRegs) PowerOn() {}

// Parent implements the interface for returning a possible parent memory.Bank.
func (i *ioRegs) Parent() memory.Bank {
	return i.p
}

// DatabusVal returns the most recent seen databus item.
func (i *ioRegs) DatabusVal() uint8 {
	return i.databusVal
}

// read returns memory at the given address which is either the RAM (if ram is true) or
// internal registers. For RAM the address is masked to 7 bits and internal addresses
// are masked to 5 bits.
// NOTE: This isn't tied to the clock so it's possible to read/write more than one
//       item per cycle. Integration is expected to coordinate clocks as needed to control this
//       since it's assumed real reads are happening on clocked CPU Tick()'s.
func (p *Chip) read(addr uint16, ram bool) uint8 {
	if ram {
		// Assumption is memory interface impl correctly deals with any aliasing.
		return p.ram.Read(addr)
	}
	// Strip to 5 bits for internal regs.
	addr &= kMASK_RW
	var ret, readA, readB uint8

	// For port A (which has no pullups) input reads show the input pins as masked by DDR but then
	// AND's the other pins (so grounding a pin set to output 1 will result in a 0).
	if p.portAInput != nil {
		readA = (p.portAOutput.data | ^p.ddrA) & p.portAInput.Input()
	}
	// For port B OR in any set output pins (but only those). This works due to the internal
	// pullups not resulting in a classic open collector AND like port A gets.
	if p.portBInput != nil {
		readB = (p.portBOutput.data | ^p.ddrB) & (p.portBInput.Input() | p.ddrB)
	}

	// There's a lot of aliasing due to don't care bits.
	switch addr {
	case kREAD_DRA, 0x08, 0x10, 0x18:
		ret = readA
	case kREAD_DDRA, 0x09, 0x11, 0x19:
		ret = p.ddrA
	case kREAD_DRB, 0x0A, 0x12, 0x1A:
		ret = readB
	case kREAD_DDRB, 0x0B, 0x13, 0x1B:
		ret = p.ddrB
	case kREAD_INTIM, 0x06, 0x14, 0x16:
		// Reading INTIM acknowledges and disables the timer interrupt.
		ret = p.timer
		p.shadowTimerIrq = false
		p.shadowFlags = (p.flags &^ kMASK_TIMER_IRQ)
		p.wroteIrq = true
	case kREAD_TIMINT, 0x07, 0x0D, 0x0F, 0x15, 0x17, 0x1D, 0x1F:
		// Reading the flags clears the edge flag but leaves the timer flag.
		ret = p.flags
		p.shadowEdgeIrq = false
		p.shadowFlags = (p.flags &^ kMASK_EDGE_IRQ)
		p.wroteIrq = true
	case kREAD_INTIM_IRQ, 0x0E, 0x1C, 0x1E:
		ret = p.timer
		p.shadowTimerIrq = true
		p.shadowFlags = p.flags
		p.wroteIrq = true
	}
	return ret
}

// write stores the value at the given address which is either the RAM (if ram is true) or
// internal registers. For RAM the address is masked to 7 bits and internal addresses
// are masked to 5 bits.
// NOTE: This isn't tied to the clock so it's possible to read/write more than one
//       item per cycle. Integration is expected to coordinate clocks as needed to control this
//       since it's assumed real writes are happening on clocked CPU Tick()'s.
func (p *Chip) write(addr uint16, ram bool, val uint8) {
	if ram {
		// Assumption is memory interface impl correctly deals with any aliasing.
		p.ram.Write(addr, val)
		return
	}
	// Strip to 5 bits for internal regs
	addr &= kMASK_RW

	// There's a lot of aliasing due to don't care bits.
	switch addr {
	case kWRITE_DRA, 0x08, 0x10, 0x18:
		// Mask for output pins only as set by DDR.
		// Any bits set as input are held to 1's on reads.
		p.shadowPortAOutput = (val & p.ddrA) | ^p.ddrA
	case kWRITE_DDRA, 0x09, 0x11, 0x19:
		p.shadowDdrA = val
	case kWRITE_DRB, 0x0A, 0x12, 0x1A:
		p.shadowPortBOutput = (val & p.ddrB) | ^p.ddrB
	case kWRITE_DDRB, 0x0B, 0x13, 0x1B:
		p.shadowDdrB = val
	case kWRITE_EDGE_NEG, 0x0C:
		p.shadowEdgeStyle = kEDGE_NEGATIVE
		p.shadowEdgeIrq = false
	case kWRITE_EDGE_POS, 0x0D:
		p.shadowEdgeStyle = kEDGE_POSITIVE
		p.shadowEdgeIrq = false
	case kWRITE_EDGE_NEG_IRQ, 0x0E:
		p.shadowEdgeStyle = kEDGE_NEGATIVE
		p.shadowEdgeIrq = true
	case kWRITE_EDGE_POS_IRQ, 0x0F:
		p.shadowEdgeStyle = kEDGE_POSITIVE
		p.shadowEdgeIrq = true
	case kWRITE_TIM1T, kWRITE_TIM8T, kWRITE_TIM64T, kWRITE_T1024T, kWRITE_TIM1T_IRQ, kWRITE_TIM8T_IRQ, kWRITE_TIM64T_IRQ, kWRITE_T1024T_IRQ:
		// All of these load the timer; A0/A1 select the divider and A3
		// whether underflow raises the interrupt flag. Loading always
		// acknowledges a pending timer interrupt.
		p.wroteTimer = true
		p.wroteIrq = true
		p.shadowTimer = val
		p.shadowTimerIrq = false
		p.shadowFlags = (p.flags &^ kMASK_TIMER_IRQ)
		if (addr & kMASK_IRQ_BIT) == kMASK_IRQ_BIT {
			p.shadowTimerIrq = true
		}
		switch addr & kMASK_DIVIDER {
		case kWRITE_TIM1T & kMASK_DIVIDER:
			p.shadowDivider = kDIVIDE_1
		case kWRITE_TIM8T & kMASK_DIVIDER:
			p.shadowDivider = kDIVIDE_8
		case kWRITE_TIM64T & kMASK_DIVIDER:
			p.shadowDivider = kDIVIDE_64
		case kWRITE_T1024T & kMASK_DIVIDER:
			p.shadowDivider = kDIVIDE_1024
		}
		p.shadowPrescale = p.shadowDivider
		if val == 0x00 {
			// A zero load underflows on the very next cycle no matter the divider.
			p.shadowPrescale = 1
		}
	}
}

// Raised implements the irq.Sender interface for determining interrupt state when called.
// An implementation tying this to a receiver can tie this together.
func (p *Chip) Raised() bool {
	return (p.flags & (kMASK_TIMER_IRQ | kMASK_EDGE_IRQ)) != 0x00
}

func (p *Chip) edgeDetect(newA uint8, oldA uint8) error {
	// If we're detecting edge changes on PA7 possibly setup interrupts for that.
	switch p.edgeStyle {
	case kEDGE_POSITIVE:
		if p.edgeIrq && (newA&kPA7) != 0x00 && (oldA&kPA7) == 0x00 {
			p.flags |= kMASK_EDGE_IRQ
		}
	case kEDGE_NEGATIVE:
		if p.edgeIrq && (newA&kPA7) == 0x00 && (oldA&kPA7) != 0x00 {
			p.flags |= kMASK_EDGE_IRQ
		}
	default:
		return fmt.Errorf("impossible edge state: %d", p.edgeStyle)
	}
	return nil
}

// Tick does a single clock cycle on the chip which samples PA7 for edge
// detection. The timer itself runs in TickDone() so that all reads during
// a given cycle observe a consistent counter value.
func (p *Chip) Tick() error {
	p.clocks++
	if !p.tickDone {
		return errors.New("called Tick() without calling TickDone() at end of last cycle")
	}
	p.tickDone = false

	var newA uint8
	// We always trigger on an edge transition here.
	if p.portAInput != nil {
		// Mask for input pins.
		newA = p.portAInput.Input() & (^p.ddrA)
	}

	if err := p.edgeDetect(newA, p.holdPortA); err != nil {
		return err
	}

	// Move new values into hold for next edge eval.
	p.holdPortA = newA

	return nil
}

// TickDone is to be called after all chips have run a given Tick() cycle in order to do post
// processing that's normally controlled by a clock interlocking all the chips. i.e. setups for
// latch loads that take effect on the start of the next cycle. i.e. this could have been
// implemented as PreTick in the same way. Including this in Tick() requires a specific
// ordering between chips in order to present a consistent view otherwise.
func (p *Chip) TickDone() {
	// Deal with port A edge detection against the output latch.
	old := p.portAOutput.data
	p.portAOutput.data = p.shadowPortAOutput
	// This can only change the edge bit so the flag reset below doesn't lose it.
	p.edgeDetect(p.shadowPortAOutput, old)

	// Port B data
	p.portBOutput.data = p.shadowPortBOutput

	// Port A/B DDR
	p.ddrA = p.shadowDdrA
	p.ddrB = p.shadowDdrB

	// Edge detect style/enable.
	p.edgeStyle = p.shadowEdgeStyle
	p.edgeIrq = p.shadowEdgeIrq

	// Run the timer. Until underflow INTIM decrements once per divider
	// interval, except the interval after it reaches zero is always a
	// single cycle (this is where the underflow into free-run happens).
	// After underflow it decrements every cycle and keeps wrapping.
	if !p.expired {
		p.prescale--
		if p.prescale == 0x0000 {
			p.timer--
			switch p.timer {
			case 0xFF:
				p.expired = true
				if p.timerIrq {
					p.flags |= kMASK_TIMER_IRQ
				}
			case 0x00:
				p.prescale = 1
			default:
				p.prescale = p.divider
			}
		}
	} else {
		p.timer--
		if p.timerIrq {
			p.flags |= kMASK_TIMER_IRQ
		}
	}

	// Deal with timer loads. Doing this after the countdown above means the
	// load cycle itself never decrements the freshly written value.
	if p.wroteTimer {
		p.timer = p.shadowTimer
		p.divider = p.shadowDivider
		p.prescale = p.shadowPrescale
		p.wroteTimer = false
		p.expired = false
	}

	// Now deal with interrupt state. This means a timer ticking 00->FF on the same cycle it gets a reset never emits
	// an interrupt.
	if p.wroteIrq {
		p.timerIrq = p.shadowTimerIrq
		p.flags = p.shadowFlags
		p.wroteIrq = false
	}

	p.tickDone = true
}

func (p *Chip) Debug() string {
	if p.debug {
		return fmt.Sprintf("%.6d timer: %.2X divider: %.4X prescale: %.4X expired: %t\n", p.clocks, p.timer, p.divider, p.prescale, p.expired)
	}
	return ""
}
