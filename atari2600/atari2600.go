// Package atari2600 is the main logic for pulling together an atari 2600 emulator.
// The actual chips are implemented in other packages and most the logic here is
// simply to pull together the memory mappings for them.
package atari2600

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/retrosilicon/vcs6502/cpu"
	"github.com/retrosilicon/vcs6502/io"
	"github.com/retrosilicon/vcs6502/memory"
	"github.com/retrosilicon/vcs6502/pia6532"
	"github.com/retrosilicon/vcs6502/tia"
)

// Joystick, Paddle, portA and portB (and their Input() mappings) live in
// inputs.go.

type VCS struct {
	portA     *portA
	portB     *portB
	cpuClock  int
	memory    *controller
	debug     bool
	frame     *image.NRGBA
	frameDone bool
}

type controller struct {
	cpu        *cpu.Chip
	pia        *pia6532.Chip
	tia        *tia.Chip
	cart       memory.Bank
	databusVal uint8
}

// VCSDef defines the pieces needed to setup a basic Atari 2600. Assuming up to 2 joysticks and 4 paddles.
// TODO: Add other controller types (wheel, keyboard, etc).
type VCSDef struct {
	Mode      tia.TIAMode
	Joysticks [2]*Joystick
	Paddles   [4]*Paddle
	// PaddleGround will be called whenever the paddle input ports (INPT0-3) get grounded.
	PaddleGround func()
	// The console switchs (except power).

	// Difficulty defines the 2 player difficulty switches.
	// False == Beginner, true == Advanced.
	Difficulty [2]io.PortIn1
	// ColorBW defines color or B/W mode.
	// True == color, false == B/W
	ColorBW io.PortIn1
	// GameSelect is used to progress through options.
	// True == pressed.
	GameSelect io.PortIn1
	// Reset is generally used to start a game.
	// True == pressed.
	Reset io.PortIn1
	// FrameDone is called on every VSYNC rising edge. See tia documentation for more details.
	FrameDone func(*image.NRGBA)

	// Rom is the data to load for this instance into the ROM space. Must be
	// exactly 2k (mirrored into the 4k window) or 4k.
	Rom []uint8

	// Debug if true wll emit output from Debug() calls to the PIA, TIA and CPU chips.
	Debug bool
}

// Init returns an initialized and powered on Atari 2600 emulator.
func Init(def *VCSDef) (*VCS, error) {
	if def.Difficulty[0] == nil || def.Difficulty[1] == nil {
		return nil, errors.New("both difficulty switches must be non-nil in def")
	}
	if def.ColorBW == nil {
		return nil, errors.New("ColorBW must be non-nil in def")
	}
	if def.GameSelect == nil {
		return nil, errors.New("GameSelect must be non-nil in def")
	}
	if def.Reset == nil {
		return nil, errors.New("Reset must be non-nil in def")
	}

	var ch [4]io.PortIn1
	var paddles bool
	for i, p := range def.Paddles {
		if p != nil {
			if p.Charged == nil || p.Button == nil {
				return nil, fmt.Errorf("paddle %d cannot be defined with a nil Charged or Button: %#v", i, p)
			}
			ch[i] = p.Charged
			paddles = true
		}
	}

	var b [2]io.PortIn1
	for i, j := range def.Joysticks {
		if j != nil {
			if paddles {
				return nil, errors.New("cannot have paddles and joysticks defined at the same time")
			}
			if j.Up == nil || j.Down == nil || j.Left == nil || j.Right == nil {
				return nil, fmt.Errorf("cannot pass in a Joystick for Joystick[%d] with nil members: %#v", i, j)
			}
			b[i] = j.Button
		}
	}

	// a is declared before the TIA so the FrameDone closure below can close over it;
	// RunFrame needs to know, from inside the TIA callback, when a frame completed.
	a := &VCS{debug: def.Debug}
	userFrameDone := def.FrameDone
	frameDone := func(img *image.NRGBA) {
		a.frame = img
		a.frameDone = true
		if userFrameDone != nil {
			userFrameDone(img)
		}
	}

	// Order is important since the chips depend on each other.
	tia, err := tia.Init(&tia.ChipDef{
		Mode:      def.Mode,
		Port0:     ch[0],
		Port1:     ch[1],
		Port2:     ch[2],
		Port3:     ch[3],
		Port4:     b[0],
		Port5:     b[1],
		IoPortGnd: def.PaddleGround,
		FrameDone: frameDone,
		Debug:     def.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("can't initialize TIA: %v", err)
	}
	a.portA = &portA{
		joysticks: def.Joysticks,
		paddles:   def.Paddles,
	}
	a.portB = &portB{
		difficulty: def.Difficulty,
		colorBW:    def.ColorBW,
		gameSelect: def.GameSelect,
		reset:      def.Reset,
	}
	a.memory = &controller{
		tia: tia,
	}

	cart, err := NewCart(def.Rom, a.memory)
	if err != nil {
		return nil, fmt.Errorf("can't load cart: %w", err)
	}
	a.memory.cart = cart

	pia, err := pia6532.Init(&pia6532.ChipDef{
		PortA: a.portA,
		PortB: a.portB,
		Debug: def.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("can't initialize PIA: %v", err)
	}

	a.memory.pia = pia

	// No IRQ in the VCS so those aren't setup.
	// Note there is some circular dependencies here as the CPU depends
	// on VCS for it's memory and the VCS needs to know about the CPU for
	// executing Tick() against it.
	c, err := cpu.Init(&cpu.ChipDef{
		Cpu:   cpu.CPU_NMOS,
		Ram:   a.memory,
		Rdy:   tia,
		Debug: def.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("can't initialize cpu: %v", err)
	}

	a.memory.cpu = c
	return a, nil
}

const (
	kADDRESS_MASK = uint16(0x1FFF)

	kROM_MASK = uint16(0x1000)

	kPIA_MASK    = uint16(0x0080)
	kPIA_IO_MASK = uint16(0x0280)

	kCpuClockSlowdown = 3
)

// Read implements the memory.Ram interface for Read.
// On the VCS this is the main logic for tying the various chips together.
func (c *controller) Read(addr uint16) uint8 {
	// We only have 13 address pins so mask for that.
	addr &= kADDRESS_MASK

	var val uint8
	switch {
	case (addr & kROM_MASK) == kROM_MASK:
		val = c.cart.Read(addr)
	case (addr & kPIA_MASK) == kPIA_MASK:
		if (addr & kPIA_IO_MASK) == kPIA_IO_MASK {
			val = c.pia.IO().Read(addr)
		} else {
			val = c.pia.Read(addr)
		}
	default:
		// Anything else is the TIA.
		val = c.tia.Read(addr)
	}
	c.databusVal = val
	return val
}

// Write implements the memory.Ram interface for Write.
// On the VCS this is the main logic for tying the various chips together.
func (c *controller) Write(addr uint16, val uint8) {
	// We only have 13 address pins so mask for that.
	addr &= kADDRESS_MASK
	c.databusVal = val

	switch {
	case (addr & kROM_MASK) == kROM_MASK:
		// ROM writes are dropped but still land on the cart's databus.
		c.cart.Write(addr, val)
	case (addr & kPIA_MASK) == kPIA_MASK:
		if (addr & kPIA_IO_MASK) == kPIA_IO_MASK {
			c.pia.IO().Write(addr, val)
		} else {
			c.pia.Write(addr, val)
		}
	default:
		// Anything else is the TIA.
		c.tia.Write(addr, val)
	}
}

// Parent implements the memory.Bank interface. The controller sits at the top of the
// chain (it's the address space the CPU itself sees), so it has no parent.
func (c *controller) Parent() memory.Bank {
	return nil
}

// DatabusVal returns the most recent value seen on the data bus.
func (c *controller) DatabusVal() uint8 {
	return c.databusVal
}

// PowerOn implements the memory.Ram interface for PowerOn.
func (c *controller) PowerOn() {}

// Tick implements basic running of the Atari by ticking all the components
// as needed. CPU/PIA run at 1/3 the rate of the TIA. Best to use the TIA FrameDone callback
// for synchronizing output to somewhere (file/UI/etc).
func (a *VCS) Tick() error {
	if err := a.memory.tia.Tick(); err != nil {
		return fmt.Errorf("TIA tick error: %v", err)
	}
	a.cpuClock = (a.cpuClock + 1) % kCpuClockSlowdown

	if a.cpuClock == 0 {
		// The PIA runs on the same clock as the CPU (1/3'd the speed of the TIA).
		if a.debug {
			if d := a.memory.pia.Debug(); d != "" {
				log.Printf("PIA: %s", d)
			}
			if d := a.memory.cpu.Debug(); d != "" {
				log.Printf("CPU: %s", d)
			}
		}
		if err := a.memory.pia.Tick(); err != nil {
			return fmt.Errorf("PIA tick error: %v", err)
		}
		if err := a.memory.cpu.Tick(); err != nil {
			return fmt.Errorf("CPU tick error: %v", err)
		}
		a.memory.pia.TickDone()
		a.memory.cpu.TickDone()
	}
	a.memory.tia.TickDone()
	return nil
}

// Reset resets the console: the CPU goes through its normal reset sequence (reloading PC
// from the reset vector) while the TIA and RIOT registers are zeroed outright. RAM content
// is untouched.
func (a *VCS) Reset() error {
	a.memory.tia.Reset()
	a.memory.pia.Reset()
	for {
		done, err := a.memory.cpu.Reset()
		if err != nil {
			return fmt.Errorf("CPU reset error: %v", err)
		}
		if done {
			break
		}
	}
	a.cpuClock = 0
	return nil
}

// RunFrame ticks the console until the TIA signals a VSYNC rising edge and returns the
// pixel buffer collected for the frame that just completed.
func (a *VCS) RunFrame() (*image.NRGBA, error) {
	a.frameDone = false
	for !a.frameDone {
		if err := a.Tick(); err != nil {
			return nil, err
		}
	}
	return a.frame, nil
}
