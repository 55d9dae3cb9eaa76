// Package tia implements the TIA chip used in an atari 2600 for display/sound.
package tia

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/retrosilicon/vcs6502/io"
)

// TIAMode selects the video timing/color-decode standard the chip runs.
type TIAMode int

const (
	TIA_MODE_UNIMPLEMENTED TIAMode = iota // Start of valid mode enumerations.
	TIA_MODE_NTSC
	TIA_MODE_PAL
	TIA_MODE_SECAM
	TIA_MODE_MAX // End of mode enumerations.
)

const (
	kColorClocks   = 228 // Color clocks per scanline.
	kHblankClocks  = 68  // Color clocks of horizontal blanking before the visible area starts.
	kHmoveExtra    = 8   // Extra color clocks of blanking an HMOVE strobe adds to its scanline.
	kVisibleClocks = kColorClocks - kHblankClocks

	// NTSCWidth/NTSCHeight etc are the dimensions of the frame buffer delivered via FrameDone.
	// Only the visible portion of each scanline (not HBLANK) is captured; height is a
	// fixed row count per mode, and non-VBLANK scanlines beyond it are not captured.
	NTSCWidth   = kVisibleClocks
	NTSCHeight  = 192
	PALWidth    = kVisibleClocks
	PALHeight   = 228
	SECAMWidth  = kVisibleClocks
	SECAMHeight = 228
)

const (
	kCXM0P  = iota // Collision bits for M0 and P0/P1 stored in bits 6/7.
	kCXM1P         // Collision bits for M1 and P0/P1 stored in bits 6/7.
	kCXP0FB        // Collision bits for P0/PF and P0/BL stored in bits 6/7.
	kCXP1FB        // Collision bits for P1/PF and P1/BL stored in bits 6/7.
	kCXM0FB        // Collision bits for M0/PF and M0/BL stored in bits 6/7.
	kCXM1FB        // Collision bits for M1/PF and M1/BL stored in bits 6/7.
	kCXBLPF        // Collision bit for BL/PF stored in bit 7.
	kCXPPMM        // Collision bits for P0/P1 and M0/M1 stored in bits 6/7.
)

const (
	kMASK_READ = uint8(0xC0) // Only D7/6 defined on the bus for reads.

	kMASK_VSYNC = uint8(0x02) // Trigger bit for VSYNC (others ignored).

	kMASK_VBL_VBLANK      = uint8(0x02)
	kMASK_VBL_I45_LATCHES = uint8(0x40)
	kMASK_VBL_I0I3_GROUND = uint8(0x80)

	kMASK_CTRLPF_REF      = uint8(0x01)
	kMASK_CTRLPF_SCORE    = uint8(0x02)
	kMASK_CTRLPF_PRIORITY = uint8(0x04)
	kMASK_CTRLPF_BALLSIZE = uint8(0x30)

	kMASK_ENABLE  = uint8(0x02) // D1 on ENAM0/ENAM1/ENABL.
	kMASK_REFLECT = uint8(0x08) // D3 on REFP0/REFP1.
	kMASK_VDEL    = uint8(0x01) // D0 on VDELP0/VDELP1/VDELBL.
)

// Write register offsets (masked to 6 bits).
const (
	wVSYNC  = 0x00
	wVBLANK = 0x01
	wWSYNC  = 0x02
	wRSYNC  = 0x03
	wNUSIZ0 = 0x04
	wNUSIZ1 = 0x05
	wCOLUP0 = 0x06
	wCOLUP1 = 0x07
	wCOLUPF = 0x08
	wCOLUBK = 0x09
	wCTRLPF = 0x0A
	wREFP0  = 0x0B
	wREFP1  = 0x0C
	wPF0    = 0x0D
	wPF1    = 0x0E
	wPF2    = 0x0F
	wRESP0  = 0x10
	wRESP1  = 0x11
	wRESM0  = 0x12
	wRESM1  = 0x13
	wRESBL  = 0x14
	wAUDC0  = 0x15
	wAUDC1  = 0x16
	wAUDF0  = 0x17
	wAUDF1  = 0x18
	wAUDV0  = 0x19
	wAUDV1  = 0x1A
	wGRP0   = 0x1B
	wGRP1   = 0x1C
	wENAM0  = 0x1D
	wENAM1  = 0x1E
	wENABL  = 0x1F
	wHMP0   = 0x20
	wHMP1   = 0x21
	wHMM0   = 0x22
	wHMM1   = 0x23
	wHMBL   = 0x24
	wVDELP0 = 0x25
	wVDELP1 = 0x26
	wVDELBL = 0x27
	wRESMP0 = 0x28
	wRESMP1 = 0x29
	wHMOVE  = 0x2A
	wHMCLR  = 0x2B
	wCXCLR  = 0x2C
)

// out holds the data for a 1 bit I/O port.
type out struct {
	data bool
}

// Output implements the interface for io.PortOut1
func (o *out) Output() bool {
	return o.data
}

// ChipDef defines the pieces needed to set up a TIA.
type ChipDef struct {
	// Mode selects NTSC/PAL/SECAM timing and color decode.
	Mode TIAMode
	// Port0-Port3 are the 1 bit paddle inputs (INPT0-3).
	Port0, Port1, Port2, Port3 io.PortIn1
	// Port4/Port5 are the 1 bit joystick trigger inputs (INPT4/5).
	Port4, Port5 io.PortIn1
	// IoPortGnd is called whenever the paddle input ports (INPT0-3) transition to grounded
	// via VBLANK D7. Atari2600 paddle wiring uses this to discharge the paddle RC circuit.
	IoPortGnd func()
	// FrameDone is called with the completed frame buffer on every VSYNC rising edge.
	FrameDone func(*image.NRGBA)
	// Debug if true will emit output from Debug() calls.
	Debug bool
}

// Chip implements all modes needed for a TIA including the video pixel pipeline.
// Sound (AUDC/AUDF/AUDV) registers are accepted and stored but no audio is synthesized;
// generating actual waveform output is out of scope for this chip.
type Chip struct {
	mode          TIAMode
	width, height int
	clocks        int64 // Total number of Tick() calls since start, for Debug().
	debug         bool

	collision     [8]uint8      // Collision bits (see constants above).
	inputPorts    [6]io.PortIn1 // If non-nil defines the input port for the given paddle/joystick.
	outputLatches [2]bool       // The output latches (if used) for ports 4/5.
	groundCB      func()
	frameDoneCB   func(*image.NRGBA)

	rdy         bool // If true then RDY out (tied to cpu RDY) is signaled high via Raised().
	vsync       bool // If true in VSYNC mode.
	vblank      bool // If true in VBLANK mode.
	latches     bool // If true then I4/I5 in latch mode.
	groundInput bool // If true then I0-I3 are grounded and always return 0.

	hPos        int // Current color clock within the scanline, 0-227.
	row         int // Current output row in frame.
	hmoveExtend bool
	frame       *image.NRGBA

	pf0, pf1, pf2 uint8
	ctrlpf        uint8

	grp0, grp0Delayed uint8
	grp1, grp1Delayed uint8
	enablNew, enablDelayed bool
	enam0, enam1           bool
	refp0, refp1           bool
	vdelp0, vdelp1, vdelbl bool

	nusiz0, nusiz1 uint8

	colup0, colup1, colupf, colubk uint8

	hmp0, hmp1, hmm0, hmm1, hmbl uint8

	posP0, posP1, posM0, posM1, posBL int
	resmp0, resmp1                    bool

	// HMOVE comb state: how many of the 8 motion clocks remain for the
	// scanline and each object's outstanding motion steps (signed).
	hmoveClocks                                 int
	hmoveP0, hmoveP1, hmoveM0, hmoveM1, hmoveBL int

	audc0, audc1, audf0, audf1, audv0, audv1 uint8
}

// Init returns a full initialized TIA.
func Init(def *ChipDef) (*Chip, error) {
	if def.Mode <= TIA_MODE_UNIMPLEMENTED || def.Mode >= TIA_MODE_MAX {
		return nil, fmt.Errorf("invalid TIA mode: %d", def.Mode)
	}
	t := &Chip{
		mode:        def.Mode,
		inputPorts:  [6]io.PortIn1{def.Port0, def.Port1, def.Port2, def.Port3, def.Port4, def.Port5},
		groundCB:    def.IoPortGnd,
		frameDoneCB: def.FrameDone,
		debug:       def.Debug,
	}
	switch def.Mode {
	case TIA_MODE_NTSC:
		t.width, t.height = NTSCWidth, NTSCHeight
	case TIA_MODE_PAL:
		t.width, t.height = PALWidth, PALHeight
	case TIA_MODE_SECAM:
		t.width, t.height = SECAMWidth, SECAMHeight
	}
	t.PowerOn()
	return t, nil
}

// PowerOn performs a full power-on/reset for the TIA.
func (t *Chip) PowerOn() {
	t.Reset()
	t.frame = image.NewNRGBA(image.Rect(0, 0, t.width, t.height))
}

// Reset zeros all TIA registers and playfield/sprite state without reallocating the
// in-progress frame buffer.
func (t *Chip) Reset() {
	t.collision = [8]uint8{}
	t.outputLatches = [2]bool{}
	t.rdy = false
	t.vsync = false
	t.vblank = false
	t.latches = false
	t.groundInput = false
	t.hPos = 0
	t.row = 0
	t.hmoveExtend = false
	t.pf0, t.pf1, t.pf2, t.ctrlpf = 0, 0, 0, 0
	t.grp0, t.grp0Delayed = 0, 0
	t.grp1, t.grp1Delayed = 0, 0
	t.enablNew, t.enablDelayed = false, false
	t.enam0, t.enam1 = false, false
	t.refp0, t.refp1 = false, false
	t.vdelp0, t.vdelp1, t.vdelbl = false, false, false
	t.nusiz0, t.nusiz1 = 0, 0
	t.colup0, t.colup1, t.colupf, t.colubk = 0, 0, 0, 0
	t.hmp0, t.hmp1, t.hmm0, t.hmm1, t.hmbl = 0, 0, 0, 0, 0
	t.posP0, t.posP1, t.posM0, t.posM1, t.posBL = 0, 0, 0, 0, 0
	t.resmp0, t.resmp1 = false, false
	t.hmoveClocks = 0
	t.hmoveP0, t.hmoveP1, t.hmoveM0, t.hmoveM1, t.hmoveBL = 0, 0, 0, 0, 0
	t.audc0, t.audc1, t.audf0, t.audf1, t.audv0, t.audv1 = 0, 0, 0, 0, 0, 0
}

// NOTE: a lot of details for below come from
//
// http://problemkaputt.de/2k6specs.htm
//
// and the Stella PDF:
//
// https://atarihq.com/danb/files/stella.pdf

// Raised implements the irq.Sender interface for determining RDY (effectivly an interrupt)
// state when called. An implementation tying this to a receiver can tie this together.
func (t *Chip) Raised() bool {
	return t.rdy
}

// Read returns memory at the given address. The address is masked to 4 bits internally
// (so aliasing across the 6 address pins).
// NOTE: This isn't tied to the clock so it's possible to read/write more than one
//       item per cycle. Integration is expected to coordinate clocks as needed to control this
//       since it's assumed real reads are happening on clocked CPU Tick()'s.
func (t *Chip) Read(addr uint16) uint8 {
	// Strip to 4 bits for internal regs.
	addr &= 0x0F
	var ret uint8
	switch addr {
	case 0x00:
		ret = t.collision[kCXM0P]
	case 0x01:
		ret = t.collision[kCXM1P]
	case 0x02:
		ret = t.collision[kCXP0FB]
	case 0x03:
		ret = t.collision[kCXP1FB]
	case 0x04:
		ret = t.collision[kCXM0FB]
	case 0x05:
		ret = t.collision[kCXM1FB]
	case 0x06:
		ret = t.collision[kCXBLPF]
	case 0x07:
		ret = t.collision[kCXPPMM]
	case 0x08, 0x09, 0x0A, 0x0B:
		idx := int(addr) - 0x08
		if !t.groundInput && t.inputPorts[idx] != nil && t.inputPorts[idx].Input() {
			ret = 0x80
		}
	case 0x0C, 0x0D:
		idx := int(addr) - 0x0C
		if t.latches {
			if t.outputLatches[idx] {
				ret = 0x80
				break
			}
		}
		if t.inputPorts[idx+4] != nil && t.inputPorts[idx+4].Input() {
			ret = 0x80
		}
	default:
		// Couldn't find a definitive answer what happens on
		// undefined addresses so pull them all high.
		ret = 0xFF
	}
	// Apply read mask before returning.
	return ret & kMASK_READ
}

// Write stores the value at the given address. The address is masked to 6 bits.
// NOTE: This isn't tied to the clock so it's possible to read/write more than one
//       item per cycle. Integration is expected to coordinate clocks as needed to control this
//       since it's assumed real writes are happening on clocked CPU Tick()'s.
func (t *Chip) Write(addr uint16, val uint8) {
	// Strip to 6 bits for internal regs
	addr &= 0x3F

	switch addr {
	case wVSYNC:
		newVsync := (val & kMASK_VSYNC) != 0x00
		if newVsync && !t.vsync {
			// Rising edge: deliver the frame we've been accumulating and start a new one.
			if t.frameDoneCB != nil {
				t.frameDoneCB(t.frame)
			}
			t.frame = image.NewNRGBA(image.Rect(0, 0, t.width, t.height))
			t.row = 0
		}
		t.vsync = newVsync
	case wVBLANK:
		t.vblank = (val & kMASK_VBL_VBLANK) != 0x00
		l := (val & kMASK_VBL_I45_LATCHES) != 0x00
		// If we're setting t.latches they go high.
		if l && !t.latches {
			t.outputLatches[0] = true
			t.outputLatches[1] = true
		}
		t.latches = l
		ground := (val & kMASK_VBL_I0I3_GROUND) != 0x00
		if ground && !t.groundInput && t.groundCB != nil {
			t.groundCB()
		}
		t.groundInput = ground
	case wWSYNC:
		t.rdy = true
	case wRSYNC:
		// Used only for diagnostics on real hardware; resets the horizontal counter.
		t.hPos = 0
	case wNUSIZ0:
		t.nusiz0 = val
	case wNUSIZ1:
		t.nusiz1 = val
	case wCOLUP0:
		t.colup0 = val
	case wCOLUP1:
		t.colup1 = val
	case wCOLUPF:
		t.colupf = val
	case wCOLUBK:
		t.colubk = val
	case wCTRLPF:
		t.ctrlpf = val
	case wREFP0:
		t.refp0 = (val & kMASK_REFLECT) != 0x00
	case wREFP1:
		t.refp1 = (val & kMASK_REFLECT) != 0x00
	case wPF0:
		t.pf0 = val
	case wPF1:
		t.pf1 = val
	case wPF2:
		t.pf2 = val
	case wRESP0:
		t.posP0 = t.strobePos()
	case wRESP1:
		t.posP1 = t.strobePos()
	case wRESM0:
		t.posM0 = t.strobePos()
	case wRESM1:
		t.posM1 = t.strobePos()
	case wRESBL:
		t.posBL = t.strobePos()
	case wAUDC0:
		t.audc0 = val
	case wAUDC1:
		t.audc1 = val
	case wAUDF0:
		t.audf0 = val
	case wAUDF1:
		t.audf1 = val
	case wAUDV0:
		t.audv0 = val
	case wAUDV1:
		t.audv1 = val
	case wGRP0:
		// Writing either GRP latches the other player's delayed (VDEL) copy.
		// This cross coupling is how VDELPx actually works on real hardware.
		t.grp0 = val
		t.grp1Delayed = t.grp1
	case wGRP1:
		// GRP1 writes also latch ENABL's delayed copy (VDELBL rides the same
		// clock as VDELP0 in the TIA).
		t.grp1 = val
		t.grp0Delayed = t.grp0
		t.enablDelayed = t.enablNew
	case wENAM0:
		t.enam0 = (val & kMASK_ENABLE) != 0x00
	case wENAM1:
		t.enam1 = (val & kMASK_ENABLE) != 0x00
	case wENABL:
		t.enablNew = (val & kMASK_ENABLE) != 0x00
	case wHMP0:
		t.hmp0 = val
	case wHMP1:
		t.hmp1 = val
	case wHMM0:
		t.hmm0 = val
	case wHMM1:
		t.hmm1 = val
	case wHMBL:
		t.hmbl = val
	case wVDELP0:
		t.vdelp0 = (val & kMASK_VDEL) != 0x00
	case wVDELP1:
		t.vdelp1 = (val & kMASK_VDEL) != 0x00
	case wVDELBL:
		t.vdelbl = (val & kMASK_VDEL) != 0x00
	case wRESMP0:
		t.resmp0 = (val & 0x02) != 0x00
	case wRESMP1:
		t.resmp1 = (val & 0x02) != 0x00
	case wHMOVE:
		// Latch each object's motion into the comb. One motion clock per color
		// clock runs over the next 8 clocks (see Tick) while HBLANK is extended
		// by the same 8 clocks so the shuffle stays hidden.
		t.hmoveClocks = kHmoveExtra
		t.hmoveP0 = signedMotion(t.hmp0)
		t.hmoveP1 = signedMotion(t.hmp1)
		t.hmoveM0 = signedMotion(t.hmm0)
		t.hmoveM1 = signedMotion(t.hmm1)
		t.hmoveBL = signedMotion(t.hmbl)
		t.hmoveExtend = true
	case wHMCLR:
		t.hmp0, t.hmp1, t.hmm0, t.hmm1, t.hmbl = 0, 0, 0, 0, 0
	case wCXCLR:
		t.collision = [8]uint8{}
	default:
		// These are undefined and go nowhere.
	}
}

// strobePos is where a RESxx strobe lands an object: 4 color clocks past the
// strobe to cover the register latency, or the first visible clock when the
// strobe happens during HBLANK. RESxx strobes very close to the right edge are
// taken at face value here (landing early on the next scanline); emulators
// disagree on what real TIA silicon does in that window.
func (t *Chip) strobePos() int {
	if t.hPos < kHblankClocks {
		return kHblankClocks
	}
	return wrapClock(t.hPos + 4)
}

// combStep applies one HMOVE motion clock to a single object: positive
// outstanding motion pulls it a clock earlier, negative pushes it later.
func combStep(pos *int, remain *int) {
	switch {
	case *remain > 0:
		*pos = wrapClock(*pos - 1)
		*remain--
	case *remain < 0:
		*pos = wrapClock(*pos + 1)
		*remain++
	}
}

// wrapClock wraps a color clock position into [0, kColorClocks).
func wrapClock(pos int) int {
	pos %= kColorClocks
	if pos < 0 {
		pos += kColorClocks
	}
	return pos
}

// signedMotion decodes a HMxx register's top nibble as a signed value in [-8, 7].
func signedMotion(reg uint8) int {
	return int(int8(reg) >> 4)
}

// copiesForNusiz returns the extra color-clock offsets at which additional copies of a
// player or missile are drawn, per the standard NUSIZx copy/spacing table.
func copiesForNusiz(nusiz uint8) []int {
	switch nusiz & 0x07 {
	case 0x1:
		return []int{0, 16}
	case 0x2:
		return []int{0, 32}
	case 0x3:
		return []int{0, 16, 32}
	case 0x4:
		return []int{0, 64}
	case 0x6:
		return []int{0, 32, 64}
	default:
		return []int{0}
	}
}

// playerScale returns how many color clocks wide each GRP bit is drawn as (the
// double/quad-size single-copy modes of NUSIZx).
func playerScale(nusiz uint8) int {
	switch nusiz & 0x07 {
	case 0x5:
		return 2
	case 0x7:
		return 4
	default:
		return 1
	}
}

// playerOn reports whether the given player's graphic is lit at the current hPos.
func (t *Chip) playerOn(which int) bool {
	grp, pos, nusiz, refl := t.grp0, t.posP0, t.nusiz0, t.refp0
	if which == 1 {
		grp, pos, nusiz, refl = t.grp1, t.posP1, t.nusiz1, t.refp1
	}
	if t.vdelFor(which) {
		if which == 0 {
			grp = t.grp0Delayed
		} else {
			grp = t.grp1Delayed
		}
	}
	scale := playerScale(nusiz)
	for _, c := range copiesForNusiz(nusiz) {
		rel := wrapClock(t.hPos - (pos + c))
		if rel >= 0 && rel < 8*scale {
			bit := rel / scale
			if refl {
				bit = 7 - bit
			}
			if grp&(0x80>>uint(bit)) != 0 {
				return true
			}
		}
	}
	return false
}

func (t *Chip) vdelFor(which int) bool {
	if which == 0 {
		return t.vdelp0
	}
	return t.vdelp1
}

// missileOn reports whether the given missile's graphic is lit at the current hPos.
func (t *Chip) missileOn(which int) bool {
	enabled, pos, nusiz, locked := t.enam0, t.posM0, t.nusiz0, t.resmp0
	if which == 1 {
		enabled, pos, nusiz, locked = t.enam1, t.posM1, t.nusiz1, t.resmp1
	}
	// A missile locked to its player tracks the player's center but is hidden.
	if !enabled || locked {
		return false
	}
	width := 1 << ((nusiz >> 4) & 0x3)
	for _, c := range copiesForNusiz(nusiz) {
		rel := wrapClock(t.hPos - (pos + c))
		if rel >= 0 && rel < width {
			return true
		}
	}
	return false
}

// ballOn reports whether the ball's graphic is lit at the current hPos.
func (t *Chip) ballOn() bool {
	enabled := t.enablNew
	if t.vdelbl {
		enabled = t.enablDelayed
	}
	if !enabled {
		return false
	}
	width := 1 << ((t.ctrlpf & kMASK_CTRLPF_BALLSIZE) >> 4)
	rel := wrapClock(t.hPos - t.posBL)
	return rel >= 0 && rel < width
}

// playfieldBit returns the state of playfield cell i (0-19, left half of the screen;
// the right half either repeats or mirrors it depending on CTRLPF's reflect bit).
func (t *Chip) playfieldBit(i int) bool {
	switch {
	case i < 4:
		return t.pf0&(0x10<<uint(i)) != 0
	case i < 12:
		j := i - 4
		return t.pf1&(0x80>>uint(j)) != 0
	default:
		j := i - 12
		return t.pf2&(0x01<<uint(j)) != 0
	}
}

// playfieldOn reports whether the playfield is lit at visible pixel px (0-159).
func (t *Chip) playfieldOn(px int) bool {
	half := kVisibleClocks / 2
	if px < half {
		return t.playfieldBit(px / 4)
	}
	px -= half
	if t.ctrlpf&kMASK_CTRLPF_REF != 0 {
		return t.playfieldBit(19 - px/4)
	}
	return t.playfieldBit(px / 4)
}

// updateCollisions ORs the current pixel's pairwise overlaps into the sticky collision
// matrix. Bit assignments match the standard CXM0P/CXM1P/... register layout.
func (t *Chip) updateCollisions(p0, p1, m0, m1, bl, pf bool) {
	set := func(idx int, hi, lo bool) {
		if hi {
			t.collision[idx] |= 0x80
		}
		if lo {
			t.collision[idx] |= 0x40
		}
	}
	set(kCXM0P, m0 && p1, m0 && p0)
	set(kCXM1P, m1 && p0, m1 && p1)
	set(kCXP0FB, p0 && pf, p0 && bl)
	set(kCXP1FB, p1 && pf, p1 && bl)
	set(kCXM0FB, m0 && pf, m0 && bl)
	set(kCXM1FB, m1 && pf, m1 && bl)
	set(kCXBLPF, bl && pf, false)
	set(kCXPPMM, p0 && p1, m0 && m1)
}

// pixelColor resolves which color register wins at visible pixel px given the
// playfield/ball/player/missile priority rules (including CTRLPF priority and score mode).
func (t *Chip) pixelColor(px int, p0, p1, m0, m1, bl, pf bool) uint8 {
	pfColor := func() uint8 {
		if pf && t.ctrlpf&kMASK_CTRLPF_SCORE != 0 {
			if px < kVisibleClocks/2 {
				return t.colup0
			}
			return t.colup1
		}
		return t.colupf
	}
	if t.ctrlpf&kMASK_CTRLPF_PRIORITY != 0 {
		switch {
		case pf || bl:
			return pfColor()
		case p0 || m0:
			return t.colup0
		case p1 || m1:
			return t.colup1
		}
		return t.colubk
	}
	switch {
	case p0 || m0:
		return t.colup0
	case p1 || m1:
		return t.colup1
	case pf || bl:
		return pfColor()
	}
	return t.colubk
}

// decodeColor converts an Atari color register value (4 bit hue, 3 bit luma) to RGB.
// This is an algorithmic approximation of the NTSC/PAL/SECAM color decode rather than a
// lookup against Stella's exact palette tables, since none of the example repos carry a
// ready-made Atari palette to import.
func decodeColor(val uint8, mode TIAMode) (r, g, b uint8) {
	hue := (val >> 4) & 0x0F
	luma := (val >> 1) & 0x07
	y := float64(luma) / 7.0
	clamp := func(f float64) uint8 {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		return uint8(f * 255)
	}
	if hue == 0 || mode == TIA_MODE_SECAM && luma == 0 {
		g := clamp(y)
		return g, g, g
	}
	angle := (float64(hue) / 16.0) * 2 * math.Pi
	cr := y + 0.45*math.Cos(angle)
	cg := y - 0.25*math.Cos(angle) - 0.25*math.Sin(angle)
	cb := y + 0.5*math.Sin(angle)
	return clamp(cr), clamp(cg), clamp(cb)
}

// Tick does a single clock cycle on the chip which usually is running 3x the
// speed of a CPU. It's up to implementations to run these at whatever rates are
// needed and add delay for total cycle time needed.
// Every tick involves some form of graphics update/state change.
func (t *Chip) Tick() error {
	t.clocks++

	// Run the HMOVE comb: each of the 8 clocks after a strobe moves every
	// object that still has outstanding motion by one counter step.
	if t.hmoveClocks > 0 {
		t.hmoveClocks--
		combStep(&t.posP0, &t.hmoveP0)
		combStep(&t.posP1, &t.hmoveP1)
		combStep(&t.posM0, &t.hmoveM0)
		combStep(&t.posM1, &t.hmoveM1)
		combStep(&t.posBL, &t.hmoveBL)
	}

	if t.resmp0 {
		t.posM0 = wrapClock(t.posP0 + 4)
	}
	if t.resmp1 {
		t.posM1 = wrapClock(t.posP1 + 4)
	}

	hblank := kHblankClocks
	if t.hmoveExtend {
		hblank += kHmoveExtra
	}
	if t.hPos >= hblank {
		px := t.hPos - kHblankClocks
		if px >= 0 && px < kVisibleClocks {
			pf := t.playfieldOn(px)
			bl := t.ballOn()
			p0, p1 := t.playerOn(0), t.playerOn(1)
			m0, m1 := t.missileOn(0), t.missileOn(1)
			t.updateCollisions(p0, p1, m0, m1, bl, pf)

			if !t.vblank && t.row >= 0 && t.row < t.height {
				reg := t.pixelColor(px, p0, p1, m0, m1, bl, pf)
				cr, cg, cb := decodeColor(reg, t.mode)
				t.frame.SetNRGBA(px, t.row, color.NRGBA{R: cr, G: cg, B: cb, A: 255})
			}
		}
	}

	t.hPos++
	if t.hPos >= kColorClocks {
		t.hPos = 0
		t.hmoveExtend = false
		t.rdy = false
		if !t.vblank {
			t.row++
		}
	}
	return nil
}

// TickDone is to be called after all chips have run a given Tick() cycle. The TIA applies
// its own register writes immediately rather than through a shadow-latch mechanism (unlike
// the 6532's port/timer state), so this exists only to satisfy the same clock-interlocking
// contract the other chips use.
func (t *Chip) TickDone() {}

// Debug returns the current TIA state as a string if debugging is enabled.
func (t *Chip) Debug() string {
	if t.debug {
		return fmt.Sprintf("%.6d hPos: %.3d row: %.3d vsync: %t vblank: %t\n", t.clocks, t.hPos, t.row, t.vsync, t.vblank)
	}
	return ""
}
