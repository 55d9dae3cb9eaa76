package pia6532

import (
	"testing"

	"github.com/go-test/deep"
)

func mustInit(t *testing.T, def *ChipDef) *Chip {
	t.Helper()
	p, err := Init(def)
	if err != nil {
		t.Fatalf("Can't initialize chip: %v", err)
	}
	return p
}

// cycle runs one full clock through the chip.
func cycle(t *testing.T, p *Chip) {
	t.Helper()
	if err := p.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	p.TickDone()
}

func TestRam(t *testing.T) {
	p := mustInit(t, &ChipDef{})

	// Only 7 address bits reach the RAM so everything aliases mod 128.
	for i := uint16(0x0000); i < 0x0080; i++ {
		p.Write(i, uint8(i))
	}
	for i := uint16(0x0000); i < 0xFFFF; i++ {
		if got, want := p.Read(i), uint8(i&kMASK_RAM); got != want {
			t.Fatalf("Bad aliased RAM read at %.4X: got %.2X want %.2X", i, got, want)
		}
	}
}

func TestTickErrors(t *testing.T) {
	p := mustInit(t, &ChipDef{})
	if err := p.Tick(); err != nil {
		t.Errorf("Unexpected error on first tick: %v", err)
	}
	if err := p.Tick(); err == nil {
		t.Error("Didn't get error on back-back Ticks?")
	}
}

func TestTimer(t *testing.T) {
	tests := []struct {
		name      string
		addr      uint16
		timerVal  uint8
		divider   uint16
		interrupt bool
		overrun   uint8
	}{
		{
			name:     "1x with no interrupt",
			addr:     kWRITE_TIM1T,
			timerVal: 0x76,
			divider:  kDIVIDE_1,
			overrun:  0x10,
		},
		{
			name:     "8x with no interrupt",
			addr:     kWRITE_TIM8T,
			timerVal: 0x76,
			divider:  kDIVIDE_8,
			overrun:  0x10,
		},
		{
			name:     "64x with no interrupt",
			addr:     kWRITE_TIM64T,
			timerVal: 0x76,
			divider:  kDIVIDE_64,
			overrun:  0x10,
		},
		{
			name:     "1024x with no interrupt",
			addr:     kWRITE_T1024T,
			timerVal: 0x12,
			divider:  kDIVIDE_1024,
			overrun:  0x10,
		},
		{
			name:      "1x with interrupt",
			addr:      kWRITE_TIM1T_IRQ,
			timerVal:  0x76,
			divider:   kDIVIDE_1,
			interrupt: true,
			overrun:   0x10,
		},
		{
			name:      "8x with interrupt",
			addr:      kWRITE_TIM8T_IRQ,
			timerVal:  0x76,
			divider:   kDIVIDE_8,
			interrupt: true,
			overrun:   0x10,
		},
		{
			name:      "64x with interrupt",
			addr:      kWRITE_TIM64T_IRQ,
			timerVal:  0x76,
			divider:   kDIVIDE_64,
			interrupt: true,
			overrun:   0x10,
		},
		{
			name:      "1024x with interrupt",
			addr:      kWRITE_T1024T_IRQ,
			timerVal:  0x12,
			divider:   kDIVIDE_1024,
			interrupt: true,
			overrun:   0x10,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			p := mustInit(t, &ChipDef{})
			if p.Raised() {
				t.Error("interrupt raised when not expected post init?")
			}
			p.IO().Write(test.addr, test.timerVal)
			// The store's own cycle. The counter loads at the end of it so the
			// interval proper starts on the next cycle.
			cycle(t, p)

			// Countdown: the counter reads initial - floor(elapsed/divider).
			for i := test.timerVal; i > 0x00; i-- {
				// These have to be fatal since erroring on every iteration is too much.
				for j := uint16(0x0000); j < test.divider; j++ {
					cycle(t, p)
					if p.Raised() {
						t.Fatalf("Interrupt raised on tick %.2X when not expected", i)
					}
				}
				if got, want := p.timer, i-1; got != want {
					t.Fatalf("Timer value not correct. Got %.2X and want %.2X", got, want)
				}
			}
			// Should be at timer 0 now. One more cycle underflows no matter
			// what the divider is.
			if got, want := p.timer, uint8(0x00); got != want {
				t.Errorf("Didn't get expected timer value at end. Got %.2X and want %.2X", got, want)
			}
			cycle(t, p)
			if got, want := p.Raised(), test.interrupt; got != want {
				t.Errorf("Interrupt state not as expected. Got %t and want %t", got, want)
			}
			if got, want := p.timer, uint8(0xFF); got != want {
				t.Errorf("Invalid timer count after expiration. Got %.2X and want %.2X", got, want)
			}
			// Past underflow it free runs a decrement every cycle.
			for i := uint8(1); i < test.overrun; i++ {
				cycle(t, p)
				if got, want := p.Raised(), test.interrupt; got != want {
					t.Errorf("Interrupt state during overrun not as expected. Got %t and want %t", got, want)
				}
			}
			if got, want := p.timer, 0xFF-test.overrun+1; got != want {
				t.Errorf("Invalid timer count after overrun. Got %.2X and want %.2X", got, want)
			}
			// Now read the timer through the register interface which acknowledges
			// the interrupt: after the read settles Raised() must be false.
			if got, want := p.IO().Read(kREAD_INTIM), 0xFF-test.overrun+1; got != want {
				t.Errorf("Invalid timer count (via Read) after overrun. Got %.2X and want %.2X", got, want)
			}
			cycle(t, p)
			if p.Raised() {
				t.Error("Interrupt still raised after INTIM read settled")
			}
			// Reading through the re-enable alias turns the flag back on during
			// free run.
			p.IO().Read(kREAD_INTIM_IRQ)
			cycle(t, p)
			cycle(t, p)
			if !p.Raised() {
				t.Error("Interrupt not re-raised after re-enabling read during free run")
			}
		})
	}
}

// TestTimerSamples pins the counter arithmetic across a whole countdown:
// sampling INTIM at k cycles after a load of V with divider D reads
// V - floor(k/D), then (256-j) once underflowed by j cycles.
func TestTimerSamples(t *testing.T) {
	const v = uint8(0x05)
	p := mustInit(t, &ChipDef{})
	p.IO().Write(kWRITE_TIM8T, v)
	cycle(t, p) // the store's own cycle

	var got []uint8
	sample := []int{1, 7, 8, 9, 16, 39, 40, 41, 42, 50}
	cycles := 0
	for _, s := range sample {
		for cycles < s {
			cycle(t, p)
			cycles++
		}
		got = append(got, p.timer)
	}
	want := []uint8{
		0x05, // k=1
		0x05, // k=7
		0x04, // k=8
		0x04, // k=9
		0x03, // k=16
		0x01, // k=39
		0x00, // k=40 == V*D
		0xFF, // k=41, underflow is always one cycle after zero
		0xFE, // k=42, free running now
		0xF6, // k=50
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("INTIM samples don't match: %v", diff)
	}
}

func TestZeroLoad(t *testing.T) {
	p := mustInit(t, &ChipDef{})
	p.IO().Write(kWRITE_T1024T_IRQ, 0x00)
	cycle(t, p)
	if got, want := p.timer, uint8(0x00); got != want {
		t.Fatalf("Timer after zero load: got %.2X want %.2X", got, want)
	}
	// A zero load skips the divider entirely.
	cycle(t, p)
	if got, want := p.timer, uint8(0xFF); got != want {
		t.Errorf("Timer one cycle after zero load: got %.2X want %.2X", got, want)
	}
	if !p.Raised() {
		t.Error("Interrupt not raised one cycle after zero load")
	}
}

type in struct {
	data uint8
}

func (i *in) Input() uint8 {
	return i.data
}

func TestEdgeDetect(t *testing.T) {
	tests := []struct {
		name   string
		reg    uint16
		regIrq uint16
		style  edgeType
	}{
		{
			name:   "Negative edge",
			reg:    kWRITE_EDGE_NEG,
			regIrq: kWRITE_EDGE_NEG_IRQ,
			style:  kEDGE_NEGATIVE,
		},
		{
			name:   "Positive edge",
			reg:    kWRITE_EDGE_POS,
			regIrq: kWRITE_EDGE_POS_IRQ,
			style:  kEDGE_POSITIVE,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			portA := &in{}
			p := mustInit(t, &ChipDef{PortA: portA})

			// Style applies after the write settles.
			p.IO().Write(test.reg, 0xFF)
			cycle(t, p)
			if got, want := p.edgeStyle, test.style; got != want {
				t.Fatalf("Invalid edge style. Got %d and want %d", got, want)
			}
			if p.Raised() {
				t.Error("interrupt raised with detection armed but disabled")
			}

			// Arm with interrupts and drive the matching PA7 transition on the
			// input pins.
			p.IO().Write(test.regIrq, 0xFF)
			cycle(t, p)
			first, second := uint8(0x80), uint8(0x00)
			if test.style == kEDGE_POSITIVE {
				first, second = 0x00, 0x80
			}
			portA.data = first
			cycle(t, p)
			portA.data = second
			cycle(t, p)
			if !p.Raised() {
				t.Fatal("edge interrupt not raised on PA7 transition")
			}
			if got, want := p.IO().Read(kREAD_TIMINT), kMASK_EDGE_IRQ; got != want {
				t.Errorf("Expected interrupt state %.2X and got %.2X", want, got)
			}
			// Reading the flags clears the edge bit once the read settles.
			cycle(t, p)
			if got, want := p.IO().Read(kREAD_TIMINT), kMASK_NONE; got != want {
				t.Errorf("Expected interrupt state %.2X after clearing read and got %.2X", want, got)
			}
			if p.Raised() {
				t.Error("interrupt still raised after TIMINT read settled")
			}

			// The output latch drives PA7 too when set as output; flipping it
			// through a write must also trip detection.
			p.IO().Write(test.regIrq, 0xFF)
			cycle(t, p)
			p.IO().Write(kWRITE_DDRA, 0x80)
			cycle(t, p)
			first, second = 0x80, 0x00
			if test.style == kEDGE_POSITIVE {
				first, second = 0x00, 0x80
			}
			p.IO().Write(kWRITE_DRA, first)
			cycle(t, p)
			p.IO().Write(kWRITE_DRA, second)
			cycle(t, p)
			if !p.Raised() {
				t.Errorf("edge interrupt not raised on output latch transition %.2X -> %.2X", first, second)
			}

			// Finally, an impossible edge state must error the next Tick.
			p.edgeStyle = kEDGE_UNIMPLEMENTED
			if err := p.Tick(); err == nil {
				t.Fatal("Should have gotten an error for invalid edge style")
			}
			p.TickDone()
		})
	}
}

func TestPorts(t *testing.T) {
	portA := &in{0xA5}
	portB := &in{0xAA}
	p := mustInit(t, &ChipDef{PortA: portA, PortB: portB})

	// Port A all output, port B all input. DDR loads settle on TickDone.
	p.IO().Write(kWRITE_DDRA, 0xFF)
	p.IO().Write(kWRITE_DDRB, 0x00)
	cycle(t, p)
	if got, want := p.IO().Read(kREAD_DDRA), uint8(0xFF); got != want {
		t.Errorf("Didn't get expected port A DDR. Got %.2X and want %.2X", got, want)
	}
	if got, want := p.IO().Read(kREAD_DDRB), uint8(0x00); got != want {
		t.Errorf("Didn't get expected port B DDR. Got %.2X and want %.2X", got, want)
	}

	p.IO().Write(kWRITE_DRA, 0xAA)
	p.IO().Write(kWRITE_DRB, 0x55)
	cycle(t, p)
	if got, want := p.PortA().Output(), uint8(0xAA); got != want {
		t.Errorf("Bad portA output data. Got %.2X and want %.2X", got, want)
	}
	// Port B floats high via internal pullups with DDR all input.
	if got, want := p.PortB().Output(), uint8(0xFF); got != want {
		t.Errorf("Bad portB output data. Got %.2X and want %.2X", got, want)
	}
	// Port A reads are an open collector AND of output latch and pins.
	if got, want := p.IO().Read(kREAD_DRA), uint8(0xA0); got != want {
		t.Errorf("Bad portA input data. Got %.2X and want %.2X", got, want)
	}
	// Port B input signals mask correctly (internal pullups).
	if got, want := p.IO().Read(kREAD_DRB), uint8(0xAA); got != want {
		t.Errorf("Bad portB input data. Got %.2X and want %.2X", got, want)
	}

	// Simulate atari 2600 combat where Port B pins 2,4,5 are unused and can be
	// set to output to store data. So 00110100 == 0x34.
	p.IO().Write(kWRITE_DDRB, 0x34)
	cycle(t, p)
	// Reset portB input to not overlap the bits set above.
	portB.data = 0xC0
	// Write out to port B the bits we can set but also another we shouldn't (set bit 0).
	p.IO().Write(kWRITE_DRB, 0x35)
	cycle(t, p)
	// So reading now should give back 0xF4 since we'll OR in the set output bits for 2,4,5.
	if got, want := p.IO().Read(kREAD_DRB), uint8(0xF4); got != want {
		t.Errorf("Bad portB input data with output set. Got %.2X and want %.2X", got, want)
	}
}
