package tia

import (
	"image"
	"testing"
)

type fixedInput struct {
	b bool
}

func (f *fixedInput) Input() bool {
	return f.b
}

func mustInit(t *testing.T, def *ChipDef) *Chip {
	t.Helper()
	c, err := Init(def)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c
}

func TestInitInvalidMode(t *testing.T) {
	if _, err := Init(&ChipDef{Mode: TIA_MODE_UNIMPLEMENTED}); err == nil {
		t.Error("Init with TIA_MODE_UNIMPLEMENTED: got no error, want one")
	}
	if _, err := Init(&ChipDef{Mode: TIA_MODE_MAX}); err == nil {
		t.Error("Init with TIA_MODE_MAX: got no error, want one")
	}
}

func TestCollisionRegisters(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})

	c.collision[kCXM0P] = 0xC0
	c.collision[kCXPPMM] = 0x80

	if got, want := c.Read(0x00), uint8(0xC0); got != want {
		t.Errorf("CXM0P Read() = %.2X, want %.2X", got, want)
	}
	if got, want := c.Read(0x07), uint8(0x80); got != want {
		t.Errorf("CXPPMM Read() = %.2X, want %.2X", got, want)
	}

	c.Write(wCXCLR, 0x00)
	for i, v := range c.collision {
		if v != 0 {
			t.Errorf("collision[%d] = %.2X after CXCLR, want 0", i, v)
		}
	}
}

func TestPaddleGroundEdge(t *testing.T) {
	grounded := 0
	c := mustInit(t, &ChipDef{
		Mode:      TIA_MODE_NTSC,
		Port0:     &fixedInput{true},
		IoPortGnd: func() { grounded++ },
	})

	if got, want := c.Read(0x08), uint8(0x80); got != want {
		t.Errorf("INPT0 Read() before ground = %.2X, want %.2X", got, want)
	}

	c.Write(wVBLANK, kMASK_VBL_I0I3_GROUND)
	if grounded != 1 {
		t.Errorf("IoPortGnd called %d times on rising edge, want 1", grounded)
	}
	if got := c.Read(0x08); got != 0 {
		t.Errorf("INPT0 Read() while grounded = %.2X, want 0", got)
	}

	// Writing the same bit again shouldn't re-trigger the callback.
	c.Write(wVBLANK, kMASK_VBL_I0I3_GROUND)
	if grounded != 1 {
		t.Errorf("IoPortGnd called %d times after repeat write, want 1", grounded)
	}
}

func TestWsyncRdy(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})

	if c.Raised() {
		t.Fatal("RDY raised before WSYNC write")
	}
	c.Write(wWSYNC, 0x00)
	if !c.Raised() {
		t.Fatal("RDY not raised after WSYNC write")
	}

	// RDY clears once the scanline wraps back to hPos 0.
	for i := 0; i < kColorClocks; i++ {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if c.Raised() {
		t.Error("RDY still raised after scanline wrap")
	}
}

func TestPlayfieldPixel(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})
	c.vblank = false
	// PF0 bits 4-7 cover playfield cells 0-3; set cell 0 on (leftmost column).
	c.Write(wPF0, 0x10)
	c.Write(wCOLUPF, 0x4E)
	c.Write(wCOLUBK, 0x00)

	for c.hPos != kHblankClocks {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got := c.frame.NRGBAAt(0, 0)
	if got.R == 0 && got.G == 0 && got.B == 0 {
		t.Errorf("pixel (0,0) rendered as background with playfield cell 0 lit: %+v", got)
	}
}

func TestPlayerPositionAndCollision(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})
	c.Write(wGRP0, 0xFF) // All 8 bits lit.
	c.Write(wENAM0, kMASK_ENABLE)

	// Advance to a known hPos in the visible window, then strobe RESP0/RESM0 so both
	// objects land at the same position (4 clocks past the strobe) and collide there.
	for c.hPos != 100 {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	c.Write(wRESP0, 0x00)
	c.Write(wRESM0, 0x00)
	if got, want := c.posP0, 104; got != want {
		t.Fatalf("posP0 after RESP0 at hPos 100 = %d, want %d", got, want)
	}

	// Tick through the strobe latency so the shared start pixel gets drawn.
	for i := 0; i < 5; i++ {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	if got := c.Read(0x00) & 0x40; got == 0 {
		t.Error("CXM0P missile0/player0 collision bit not set when both objects overlap")
	}
}

// TestStrobeDuringHblank pins the RESxx clamping convention: a strobe during
// horizontal blanking lands the object on the first visible clock.
func TestStrobeDuringHblank(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})
	for c.hPos != 20 {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	c.Write(wRESBL, 0x00)
	if got, want := c.posBL, kHblankClocks; got != want {
		t.Errorf("posBL after RESBL in HBLANK = %d, want %d", got, want)
	}
}

func TestHMOVEAppliesMotion(t *testing.T) {
	tests := []struct {
		name  string
		hm    uint8
		delta int
	}{
		{"plus7", 0x70, -7},
		{"plus1", 0x10, -1},
		{"zero", 0x00, 0},
		{"minus1", 0xF0, 1},
		{"minus8", 0x80, 8},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})
			c.Write(wRESP0, 0x00) // In HBLANK so posP0 clamps to the visible edge.
			start := c.posP0
			c.Write(wHMP0, test.hm)
			c.Write(wHMOVE, 0x00)

			if !c.hmoveExtend {
				t.Fatal("hmoveExtend not set after HMOVE strobe")
			}
			// The comb spreads the motion over the next 8 color clocks.
			for i := 0; i < kHmoveExtra; i++ {
				if err := c.Tick(); err != nil {
					t.Fatalf("Tick: %v", err)
				}
			}
			want := wrapClock(start + test.delta)
			if c.posP0 != want {
				t.Errorf("posP0 after HMOVE comb = %d, want %d", c.posP0, want)
			}
			if c.hmoveClocks != 0 {
				t.Errorf("hmoveClocks = %d after 8 ticks, want 0", c.hmoveClocks)
			}
		})
	}
}

// TestPixelCounterWraps checks the scanline counter relationship: after any N
// ticks the horizontal position is (start + N) mod 228.
func TestPixelCounterWraps(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})
	start := c.hPos
	for n := 1; n <= 3*kColorClocks+17; n++ {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick %d: %v", n, err)
		}
		if got, want := c.hPos, (start+n)%kColorClocks; got != want {
			t.Fatalf("hPos after %d ticks = %d, want %d", n, got, want)
		}
	}
}

// TestCollisionSymmetry lines every object up on one pixel and checks that each
// pairwise latch in the matrix gets set from the single overlap.
func TestCollisionSymmetry(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})
	c.Write(wGRP0, 0x80)
	c.Write(wGRP1, 0x80)
	c.Write(wENAM0, kMASK_ENABLE)
	c.Write(wENAM1, kMASK_ENABLE)
	c.Write(wENABL, kMASK_ENABLE)
	c.Write(wPF0, 0xF0)
	c.Write(wPF1, 0xFF)
	c.Write(wPF2, 0xFF) // Playfield solid so it overlaps wherever the others land.

	for c.hPos != 100 {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	c.Write(wRESP0, 0x00)
	c.Write(wRESP1, 0x00)
	c.Write(wRESM0, 0x00)
	c.Write(wRESM1, 0x00)
	c.Write(wRESBL, 0x00)
	for i := 0; i < 5; i++ {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	wants := []struct {
		reg  uint16
		want uint8
	}{
		{0x00, 0xC0}, // CXM0P: M0-P1 and M0-P0
		{0x01, 0xC0}, // CXM1P: M1-P0 and M1-P1
		{0x02, 0xC0}, // CXP0FB: P0-PF and P0-BL
		{0x03, 0xC0}, // CXP1FB: P1-PF and P1-BL
		{0x04, 0xC0}, // CXM0FB: M0-PF and M0-BL
		{0x05, 0xC0}, // CXM1FB: M1-PF and M1-BL
		{0x06, 0x80}, // CXBLPF: BL-PF only, D6 unused
		{0x07, 0xC0}, // CXPPMM: P0-P1 and M0-M1
	}
	for _, w := range wants {
		if got := c.Read(w.reg); got != w.want {
			t.Errorf("collision register %.2X = %.2X, want %.2X", w.reg, got, w.want)
		}
	}

	c.Write(wCXCLR, 0x00)
	for _, w := range wants {
		if got := c.Read(w.reg); got != 0 {
			t.Errorf("collision register %.2X = %.2X after CXCLR, want 0", w.reg, got)
		}
	}
}

func TestFrameDeliveryOnVsync(t *testing.T) {
	var frames []*image.NRGBA
	c := mustInit(t, &ChipDef{
		Mode:      TIA_MODE_NTSC,
		FrameDone: func(f *image.NRGBA) { frames = append(frames, f) },
	})

	c.Write(wVSYNC, kMASK_VSYNC)
	if len(frames) != 1 {
		t.Fatalf("frames delivered = %d, want 1", len(frames))
	}
	if got, want := frames[0].Bounds().Dx(), NTSCWidth; got != want {
		t.Errorf("frame width = %d, want %d", got, want)
	}
	if got, want := frames[0].Bounds().Dy(), NTSCHeight; got != want {
		t.Errorf("frame height = %d, want %d", got, want)
	}

	// A second low-to-high transition delivers another frame; staying high does not.
	c.Write(wVSYNC, 0x00)
	c.Write(wVSYNC, kMASK_VSYNC)
	c.Write(wVSYNC, kMASK_VSYNC)
	if len(frames) != 2 {
		t.Fatalf("frames delivered after 2nd rising edge = %d, want 2", len(frames))
	}
}

// TestVdelShadow checks the vertical delay plumbing: with VDELP0 set a GRP0
// write stays invisible until a GRP1 write latches it across.
func TestVdelShadow(t *testing.T) {
	c := mustInit(t, &ChipDef{Mode: TIA_MODE_NTSC})
	c.Write(wVDELP0, kMASK_VDEL)
	c.Write(wGRP0, 0xFF)
	c.hPos = kHblankClocks
	c.posP0 = kHblankClocks

	if c.playerOn(0) {
		t.Error("player 0 visible before GRP1 write latched the delayed copy")
	}
	c.Write(wGRP1, 0x00)
	if !c.playerOn(0) {
		t.Error("player 0 not visible after GRP1 write latched the delayed copy")
	}

	// Clearing VDELP0 goes back to the live register immediately.
	c.Write(wVDELP0, 0x00)
	c.Write(wGRP0, 0x00)
	if c.playerOn(0) {
		t.Error("player 0 still visible with live GRP0 cleared and VDEL off")
	}
}

func TestSignedMotion(t *testing.T) {
	tests := []struct {
		reg  uint8
		want int
	}{
		{0x70, 7},
		{0x10, 1},
		{0x00, 0},
		{0xF0, -1},
		{0x80, -8},
	}
	for _, test := range tests {
		if got := signedMotion(test.reg); got != test.want {
			t.Errorf("signedMotion(%.2X) = %d, want %d", test.reg, got, test.want)
		}
	}
}
