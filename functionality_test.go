// Package functionality does basic end-end verification of the 6502 core
// against well known test ROMs with a simple flat memory map. The ROM images
// aren't checked in; drop them into testdata/ to enable the full runs.
package functionality

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/retrosilicon/vcs6502/cpu"
	"github.com/retrosilicon/vcs6502/disassemble"
	"github.com/retrosilicon/vcs6502/memory"
	"github.com/retrosilicon/vcs6502/pia6532"
)

var (
	instructionBuffer = flag.Int("instruction_buffer", 40, "Number of instructions to keep in circular buffer for debugging")
)

const testDir = "testdata"

// flatMemory implements the RAM interface
type flatMemory struct {
	addr       [65536]uint8
	fillValue  uint8
	haltVector uint16
	databusVal uint8
}

func (r *flatMemory) Read(addr uint16) uint8 {
	r.databusVal = r.addr[addr]
	return r.addr[addr]
}

func (r *flatMemory) Write(addr uint16, val uint8) {
	r.databusVal = val
	r.addr[addr] = val
}

func (r *flatMemory) Parent() memory.Bank {
	return nil
}

func (r *flatMemory) DatabusVal() uint8 {
	return r.databusVal
}

const (
	RESET = uint16(0x1FFE)
	IRQ   = uint16(0xD001)
)

func (r *flatMemory) PowerOn() {
	for i := range r.addr {
		// Fill with continual bytes (likely NOPs)
		r.addr[i] = r.fillValue
	}
	// Set NMI_VECTOR to hopefully opcodes that will halt the CPU
	// as expected.
	r.addr[cpu.NMI_VECTOR] = uint8(r.haltVector & 0xFF)
	r.addr[cpu.NMI_VECTOR+1] = uint8((r.haltVector & 0xFF00) >> 8)
	// Setup vectors so we have differing bit patterns
	r.addr[cpu.RESET_VECTOR] = uint8(RESET & 0xFF)
	r.addr[cpu.RESET_VECTOR+1] = uint8((RESET & 0xFF00) >> 8)
	r.addr[cpu.IRQ_VECTOR] = uint8(IRQ & 0xFF)
	r.addr[cpu.IRQ_VECTOR+1] = uint8((IRQ & 0xFF00) >> 8)
}

// Step runs complete Tick/TickDone cycles until the current instruction
// finishes, returning the cycle count it took.
func Step(c *cpu.Chip) (cycles int, err error) {
	for {
		err = c.Tick()
		c.TickDone()
		cycles++
		if err != nil {
			return
		}
		if c.InstructionDone() {
			return
		}
	}
}

// TestTimerIRQVectoring wires a 6532's interrupt line into the CPU, loads the
// interval timer with interrupts enabled and checks the CPU ends up fetching
// from the handler the $FFFE/$FFFF vector points at once the timer underflows.
func TestTimerIRQVectoring(t *testing.T) {
	r := &flatMemory{
		fillValue:  0xEA, // NOPs everywhere we haven't written code.
		haltVector: 0x0202,
	}
	p, err := pia6532.Init(&pia6532.ChipDef{})
	if err != nil {
		t.Fatalf("Can't initialize 6532 - %v", err)
	}
	c, err := cpu.Init(&cpu.ChipDef{Cpu: cpu.CPU_NMOS, Ram: r, Irq: p})
	if err != nil {
		t.Fatalf("Can't initialize cpu - %v", err)
	}

	r.addr[RESET] = 0x58 // CLI then NOPs forever.
	// Handler: LDA #$55 then spin.
	r.addr[IRQ+0] = 0xA9
	r.addr[IRQ+1] = 0x55
	r.addr[IRQ+2] = 0x4C // JMP IRQ+2
	r.addr[IRQ+3] = uint8((IRQ + 2) & 0xFF)
	r.addr[IRQ+4] = uint8((IRQ + 2) >> 8)

	// Load the timer through its register file: 0x1D is the divide-by-8
	// write port with interrupt enable (A3 set).
	const timerLoad = uint8(10)
	p.IO().Write(0x001D, timerLoad)

	handled := false
	for i := 0; i < 1000; i++ {
		if err := p.Tick(); err != nil {
			t.Fatalf("6532 tick %d: %v", i, err)
		}
		if err := c.Tick(); err != nil {
			t.Fatalf("CPU tick %d: %v", i, err)
		}
		p.TickDone()
		c.TickDone()
		if c.A == 0x55 && c.PC >= IRQ && c.PC <= IRQ+5 {
			handled = true
			break
		}
	}
	if !handled {
		t.Fatalf("CPU never entered the timer IRQ handler: PC %.4X A %.2X raised %t", c.PC, c.A, p.Raised())
	}
	// I must be set inside the handler.
	if c.P&cpu.P_INTERRUPT == 0 {
		t.Error("I flag not set inside IRQ handler")
	}
}

func TestROMs(t *testing.T) {
	tests := []struct {
		name                 string
		filename             string
		cpu                  cpu.CPUType
		startPC              uint16
		endCheck             func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool
		successCheck         func(oldPC uint16, c *cpu.Chip, r *flatMemory) error
		expectedCycles       uint64
		expectedInstructions uint64
	}{
		{
			// Klaus Dormann's functional suite: runs every documented opcode
			// including the decimal mode paths and self-traps on failure. The
			// documented success trap sits at 0x3469.
			name:     "Functional test",
			filename: "6502_functional_test.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0x400,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if c.PC == 0x3469 {
					return nil
				}
				return fmt.Errorf("CPU looping at PC: 0x%.4X", oldPC)
			},
			expectedCycles:       96241367,
			expectedInstructions: 30646177,
		},
		// The decimal mode tests below come from http://nesdev.com/6502_cpu.txt
		// NOTE: They are hard to debug even with the ring buffer since we don't snapshot memory
		//       state and the test itself is self modifying code...So you'll have to use the register values
		//       to infer state along the way.
		{
			name:     "dadc test",
			filename: "dadc.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0xD000,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if c.PC == 0xD003 {
					return nil
				}
				return fmt.Errorf("CPU looping at PC: 0x%.4X", oldPC)
			},
			expectedCycles:       21230739,
			expectedInstructions: 8109021,
		},
		{
			name:     "dincsbc test",
			filename: "dincsbc.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0xD000,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if c.PC == 0xD003 {
					return nil
				}
				return fmt.Errorf("CPU looping at PC: 0x%.4X", oldPC)
			},
			expectedCycles:       18939479,
			expectedInstructions: 6781979,
		},
		{
			name:     "dincsbc-deccmp test",
			filename: "dincsbc-deccmp.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0xD000,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if c.PC == 0xD003 {
					return nil
				}
				return fmt.Errorf("CPU looping at PC: 0x%.4X", oldPC)
			},
			expectedCycles:       18095478,
			expectedInstructions: 5507188,
		},
		{
			name:     "droradc test",
			filename: "droradc.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0xD000,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if c.PC == 0xD003 {
					return nil
				}
				return fmt.Errorf("CPU looping at PC: 0x%.4X", oldPC)
			},
			expectedCycles:       22148243,
			expectedInstructions: 8240093,
		},
		{
			name:     "dsbc test",
			filename: "dsbc.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0xD000,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if c.PC == 0xD003 {
					return nil
				}
				return fmt.Errorf("CPU looping at PC: 0x%.4X", oldPC)
			},
			expectedCycles:       18021975,
			expectedInstructions: 6650907,
		},
		{
			name:     "dsbc-cmp-flags test",
			filename: "dsbc-cmp-flags.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0xD000,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if c.PC == 0xD003 {
					return nil
				}
				return fmt.Errorf("CPU looping at PC: 0x%.4X", oldPC)
			},
			expectedCycles:       14425354,
			expectedInstructions: 4982868,
		},
		{
			name:     "BCD test",
			filename: "bcd_test.bin",
			cpu:      cpu.CPU_NMOS,
			startPC:  0xC000,
			endCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) bool {
				return oldPC == c.PC || oldPC == 0xC04B
			},
			successCheck: func(oldPC uint16, c *cpu.Chip, r *flatMemory) error {
				if got, want := r.Read(0x0000), uint8(0x00); got != want {
					return fmt.Errorf("Invalid value at 0x00: Got %.2X and want %.2X", got, want)
				}
				return nil
			},
			expectedCycles:       53953828,
			expectedInstructions: 17609916,
		},
	}

	var totalCycles, totalInstructions uint64
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			// We're just assuming these aren't that large so reading into RAM is fine.
			rom, err := ioutil.ReadFile(filepath.Join(testDir, test.filename))
			if err != nil {
				if os.IsNotExist(err) {
					t.Skipf("no %s in %s, skipping", test.filename, testDir)
				}
				t.Fatalf("Can't read ROM: %v", err)
			}

			// Initialize as always but then we'll overwrite it with a ROM image.
			// For this we'll use BRK and a vector which if executed should halt the processor.
			r := &flatMemory{
				fillValue:  0x00,
				haltVector: 0x0202,
			}
			c, err := cpu.Init(&cpu.ChipDef{Cpu: test.cpu, Ram: r})
			if err != nil {
				t.Fatalf("Can't initialize cpu - %v", err)
			}
			for i, b := range rom {
				r.addr[i] = uint8(b)
			}

			type run struct {
				ram    [65536]uint8
				PC     uint16
				P      uint8
				A      uint8
				X      uint8
				Y      uint8
				S      uint8
				Cycles int
			}
			buffer := make([]run, *instructionBuffer)
			bufferLoc := 0
			bufferWrap := false
			dumper := func() {
				end := *instructionBuffer
				if !bufferWrap {
					end = bufferLoc
					bufferLoc = 0
				}
				t.Logf("Last %d instructions: (bufferloc: %d)", end, bufferLoc)
				for i := 0; i < end; i++ {
					dis, _ := disassemble.Step(buffer[bufferLoc].PC, &flatMemory{addr: buffer[bufferLoc].ram})
					t.Logf("%.2d - %s - PC: %.4X P: %.2X A: %.2X X: %.2X Y: %.2X SP: %.2X post - cycles: %d", bufferLoc, dis, buffer[bufferLoc].PC, buffer[bufferLoc].P, buffer[bufferLoc].A, buffer[bufferLoc].X, buffer[bufferLoc].Y, buffer[bufferLoc].S, buffer[bufferLoc].Cycles)
					bufferLoc++
					if bufferLoc >= *instructionBuffer {
						bufferLoc = 0
					}
				}
			}
			c.PC = test.startPC
			var totCycles, totInstructions uint64
			var pc uint16
			for {
				pc = c.PC
				// Have to snapshot RAM before we run as some of the tests are self modifying code...
				buffer[bufferLoc].ram[c.PC] = r.addr[c.PC]
				buffer[bufferLoc].ram[c.PC+1] = r.addr[c.PC+1]
				buffer[bufferLoc].ram[c.PC+2] = r.addr[c.PC+2]
				buffer[bufferLoc].PC = c.PC
				buffer[bufferLoc].P = c.P
				buffer[bufferLoc].A = c.A
				buffer[bufferLoc].X = c.X
				buffer[bufferLoc].Y = c.Y
				buffer[bufferLoc].S = c.S

				cycles, err := Step(c)
				totInstructions++
				buffer[bufferLoc].Cycles = cycles
				bufferLoc++
				if bufferLoc >= *instructionBuffer {
					bufferLoc = 0
					bufferWrap = true
				}
				totCycles += uint64(cycles)
				if err != nil {
					t.Errorf("%d cycles %d instructions - CPU error at PC: 0x%.4X - %v", totCycles, totInstructions, pc, err)
					dumper()
					return
				}
				if test.endCheck(pc, c, r) {
					if err := test.successCheck(pc, c, r); err != nil {
						t.Errorf("%d cycles %d instructions - %v", totCycles, totInstructions, err)
						dumper()
						return
					}
					break
				}
			}
			if got, want := totCycles, test.expectedCycles; got != want {
				t.Logf("Cycle count drift. Got %d and want %d", got, want)
			}
			if got, want := totInstructions, test.expectedInstructions; got != want {
				t.Errorf("Invalid instruction count. Got %d and want %d", got, want)
				dumper()
				return
			}
			atomic.AddUint64(&totalCycles, totCycles)
			atomic.AddUint64(&totalInstructions, totInstructions)
			t.Logf("Completed %d cycles and %d instructions", totCycles, totInstructions)
		})
	}
	t.Logf("TestROMs totals: Completed %d cycles and %d instructions", totalCycles, totalInstructions)
}
