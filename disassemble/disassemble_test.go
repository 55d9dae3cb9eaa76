package disassemble

import (
	"strings"
	"testing"

	"github.com/retrosilicon/vcs6502/memory"
)

type flatMemory struct {
	addr       [65536]uint8
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

func (r *flatMemory) PowerOn() {}

func (r *flatMemory) Parent() memory.Bank {
	return nil
}

func (r *flatMemory) DatabusVal() uint8 {
	return r.databusVal
}

func TestStep(t *testing.T) {
	tests := []struct {
		name  string
		bytes []uint8
		want  string
		count int
	}{
		{
			name:  "LDA immediate",
			bytes: []uint8{0xA9, 0x44},
			want:  "LDA #44",
			count: 2,
		},
		{
			name:  "JMP absolute",
			bytes: []uint8{0x4C, 0x34, 0x12},
			want:  "JMP 1234",
			count: 3,
		},
		{
			name:  "JMP indirect",
			bytes: []uint8{0x6C, 0x34, 0x12},
			want:  "JMP (1234)",
			count: 3,
		},
		{
			name:  "STA indirect Y",
			bytes: []uint8{0x91, 0x80},
			want:  "STA (80),Y",
			count: 2,
		},
		{
			name:  "BNE backwards",
			bytes: []uint8{0xD0, 0xFB},
			want:  "BNE FB (01FD)",
			count: 2,
		},
		{
			name:  "NOP implied",
			bytes: []uint8{0xEA},
			want:  "NOP",
			count: 1,
		},
		{
			name:  "undocumented byte",
			bytes: []uint8{0x02},
			want:  "???",
			count: 1,
		},
		{
			name:  "undocumented NOP alias",
			bytes: []uint8{0x1A},
			want:  "???",
			count: 1,
		},
	}
	const pc = uint16(0x0200)
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			r := &flatMemory{}
			copy(r.addr[pc:], test.bytes)
			got, count := Step(pc, r)
			if !strings.Contains(got, test.want) {
				t.Errorf("Step output %q doesn't contain %q", got, test.want)
			}
			if count != test.count {
				t.Errorf("Step count = %d, want %d", count, test.count)
			}
		})
	}
}
