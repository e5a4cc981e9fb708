/*
sim3b2 CPU fetch/decode/execute tests.

	Copyright (c) 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a
	copy of this software and associated documentation files (the "Software"),
	to deal in the Software without restriction, including without limitation
	the rights to use, copy, modify, merge, publish, distribute, sublicense,
	and/or sell copies of the Software, and to permit persons to whom the
	Software is furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
	RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
	IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
	CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/
package cpu

import (
	"testing"

	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/device"
	"github.com/wearch/sim3b2/emu/mmu"
)

func newTestMachine() (*CPU, *bus.Bus, *mmu.MMU) {
	b := bus.New(1<<14, nil, 0xffffffff, false)
	m := mmu.New(b, false) // disabled: identity mapping, no permission checks
	c := New(0)
	return c, b, m
}

func loadBytes(t *testing.T, b *bus.Bus, addr uint32, data []byte) {
	t.Helper()
	for i, v := range data {
		if f := b.Write(addr+uint32(i), uint32(v), device.Byte, bus.FromCPU, false); f != nil {
			t.Fatalf("loadBytes: %v", f)
		}
	}
}

func regByte(reg int) byte { return 0x40 | byte(reg) }

// TestADDW3CarryAndOverflow reproduces spec.md section 8 scenario 2.
func TestADDW3CarryAndOverflow(t *testing.T) {
	c, b, m := newTestMachine()
	loadBytes(t, b, 0x1000, []byte{opAddw3, regByte(R0), regByte(R1), regByte(R2)})
	c.Regs[R0] = 0x7FFFFFFF
	c.Regs[R1] = 0x00000001
	c.SetPC(0x1000)

	if f := c.RunOne(b, m); f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}

	if c.Regs[R2] != 0x80000000 {
		t.Errorf("R2 = %#x, want %#x", c.Regs[R2], 0x80000000)
	}
	p := c.PSW()
	if !p.N() || p.Z() || p.C() || !p.V() {
		t.Errorf("flags N=%v Z=%v C=%v V=%v, want N=1 Z=0 C=0 V=1", p.N(), p.Z(), p.C(), p.V())
	}
	if c.PC() != 0x1004 {
		t.Errorf("PC = %#x, want %#x (4 bytes consumed)", c.PC(), 0x1004)
	}
}

func TestMOVWRoundTrip(t *testing.T) {
	c, b, m := newTestMachine()
	// MOVW R0, R1 ; MOVW R1, R2 -- R2 should equal the original R0.
	loadBytes(t, b, 0x2000, []byte{
		opMovw, regByte(R0), regByte(R1),
		opMovw, regByte(R1), regByte(R2),
	})
	c.Regs[R0] = 0xcafef00d
	c.SetPC(0x2000)

	if f := c.RunOne(b, m); f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if f := c.RunOne(b, m); f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if c.Regs[R2] != 0xcafef00d {
		t.Errorf("R2 = %#x, want %#x", c.Regs[R2], 0xcafef00d)
	}
}

func TestDIVWByZeroFaultsAndLeavesDestUnchanged(t *testing.T) {
	c, b, m := newTestMachine()
	loadBytes(t, b, 0x3000, []byte{opDivw3, regByte(R0), regByte(R1), regByte(R2)})
	c.Regs[R0] = 0      // divisor
	c.Regs[R1] = 42     // dividend
	c.Regs[R2] = 0xdead // sentinel, must survive the fault
	c.SetPC(0x3000)

	f := c.RunOne(b, m)
	if f == nil || f.ISC != IscIntegerZeroDivide {
		t.Fatalf("expected integer zero divide fault, got %v", f)
	}
	if c.Regs[R2] != 0xdead {
		t.Errorf("dest register was modified by a faulting divide: %#x", c.Regs[R2])
	}
}

func TestASRW3ShiftBy32ReplicatesSignBit(t *testing.T) {
	c, b, m := newTestMachine()
	loadBytes(t, b, 0x4000, []byte{opArsw3, regByte(R0), regByte(R1), regByte(R2)})
	c.Regs[R0] = 32 // shift count
	c.Regs[R1] = 0x80000000
	c.SetPC(0x4000)

	if f := c.RunOne(b, m); f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if c.Regs[R2] != 0xffffffff {
		t.Errorf("R2 = %#x, want all-ones sign replication %#x", c.Regs[R2], 0xffffffff)
	}
}

func TestEXTFWInsfwRoundTrip(t *testing.T) {
	c, b, m := newTestMachine()
	// INSFW width=8,offset=4,src=R0,dst=R1 ; EXTFW width=8,offset=4,src=R1,dst=R2
	loadBytes(t, b, 0x5000, []byte{
		opInsfw, regByte(R3) /* width */, regByte(R4) /* offset */, regByte(R0), regByte(R1),
		opExtfw, regByte(R3), regByte(R4), regByte(R1), regByte(R2),
	})
	c.Regs[R3] = 8 // width
	c.Regs[R4] = 4 // offset
	c.Regs[R0] = 0xab
	c.Regs[R1] = 0
	c.SetPC(0x5000)

	if f := c.RunOne(b, m); f != nil {
		t.Fatalf("unexpected fault on INSFW: %v", f)
	}
	if f := c.RunOne(b, m); f != nil {
		t.Fatalf("unexpected fault on EXTFW: %v", f)
	}
	if c.Regs[R2] != 0xab {
		t.Errorf("EXTFW(INSFW(x)) = %#x, want %#x", c.Regs[R2], 0xab)
	}
}

func TestIllegalOpcodeFaults(t *testing.T) {
	c, b, m := newTestMachine()
	loadBytes(t, b, 0x6000, []byte{0xff & 0xfd}) // unassigned byte in this table's subset
	c.SetPC(0x6000)
	f := c.RunOne(b, m)
	if f == nil || f.ISC != IscIllegalOpcode {
		t.Fatalf("expected illegal opcode fault, got %v", f)
	}
}

func TestPrivilegedHaltFaultsOutsideKernel(t *testing.T) {
	c, b, m := newTestMachine()
	loadBytes(t, b, 0x7000, []byte{opHalt})
	c.SetPC(0x7000)
	p := c.PSW()
	p.SetCM(LevelUser)
	c.SetPSW(p)

	f := c.RunOne(b, m)
	if f == nil || f.ISC != IscPrivilegedOpcode {
		t.Fatalf("expected privileged opcode fault, got %v", f)
	}
	if c.Halted {
		t.Errorf("CPU should not have halted on a rejected privileged opcode")
	}
}

func TestResetClearsArchitecturalState(t *testing.T) {
	c, _, _ := newTestMachine()
	c.Regs[R0] = 0xffffffff
	c.SetPC(0x1234)
	c.Halted = true
	c.Reset()

	if c.Regs[R0] != 0 {
		t.Errorf("R0 not cleared on reset: %#x", c.Regs[R0])
	}
	if c.PC() != 0 {
		t.Errorf("PC not cleared on reset: %#x", c.PC())
	}
	if c.Halted {
		t.Errorf("Halted should be cleared on reset")
	}
	if c.PSW().CM() != LevelKernel || c.PSW().ET() != uint8(KindReset) {
		t.Errorf("reset PSW should be CM=kernel ET=reset, got CM=%d ET=%d", c.PSW().CM(), c.PSW().ET())
	}
}
