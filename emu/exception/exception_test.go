/*
sim3b2 Exception Engine tests.

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
package exception

import (
	"testing"

	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/cpu"
	"github.com/wearch/sim3b2/emu/device"
	"github.com/wearch/sim3b2/emu/mmu"
)

func newTestRig() (*cpu.CPU, *bus.Bus, *mmu.MMU) {
	b := bus.New(1<<14, nil, 0xffffffff, false)
	m := mmu.New(b, false)
	c := cpu.New(0)
	return c, b, m
}

func wordAt(t *testing.T, b *bus.Bus, pa, v uint32) {
	t.Helper()
	if f := b.Write(pa, v, device.Word, bus.FromCPU, false); f != nil {
		t.Fatalf("seed word at %#x: %v", pa, f)
	}
}

func readWord(t *testing.T, b *bus.Bus, pa uint32) uint32 {
	t.Helper()
	v, f := b.Read(pa, device.Word, bus.FromCPU, false)
	if f != nil {
		t.Fatalf("read word at %#x: %v", pa, f)
	}
	return v
}

func seedPCB(t *testing.T, b *bus.Bus, base, psw, pc, sp uint32) {
	t.Helper()
	wordAt(t, b, base+pcbPSW, psw)
	wordAt(t, b, base+pcbPC, pc)
	wordAt(t, b, base+pcbSP, sp)
}

// TestRaiseNormalPushesCurrentStackAndGates confirms a normal-kind fault
// pushes the faulting PC/PSW onto the current stack (not the interrupt
// stack), performs no PCB switch, and dispatches through the first-level
// vector table at firstLevelVectBase+isc*8.
func TestRaiseNormalPushesCurrentStackAndGates(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	const isc = 5
	const tableBase = 0x4000
	wordAt(t, b, firstLevelVectBase, tableBase)
	entry := uint32(tableBase) + (isc << 3)
	wordAt(t, b, entry, 0) // new PSW raw bits (CM/IPL/R stay from outgoing)
	wordAt(t, b, entry+4, 0x7000)

	c.SetPC(0x5555)
	c.Regs[cpu.SP] = 0x9000
	c.Regs[cpu.PSWreg] = 0xabcd

	en.Raise(c, b, m, cpu.Fault{Kind: cpu.KindNormal, ISC: isc})

	if c.Regs[cpu.SP] != 0x9008 {
		t.Fatalf("SP = %#x, want %#x (two words pushed)", c.Regs[cpu.SP], 0x9008)
	}
	if got := readWord(t, b, 0x9004); got != 0x5555 {
		t.Errorf("pushed PC = %#x, want %#x", got, 0x5555)
	}
	if got := readWord(t, b, 0x9008); got != 0xabcd {
		t.Errorf("pushed PSW = %#x, want %#x", got, 0xabcd)
	}
	if c.PC() != 0x7000 {
		t.Errorf("PC = %#x, want %#x", c.PC(), 0x7000)
	}
	if c.Regs[cpu.PCBPreg] != 0 {
		t.Errorf("PCBP = %#x, want unchanged (no PCB switch)", c.Regs[cpu.PCBPreg])
	}
	if c.PSW().ISC() != 7 {
		t.Errorf("PSW.ISC = %d, want 7", c.PSW().ISC())
	}
	if c.PSW().ET() != uint8(cpu.KindNormal) {
		t.Errorf("PSW.ET = %d, want %d", c.PSW().ET(), uint8(cpu.KindNormal))
	}
}

// TestRaiseStackPushesOldPCBPAndSwitches confirms a stack-kind fault reads
// its handler PCB from the fixed stackPCBPAddr cell, pushes the outgoing
// PCBP onto the interrupt stack, and runs the 3-phase PCB switch.
func TestRaiseStackPushesOldPCBPAndSwitches(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	c.Regs[cpu.PCBPreg] = 0x1000
	c.Regs[cpu.ISPreg] = 0x9000
	wordAt(t, b, stackPCBPAddr, 0x2000)
	seedPCB(t, b, 0x2000, 0, 0x6000, 0x7000)

	en.Raise(c, b, m, cpu.Fault{Kind: cpu.KindStack})

	if c.Regs[cpu.ISPreg] != 0x9004 {
		t.Fatalf("ISP = %#x, want %#x (one word pushed)", c.Regs[cpu.ISPreg], 0x9004)
	}
	if got := readWord(t, b, 0x9004); got != 0x1000 {
		t.Errorf("pushed old PCBP = %#x, want %#x", got, 0x1000)
	}
	if c.Regs[cpu.PCBPreg] != 0x2000 {
		t.Errorf("PCBP = %#x, want %#x", c.Regs[cpu.PCBPreg], 0x2000)
	}
	if c.PC() != 0x6000 {
		t.Errorf("PC = %#x, want %#x", c.PC(), 0x6000)
	}
	if c.Regs[cpu.SP] != 0x7000 {
		t.Errorf("SP = %#x, want %#x", c.Regs[cpu.SP], 0x7000)
	}
	if c.PSW().ISC() != 7 || c.PSW().ET() != uint8(cpu.KindNormal) {
		t.Errorf("PSW ISC/ET = %d/%d, want 7/%d", c.PSW().ISC(), c.PSW().ET(), uint8(cpu.KindNormal))
	}
}

// TestRaiseProcessUsesProcessPCBPAddr confirms a process-kind fault reads
// its handler PCB from processPCBPAddr rather than stackPCBPAddr.
func TestRaiseProcessUsesProcessPCBPAddr(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	c.Regs[cpu.PCBPreg] = 0x1000
	wordAt(t, b, processPCBPAddr, 0x3000)
	seedPCB(t, b, 0x3000, 0, 0x6600, 0x7700)

	en.Raise(c, b, m, cpu.Fault{Kind: cpu.KindProcess})

	if c.Regs[cpu.PCBPreg] != 0x3000 {
		t.Fatalf("PCBP = %#x, want %#x", c.Regs[cpu.PCBPreg], 0x3000)
	}
	if c.PC() != 0x6600 {
		t.Errorf("PC = %#x, want %#x", c.PC(), 0x6600)
	}
}

// TestRaiseResetSwitchesWithoutPushingOldPCBP confirms a reset-kind fault
// reads its PCB from resetPCBPAddr, leaves the interrupt stack untouched,
// and stamps ISC/ET for a reset rather than a normal exception.
func TestRaiseResetSwitchesWithoutPushingOldPCBP(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	c.Regs[cpu.PCBPreg] = 0x1000
	c.Regs[cpu.ISPreg] = 0x9000
	wordAt(t, b, resetPCBPAddr, 0x2500)
	seedPCB(t, b, 0x2500, 0, 0x6000, 0x7000)

	en.Raise(c, b, m, cpu.Fault{Kind: cpu.KindReset})

	if c.Regs[cpu.ISPreg] != 0x9000 {
		t.Errorf("ISP = %#x, want unchanged %#x", c.Regs[cpu.ISPreg], 0x9000)
	}
	if c.Regs[cpu.PCBPreg] != 0x2500 {
		t.Errorf("PCBP = %#x, want %#x", c.Regs[cpu.PCBPreg], 0x2500)
	}
	if c.PSW().ET() != uint8(cpu.KindReset) {
		t.Errorf("PSW.ET = %d, want %d", c.PSW().ET(), uint8(cpu.KindReset))
	}
	if c.PSW().ISC() != cpu.IscExternalReset {
		t.Errorf("PSW.ISC = %d, want %d", c.PSW().ISC(), cpu.IscExternalReset)
	}
}

// TestRaiseSavesOutgoingPCBState confirms the outgoing PCB's PSW/PC/SP are
// written back before the new PCB is loaded.
func TestRaiseSavesOutgoingPCBState(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	c.Regs[cpu.PCBPreg] = 0x1000
	c.SetPC(0x9999)
	c.Regs[cpu.SP] = 0x7777

	wordAt(t, b, processPCBPAddr, 0x2000)
	seedPCB(t, b, 0x2000, 0, 0x1234, 0x4321)

	en.Raise(c, b, m, cpu.Fault{Kind: cpu.KindProcess})

	if savedPC := readWord(t, b, 0x1000+pcbPC); savedPC != 0x9999 {
		t.Errorf("outgoing PCB PC = %#x, want %#x", savedPC, 0x9999)
	}
	if savedSP := readWord(t, b, 0x1000+pcbSP); savedSP != 0x7777 {
		t.Errorf("outgoing PCB SP = %#x, want %#x", savedSP, 0x7777)
	}
}

// TestNestingDepthHaltsMachine reproduces spec.md section 7's nesting-depth
// safety valve: a fault raised while already maxNesting-1 deep halts the
// machine instead of recursing further.
func TestNestingDepthHaltsMachine(t *testing.T) {
	c, b, m := newTestRig()
	en := New()
	c.NestingDepth = maxNesting - 1

	en.Raise(c, b, m, cpu.Fault{Kind: cpu.KindNormal, ISC: 0})

	if !c.Halted {
		t.Errorf("expected the machine to halt past the nesting limit")
	}
	if c.NestingDepth != 0 {
		t.Errorf("NestingDepth = %d, want reset to 0 after halting", c.NestingDepth)
	}
}

// TestGateTraverses confirms GATE's two-operand traversal: a pointer read
// at i1, offset by i2, yields the new PSW/PC; PM comes from the outgoing
// CM and IPL/R are copied from the outgoing PSW, with ISC/TM/ET forced to
// 7/1/3, and no stack push occurs as part of the traversal.
func TestGateTraverses(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	const i1 = 0x3000
	const i2 = 0x10
	wordAt(t, b, i1, 0x4000) // pointer
	wordAt(t, b, 0x4000+i2, 0)
	wordAt(t, b, 0x4000+i2+4, 0x6000)

	p := c.PSW()
	p.SetCM(cpu.LevelExecutive)
	p.SetIPL(3)
	c.SetPSW(p)
	c.Regs[cpu.SP] = 0x9000

	if f := en.Gate(c, b, m, i1, i2); f != nil {
		t.Fatalf("unexpected gate fault: %v", f)
	}
	if c.PC() != 0x6000 {
		t.Errorf("PC = %#x, want %#x", c.PC(), 0x6000)
	}
	if c.PSW().PM() != cpu.LevelExecutive {
		t.Errorf("PM = %d, want %d", c.PSW().PM(), cpu.LevelExecutive)
	}
	if c.PSW().IPL() != 3 {
		t.Errorf("IPL = %d, want 3", c.PSW().IPL())
	}
	if c.PSW().ISC() != 7 || !c.PSW().TM() || c.PSW().ET() != uint8(cpu.KindNormal) {
		t.Errorf("ISC/TM/ET = %d/%v/%d, want 7/true/%d", c.PSW().ISC(), c.PSW().TM(), c.PSW().ET(), uint8(cpu.KindNormal))
	}
	if c.Regs[cpu.SP] != 0x9000 {
		t.Errorf("SP = %#x, want unchanged (gate traversal pushes nothing)", c.Regs[cpu.SP])
	}
}

// TestRetGRoundTripsQuickInterrupt confirms RetG unwinds exactly what a
// quick interrupt pushed onto the interrupt stack, restoring the
// interrupted PC and PSW.
func TestRetGRoundTripsQuickInterrupt(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	p := c.PSW()
	p.SetPM(cpu.LevelSupervisor)
	p.SetIPL(2)
	p.Value |= 0x40 // QIE, selecting the quick-interrupt path in Interrupt
	c.SetPSW(p)
	c.SetPC(0x5555)
	savedPC := c.PC()
	savedPSW := c.Regs[cpu.PSWreg]

	var raw cpu.PSW
	raw.SetIPL(4)
	raw.SetR(true) // exercises InheritQuick masking: only IPL/QIE should transfer

	const vector = 3
	vptr := quickIntVectBase + 8*uint32(vector)
	wordAt(t, b, vptr, raw.Value)
	wordAt(t, b, vptr+4, 0x8000)

	en.Interrupt(c, b, m, vector, 4)
	if c.PC() != 0x8000 {
		t.Fatalf("PC after quick interrupt = %#x, want %#x", c.PC(), 0x8000)
	}

	en.RetG(c, b)

	if c.PC() != savedPC {
		t.Errorf("PC after RetG = %#x, want the original %#x", c.PC(), savedPC)
	}
	if c.Regs[cpu.PSWreg] != savedPSW {
		t.Errorf("PSW after RetG = %#x, want the original %#x", c.Regs[cpu.PSWreg], savedPSW)
	}
	if c.Regs[cpu.ISPreg] != 0 {
		t.Errorf("ISP after RetG = %#x, want unwound back to 0", c.Regs[cpu.ISPreg])
	}
}

// TestInterruptFullPushesOldPCBPAndSwitches confirms a full (non-quick)
// interrupt reads its handler PCB from fullIntVectBase+4*vector, pushes the
// old PCBP onto the interrupt stack, and stamps the new PSW's IPL from the
// request.
func TestInterruptFullPushesOldPCBPAndSwitches(t *testing.T) {
	c, b, m := newTestRig()
	en := New()

	c.Regs[cpu.PCBPreg] = 0x1000
	c.Regs[cpu.ISPreg] = 0x9000

	const vector = 2
	wordAt(t, b, fullIntVectBase+4*uint32(vector), 0x2000)
	seedPCB(t, b, 0x2000, 0, 0x6000, 0x7000)

	en.Interrupt(c, b, m, vector, 9)

	if c.Regs[cpu.ISPreg] != 0x9004 {
		t.Fatalf("ISP = %#x, want %#x (old PCBP pushed)", c.Regs[cpu.ISPreg], 0x9004)
	}
	if got := readWord(t, b, 0x9004); got != 0x1000 {
		t.Errorf("pushed old PCBP = %#x, want %#x", got, 0x1000)
	}
	if c.Regs[cpu.PCBPreg] != 0x2000 {
		t.Errorf("PCBP = %#x, want %#x", c.Regs[cpu.PCBPreg], 0x2000)
	}
	if c.PC() != 0x6000 {
		t.Errorf("PC = %#x, want %#x", c.PC(), 0x6000)
	}
	if c.PSW().IPL() != 9 {
		t.Errorf("PSW.IPL = %d, want 9", c.PSW().IPL())
	}
	if c.PSW().ISC() != 7 || c.PSW().ET() != uint8(cpu.KindNormal) {
		t.Errorf("ISC/ET = %d/%d, want 7/%d", c.PSW().ISC(), c.PSW().ET(), uint8(cpu.KindNormal))
	}
}
