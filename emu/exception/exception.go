/*
sim3b2 Exception Engine: normal/stack/process/reset microsequences, gate
traversal, and interrupt dispatch.

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
	"log/slog"

	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/cpu"
	"github.com/wearch/sim3b2/emu/device"
	"github.com/wearch/sim3b2/emu/mmu"
)

const busWord = device.Word

// PCB field offsets (bytes from PCB base), spec.md section 3's PCB layout.
const (
	pcbPSW       = 0x00
	pcbPC        = 0x04
	pcbSP        = 0x08
	pcbStackBase = 0x0c
	pcbStackBnd  = 0x10
	pcbAP        = 0x14 // saved AP, written only when outgoing PSW.R is set
	pcbFP        = 0x18 // saved FP
	pcbR0        = 0x1c // saved R0..R8, 4 bytes apart
	pcbBlockMove = 0x40 // base of the (count,src,dst) triple list, PSW.R path
)

// Architecturally fixed physical addresses, spec.md section 4.4: the
// Reset/Process/Stack exceptions each read their handler PCB pointer from
// one of these low-memory cells, and interrupts index their own vector
// tables relative to fullIntVectBase/quickIntVectBase.
const (
	resetPCBPAddr      uint32 = 0x80
	processPCBPAddr    uint32 = 0x84
	stackPCBPAddr      uint32 = 0x88
	fullIntVectBase    uint32 = 0x8c
	quickIntVectBase   uint32 = 0x48c
	firstLevelVectBase uint32 = 0x0000 // normal exception's gate traversal i1
)

const maxNesting = 10 // spec.md section 7: halt the machine past this depth

// Engine implements cpu.ExceptionEngine. It operates on the Bus directly
// (physical addressing) for PCB manipulation, the way the teacher's
// cpu_system.go manipulates the low-memory PSW/IRQ-old-new-area directly
// rather than going through the paged view, since PCB state must remain
// reachable even when the MMU that maps it is what just faulted.
type Engine struct{}

// New builds an Engine. The Reset/Process/Stack PCB pointer cells and the
// interrupt vector tables all live at fixed physical addresses (spec.md
// section 4.4), so there is no per-machine configuration to carry.
func New() *Engine {
	return &Engine{}
}

var _ cpu.ExceptionEngine = (*Engine)(nil)

func (en *Engine) busRead(b *bus.Bus, pa uint32) uint32 {
	v, f := b.Read(pa, busWord, bus.FromCPU, false)
	if f != nil {
		slog.Error("exception engine: PCB read fault", "addr", pa, "err", f.Error())
		return 0
	}
	return v
}

func (en *Engine) busWrite(b *bus.Bus, pa uint32, v uint32) {
	if f := b.Write(pa, v, busWord, bus.FromCPU, false); f != nil {
		slog.Error("exception engine: PCB write fault", "addr", pa, "err", f.Error())
	}
}

// spInPCBBounds checks the running process's stack pointer against the
// bounds recorded in its own PCB (spec.md section 7's stack-fault
// category: "SP outside PCB bounds during push in exception sequence").
// With no PCB yet installed (PCBPreg still zero, e.g. very early boot)
// there is nothing to check against.
func (en *Engine) spInPCBBounds(c *cpu.CPU, b *bus.Bus) bool {
	pcb := c.Regs[cpu.PCBPreg]
	if pcb == 0 {
		return true
	}
	lo := en.busRead(b, pcb+pcbStackBase)
	hi := en.busRead(b, pcb+pcbStackBnd)
	sp := c.Regs[cpu.SP]
	return sp >= lo && sp <= hi
}

func (en *Engine) pushCurrentStack(c *cpu.CPU, b *bus.Bus, v uint32) {
	c.Regs[cpu.SP] += 4
	en.busWrite(b, c.Regs[cpu.SP], v)
}

func (en *Engine) pushInterruptStack(c *cpu.CPU, b *bus.Bus, v uint32) {
	c.Regs[cpu.ISPreg] += 4
	en.busWrite(b, c.Regs[cpu.ISPreg], v)
}

func (en *Engine) popInterruptStack(c *cpu.CPU, b *bus.Bus) uint32 {
	v := en.busRead(b, c.Regs[cpu.ISPreg])
	c.Regs[cpu.ISPreg] -= 4
	return v
}

// Raise drives the exception microsequence selected by f.Kind. A normal
// exception pushes the faulting PC/PSW onto the current stack and gates
// through the first-level vector table at firstLevelVectBase+isc*8 with no
// PCB switch; stack/process exceptions push the old PCBP onto the
// interrupt stack and switch to the PCB named at their fixed vector cell;
// a Reset-kind fault reruns the cold PCB load without pushing any state,
// per spec.md section 4.4's four-way taxonomy.
func (en *Engine) Raise(c *cpu.CPU, b *bus.Bus, m *mmu.MMU, f cpu.Fault) {
	c.NestingDepth++
	if c.NestingDepth >= maxNesting {
		slog.Error("exception nesting exceeded limit, halting", "depth", c.NestingDepth)
		c.Halted = true
		c.NestingDepth = 0
		return
	}
	defer func() { c.NestingDepth-- }()

	switch f.Kind {
	case cpu.KindReset:
		en.loadPCB(c, b, m, resetPCBPAddr, cpu.KindReset, false)
	case cpu.KindStack:
		en.loadPCB(c, b, m, stackPCBPAddr, cpu.KindStack, true)
	case cpu.KindProcess:
		en.loadPCB(c, b, m, processPCBPAddr, cpu.KindProcess, true)
	default: // KindNormal
		if !en.spInPCBBounds(c, b) {
			en.Raise(c, b, m, cpu.Fault{Kind: cpu.KindStack, ISC: f.ISC})
			return
		}
		en.pushCurrentStack(c, b, c.PC())
		en.pushCurrentStack(c, b, c.Regs[cpu.PSWreg])
		en.gateTraverse(c, b, firstLevelVectBase, uint32(f.ISC)<<3)
	}
}

// switchPCB performs spec.md section 4.4's 3-phase context switch: save
// the outgoing PC/PSW/SP (and, when the outgoing PSW.R bit is set, FP/
// AP/R0..R8) into the current PCB; load the incoming PCB's PSW/PC/SP,
// advancing PCBP by 12 first when the new PSW.I bit is set; clear the new
// PSW's TM bit; and, when the new PSW.R bit is set, run the embedded
// block-move descriptor list starting at newPCB+pcbBlockMove. Pushing the
// outgoing PCBP onto the interrupt stack, when required, is the caller's
// job -- it happens (or doesn't, for Reset) before this runs.
func (en *Engine) switchPCB(c *cpu.CPU, b *bus.Bus, m *mmu.MMU, newPCB uint32) {
	oldPCB := c.Regs[cpu.PCBPreg]
	outgoing := c.PSW()
	if oldPCB != 0 {
		en.busWrite(b, oldPCB+pcbPSW, c.Regs[cpu.PSWreg])
		en.busWrite(b, oldPCB+pcbPC, c.PC())
		en.busWrite(b, oldPCB+pcbSP, c.Regs[cpu.SP])
		if outgoing.R() {
			en.busWrite(b, oldPCB+pcbAP, c.Regs[cpu.AP])
			en.busWrite(b, oldPCB+pcbFP, c.Regs[cpu.FP])
			for i := 0; i <= cpu.R8; i++ {
				en.busWrite(b, oldPCB+pcbR0+uint32(4*i), c.Regs[i])
			}
		}
	}

	newPSW := en.busRead(b, newPCB+pcbPSW)
	newPC := en.busRead(b, newPCB+pcbPC)
	newSP := en.busRead(b, newPCB+pcbSP)

	p := cpu.PSW{Value: newPSW}
	c.SetPC(newPC)
	c.Regs[cpu.SP] = newSP
	c.Regs[cpu.PCBPreg] = newPCB
	if p.I() {
		c.Regs[cpu.PCBPreg] += 12
	}
	p.SetTM(false)
	c.SetPSW(p)

	if p.R() {
		en.runBlockMove(b, newPCB+pcbBlockMove)
	}

	if p.CM() == cpu.LevelKernel {
		m.Disable()
	} else {
		m.Enable()
	}
}

// runBlockMove copies the (count, source, destination) triples starting
// at base until a zero count terminates the list, spec.md section 4.4's
// phase-3 embedded block move.
func (en *Engine) runBlockMove(b *bus.Bus, base uint32) {
	addr := base
	for {
		count := en.busRead(b, addr)
		if count == 0 {
			return
		}
		src := en.busRead(b, addr+4)
		dst := en.busRead(b, addr+8)
		for i := uint32(0); i < count; i++ {
			en.busWrite(b, dst+4*i, en.busRead(b, src+4*i))
		}
		addr += 12
	}
}

// loadPCB is switchPCB's variant for the reset/stack/process taxonomy
// entries, which read their PCB pointer from a fixed physical cell rather
// than through the ISC-indexed first-level vector table. pushOld selects
// whether the outgoing PCBP is pushed onto the interrupt stack first
// (Stack and Process do; Reset switches without pushing any state) and
// which ISC/ET stamp the new PSW receives afterward.
func (en *Engine) loadPCB(c *cpu.CPU, b *bus.Bus, m *mmu.MMU, scbAddr uint32, kind cpu.ExceptionKind, pushOld bool) {
	newPCB := en.busRead(b, scbAddr)
	if pushOld {
		en.pushInterruptStack(c, b, c.Regs[cpu.PCBPreg])
	}
	en.switchPCB(c, b, m, newPCB)

	p := c.PSW()
	if pushOld {
		p.SetISC(7)
		p.SetTM(false)
		p.SetET(cpu.KindNormal)
	} else {
		p.SetISC(cpu.IscExternalReset)
		p.SetET(cpu.KindReset)
	}
	c.SetPSW(p)
}

// Interrupt drives a serviced interrupt request. A full interrupt pushes
// the old PCBP onto the interrupt stack and performs the same 3-phase PCB
// switch as an exception, loading the PCB named at fullIntVectBase+4*
// vector; a quick interrupt (when PSW.QIE is set) instead pushes a return
// frame on the interrupt stack and installs a new PSW/PC pair read from
// the quick vector table, without any PCB switch, per spec.md section
// 4.4's "full vs quick" split.
func (en *Engine) Interrupt(c *cpu.CPU, b *bus.Bus, m *mmu.MMU, vector uint16, ipl uint8) {
	if c.PSW().QIE() {
		en.quickInterrupt(c, b, vector)
		return
	}

	newPCB := en.busRead(b, fullIntVectBase+4*uint32(vector))
	en.pushInterruptStack(c, b, c.Regs[cpu.PCBPreg])

	outgoing := c.PSW()
	outgoing.SetET(cpu.KindNormal)
	outgoing.SetISC(0)
	outgoing.SetTM(false)
	c.SetPSW(outgoing)

	en.switchPCB(c, b, m, newPCB)

	p := c.PSW()
	p.SetISC(7)
	p.SetTM(false)
	p.SetET(cpu.KindNormal)
	p.SetIPL(ipl)
	c.SetPSW(p)
}

func (en *Engine) quickInterrupt(c *cpu.CPU, b *bus.Bus, vector uint16) {
	vptr := quickIntVectBase + 8*uint32(vector)

	en.pushInterruptStack(c, b, c.PC())
	en.pushInterruptStack(c, b, c.Regs[cpu.PSWreg])

	rawNewPSW := en.busRead(b, vptr)
	newPC := en.busRead(b, vptr+4)

	c.SetPSW(c.PSW().InheritQuick(rawNewPSW))
	c.SetPC(newPC)
}

// gateTraverse implements spec.md section 4.4's Gate traversal: read a
// pointer at physical i1, add i2, and read a new PSW and new PC from the
// resulting address. The new PSW has PM/IPL/R/ISC/TM/ET cleared then
// rebuilt: PM takes the outgoing CM, IPL and R are copied from the
// outgoing PSW, and ISC/TM/ET are forced to 7/1/3. Both the GATE
// instruction and the Normal-exception dispatch above share this
// mechanism; neither pushes anything as part of the traversal itself.
func (en *Engine) gateTraverse(c *cpu.CPU, b *bus.Bus, i1, i2 uint32) {
	ptr := en.busRead(b, i1)
	addr := ptr + i2
	raw := en.busRead(b, addr)
	newPC := en.busRead(b, addr+4)

	outgoing := c.PSW()
	p := cpu.PSW{Value: raw}
	p.SetPM(0)
	p.SetIPL(0)
	p.SetR(false)
	p.SetISC(0)
	p.SetTM(false)
	p.SetET(0)

	p.SetPM(outgoing.CM())
	p.SetIPL(outgoing.IPL())
	p.SetR(outgoing.R())
	p.SetISC(7)
	p.SetTM(true)
	p.SetET(cpu.KindNormal)

	c.SetPSW(p)
	c.SetPC(newPC)
}

// Gate executes a GATE instruction's level transition: i1 and i2 are the
// instruction's two decoded operand values (physical addresses/offsets,
// not registers), fed straight into gateTraverse. Spec.md section 8's
// "gate through ISC=5" scenario exercises exactly this path.
func (en *Engine) Gate(c *cpu.CPU, b *bus.Bus, m *mmu.MMU, i1, i2 uint32) *cpu.Fault {
	en.gateTraverse(c, b, i1, i2)
	return nil
}

// RetG unwinds a quick interrupt, popping the PSW/PC pair quickInterrupt
// pushed onto the interrupt stack (PSW popped first since it was pushed
// last) and restoring the interrupted context. Exported for emu/machine's
// RETG opcode interception.
func (en *Engine) RetG(c *cpu.CPU, b *bus.Bus) {
	psw := en.popInterruptStack(c, b)
	pc := en.popInterruptStack(c, b)
	c.Regs[cpu.PSWreg] = psw
	c.SetPC(pc)
}
