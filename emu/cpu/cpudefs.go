/*
sim3b2 CPU register file and execution-engine seams.

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
	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/device"
	"github.com/wearch/sim3b2/emu/mmu"
)

// General-register numbers, WE32100 programming model.
const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	FP
	AP
	PSWreg
	SP
	PCBPreg
	ISPreg
	PCreg
	numRegs
)

// extRegBase is where the Rev 3 extended register file (r16-r31, reached
// through the 0xCB addressing prefix) starts within CPU.Regs. Rev 2 chips
// never address past numRegs-1.
const extRegBase = 16
const numRegsRev3 = extRegBase + 16

// StringState carries the in-flight state of an interruptible block-move
// instruction (MOVBLW, STRCPY) across a restart, spec.md section
// 4.5's "interruptible/restartable" requirement.
type StringState struct {
	Active  bool
	Opcode  uint16
	Src     uint32
	Dst     uint32
	Count   uint32
	Fill    uint8
	Operand uint8 // STREND: terminator byte
}

// HistoryOperand is one decoded operand captured into a HistoryEntry:
// its addressing mode, the register it named (when register-addressed),
// any embedded immediate/literal, and the value last read or written
// through it.
type HistoryOperand struct {
	Mode  opKind
	Reg   int
	Imm   int32
	Value uint32
}

// HistoryEntry records one retired instruction for SHOW CPU HISTORY,
// modeled on original_source/3B2/3b2_cpu.h's instr struct, extended with
// the PSW/SP snapshot and decoded operands spec.md section 3 asks for.
type HistoryEntry struct {
	PC        uint32
	PSW       uint32
	SP        uint32
	Opcode    uint16
	Mnemonic  string
	Operands  [4]HistoryOperand
	NOperands int
	Bytes     [12]byte
	Len       int
}

// ExceptionEngine is implemented by emu/exception.Engine. It is declared
// here, not there, so the cpu package never imports the exception package:
// the CPU's own struct and fault types live here, and wiring happens one
// level up, in emu/machine (spec.md section 9: "avoid back-references by
// passing the state as an explicit parameter to every call").
type ExceptionEngine interface {
	// Raise drives the full exception microsequence (normal, stack,
	// process or reset per f.Kind) for a fault detected during decode
	// or execute of the instruction at the current PC.
	Raise(c *CPU, b *bus.Bus, m *mmu.MMU, f Fault)

	// Interrupt drives a serviced interrupt request: full or quick
	// microsequence depending on c.PSW().QIE and the request's IPL.
	Interrupt(c *CPU, b *bus.Bus, m *mmu.MMU, vector uint16, ipl uint8)

	// Gate performs a GATE instruction's traversal: read a pointer at
	// physical i1, add i2, and install the new PSW/PC found there.
	Gate(c *CPU, b *bus.Bus, m *mmu.MMU, i1, i2 uint32) *Fault

	// RetG unwinds the return frame a quick interrupt pushed onto the
	// interrupt stack, restoring the interrupted PSW/PC.
	RetG(c *CPU, b *bus.Bus)
}

// CPU holds the WE32100/WE32200 architectural state: 32 register slots
// (the sixteen mapped registers R0-R8 general purpose and FP/AP/PSW/SP/
// PCBP/ISP/PC dedicated, plus the Rev 3 extended registers r16-r31), the
// in-flight block-move state, and the configuration knobs SET CPU exposes.
// It never references emu/exception directly -- RunOne returns a *Fault
// and emu/machine hands it to the ExceptionEngine.
type CPU struct {
	Regs [numRegsRev3]uint32

	Rev3 bool

	Str StringState

	History    []HistoryEntry
	HistoryLen int
	histNext   int

	Halted bool
	Idle   bool

	NestingDepth int

	// configuration, SET CPU
	EnableIdle bool
	ExBreak    bool
	OpBreak    bool
}

// New builds a CPU with the given instruction-history ring capacity.
func New(histLen int) *CPU {
	return &CPU{HistoryLen: histLen, History: make([]HistoryEntry, histLen)}
}

func (c *CPU) PSW() PSW       { return PSW{Value: c.Regs[PSWreg]} }
func (c *CPU) SetPSW(p PSW)   { c.Regs[PSWreg] = p.Value }
func (c *CPU) PC() uint32     { return c.Regs[PCreg] }
func (c *CPU) SetPC(v uint32) { c.Regs[PCreg] = v }
func (c *CPU) SPval() uint32  { return c.Regs[SP] }

// PushHistory records a retired instruction, overwriting the oldest slot
// once the ring is full (spec.md section 6, SHOW CPU HISTORY).
func (c *CPU) PushHistory(e HistoryEntry) {
	if c.HistoryLen == 0 {
		return
	}
	c.History[c.histNext] = e
	c.histNext = (c.histNext + 1) % c.HistoryLen
}

// busSize maps an operand width in bits to device.AccessSize.
func busSize(width int) device.AccessSize {
	switch width {
	case 8:
		return device.Byte
	case 16:
		return device.Halfword
	default:
		return device.Word
	}
}
