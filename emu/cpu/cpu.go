/*
sim3b2 CPU: instruction fetch, decode, and dispatch.

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

/*
The WE32100/WE32200 is a 32-bit CISC processor at the heart of the AT&T
3B2. Unlike the fixed-format instructions of simpler architectures, a
3B2 instruction is an opcode byte (optionally escaped through 0x30 into
a secondary table) followed by zero to four tagged operand descriptors;
each descriptor self-describes whether it is a literal, a register, or
a memory reference and, for memory references, which of the 17
addressing modes produced the effective address. Decode therefore walks
the instruction stream one descriptor at a time rather than unpacking a
fixed bit layout up front.
*/

package cpu

import (
	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/mmu"
)

// Reset clears architectural state to the cold-reset condition spec.md
// section 6 describes: PSW.ET=0 (reset), PC/SP zero, kernel execution
// level, paging disabled pending the first LPSW off the reset PCB.
func (c *CPU) Reset() {
	for i := range c.Regs {
		c.Regs[i] = 0
	}
	p := PSW{}
	p.SetET(KindReset)
	p.SetCM(LevelKernel)
	p.SetPM(LevelKernel)
	c.SetPSW(p)
	c.Halted = false
	c.Idle = false
	c.Str = StringState{}
	c.NestingDepth = 0
}

// fetchOpcode reads the next opcode byte(s) at PC, handling the 0x30
// escape to the secondary table. Returns the dispatch key used by table
// and table2, and the number of opcode bytes consumed.
func fetchOpcode(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (key uint16, secondary bool, f *Fault) {
	first, f := fetchByte(c, b, m, pc)
	if f != nil {
		return 0, false, f
	}
	if first != escapePrefix {
		return uint16(first), false, nil
	}
	second, f := fetchByte(c, b, m, pc)
	if f != nil {
		return 0, false, f
	}
	return uint16(second), true, nil
}

// RunOne fetches, decodes, and executes exactly one instruction at the
// current PC, advancing PC across it on success. It returns a non-nil
// Fault when decode or execution raised an exception condition; the
// caller (emu/machine) routes that through the ExceptionEngine and must
// not advance PC itself -- the Exception Engine's microsequence takes
// over addressing from the faulting instruction's own PC per spec.md
// section 4.4.
func (c *CPU) RunOne(b *bus.Bus, m *mmu.MMU) *Fault {
	if c.Str.Active {
		return c.resumeString(b, m)
	}

	startPC := c.PC()
	pc := startPC

	key, secondary, f := fetchOpcode(c, b, m, &pc)
	if f != nil {
		return f
	}

	tbl := table
	if secondary {
		tbl = table2
	}
	entry, ok := tbl[key]
	if !ok {
		return &Fault{Kind: KindNormal, ISC: IscIllegalOpcode}
	}

	var st stepState
	st.opcode = key
	if secondary {
		st.opcode = escapePrefix<<8 | key
	}
	st.startPC = startPC
	st.width = entry.width
	st.nops = entry.nops

	for i := 0; i < entry.nops; i++ {
		op, f := decodeDescriptor(c, b, m, &pc)
		if f != nil {
			return f
		}
		st.ops[i] = op
	}

	env := execEnv{Bus: b, MMU: m}
	c.SetPC(pc)

	if f := entry.fn(c, env, &st); f != nil {
		return f
	}

	if c.HistoryLen > 0 {
		he := HistoryEntry{
			PC:        startPC,
			PSW:       c.Regs[PSWreg],
			SP:        c.Regs[SP],
			Opcode:    st.opcode,
			Mnemonic:  mnemonicFor(st.opcode),
			NOperands: st.nops,
		}
		for i := 0; i < st.nops && i < len(he.Operands); i++ {
			op := st.ops[i]
			ho := HistoryOperand{Mode: op.Kind}
			if op.IsReg {
				ho.Reg = op.Reg
			}
			if op.IsLiteral {
				ho.Imm = op.Literal
			}
			if v, f := op.Read(c, b, m, st.width); f == nil {
				ho.Value = v
			}
			he.Operands[i] = ho
		}
		c.PushHistory(he)
	}
	return nil
}

// resumeString continues an interrupted block-move instruction. The
// MOVBLW and STRCPY handlers move one unit per call and leave c.Str.Active
// set while work remains, so each later RunOne lands here (after the main
// loop has had a chance to service an interrupt between units);
// re-entering the same handler with the saved State continues exactly
// where it left off. STREND completes in one call and never comes here.
func (c *CPU) resumeString(b *bus.Bus, m *mmu.MMU) *Fault {
	env := execEnv{Bus: b, MMU: m}
	var st stepState
	switch c.Str.Opcode {
	case opMovblwX:
		return execMovblw(c, env, &st)
	case opStrcpy:
		return execStrcpy(c, env, &st)
	default:
		c.Str.Active = false
		return nil
	}
}
