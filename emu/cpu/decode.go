/*
sim3b2 instruction operand decode: tagged addressing-mode descriptors.

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
	"github.com/wearch/sim3b2/emu/mmu"
)

// opKind tags how an operand descriptor byte resolves, mirroring
// original_source/3B2/3b2_cpu.h's addr_mode enum.
type opKind uint8

const (
	kindPosLit  opKind = iota // 00xxxxxx: positive literal, value in low 6 bits
	kindNegLit                // 111xxxxx: negative literal, the byte read as a signed value
	kindReg                   // register-direct
	kindRegDef                // register-deferred (indirect through register)
	kindFPShort               // FP short offset (decodeShortOffset)
	kindByteDisp
	kindHalfDisp
	kindWordDisp
	kindByteDispDef
	kindHalfDispDef
	kindWordDispDef
	kindAPShort
	kindFPShortNeg
	kindImmediate
	kindAbsolute
	kindAbsoluteDef
	kindByteImm
	kindHalfImm
	kindWordImm
	kindExpanded // 0xE0 prefix: expanded-datatype operand (decodeExpanded)
)

// Operand is the decoded descriptor for one instruction argument: either
// a literal value, a general register number, or an effective address to
// be read/written through the Bus/MMU. Exactly one of (Literal valid) or
// (Addr valid) applies, matching spec.md section 4.5's operand model.
type Operand struct {
	Kind      opKind
	IsLiteral bool
	Literal   int32
	Reg       int  // valid when addressing a register directly
	IsReg     bool
	Addr      uint32 // effective virtual address, valid otherwise
	Deferred  bool   // one extra indirection already resolved into Addr
}

// decodeDescriptor reads one operand-descriptor byte at *pc (advancing it)
// and any trailing displacement/immediate bytes, resolving register and
// register-deferred operands immediately and leaving memory operands as
// a virtual address in Operand.Addr. This follows the teacher's
// decode-then-execute staging (stepInfo filled before the opcode handler
// runs) generalized to the WE32100's per-operand tagged descriptors.
func decodeDescriptor(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (Operand, *Fault) {
	d, f := fetchByte(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}

	// Rev 3 chips recognize five addressing-prefix bytes the Rev 2
	// encoding gives other meanings; Rev 2 never takes this branch, so
	// those bytes keep their ordinary register-deferred/displacement
	// meaning there.
	if c.Rev3 {
		switch d {
		case 0x5b:
			return decodeAutoIncDec(c, b, m, pc)
		case 0xcb:
			return decodeExtendedReg(c, b, m, pc)
		case 0xab:
			return decodeIndexed(c, b, m, pc, 8)
		case 0xbb:
			return decodeIndexed(c, b, m, pc, 16)
		case 0xdb:
			return decodeIndexedScaled(c, b, m, pc)
		}
	}

	switch {
	case d&0xc0 == 0: // 00xxxxxx positive literal, 6-bit value 0-63
		return Operand{Kind: kindPosLit, IsLiteral: true, Literal: int32(d & 0x3f)}, nil

	case d&0xf0 == 0x40: // register, low nibble selects r0-r8,fp,ap,psw,sp,pcbp,isp,pc
		return Operand{Kind: kindReg, IsReg: true, Reg: int(d & 0x0f)}, nil

	case d&0xf0 == 0x50: // register deferred
		reg := int(d & 0x0f)
		return Operand{Kind: kindRegDef, Addr: c.Regs[reg]}, nil

	case d == 0x8f, d == 0x9f, d == 0xaf, d == 0xce, d == 0xdf:
		return decodeAbsoluteOrImmediate(c, b, m, pc, d)

	case d&0xf0 == 0x60, d&0xf0 == 0x70, d&0xf0 == 0x80, d&0xf0 == 0x90, d&0xf0 == 0xa0, d&0xf0 == 0xb0:
		return decodeDisplacement(c, b, m, pc, d)

	case d == 0xe0: // mode 14 "expanded datatype" prefix
		return decodeExpanded(c, b, m, pc)
	case d == 0xe1: // FP short offset
		return decodeShortOffset(c, b, m, pc, FP, false)
	case d == 0xe2: // AP short offset
		return decodeShortOffset(c, b, m, pc, AP, false)
	case d == 0xe3: // FP short offset, displacement forced negative
		return decodeShortOffset(c, b, m, pc, FP, true)

	case d&0xe0 == 0xe0: // 111xxxxx negative literal
		return Operand{Kind: kindNegLit, IsLiteral: true, Literal: int32(int8(d | 0xe0))}, nil

	default:
		return Operand{}, &Fault{Kind: KindNormal, ISC: IscReservedOpcode}
	}
}

// decodeShortOffset resolves FP_SHORT_OFF/AP_SHORT_OFF: a displacement
// byte follows the descriptor and is added to (or, for the "negative"
// form, subtracted from) the given base register. original_source/3B2's
// addr_mode enum names these modes but the decode routine that assigns
// them byte patterns wasn't part of the retrieved sources; this follows
// the same fetch-displacement-then-add shape as decodeDisplacement's
// byte-displacement case (DESIGN.md notes the approximation).
func decodeShortOffset(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32, baseReg int, negate bool) (Operand, *Fault) {
	disp, f := fetchByteSigned(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}
	kind := kindFPShort
	if negate {
		kind = kindFPShortNeg
		disp = -disp
	} else if baseReg == AP {
		kind = kindAPShort
	}
	return Operand{Kind: kind, Addr: c.Regs[baseReg] + uint32(disp)}, nil
}

// decodeExpanded resolves the mode-14 expanded-datatype prefix: a
// datatype byte (valid codes 0,2,3,4,6,7 per spec.md section 4.5) selects
// the operand's width, followed by a directly embedded value of that
// width. Real WE32100 expanded operands name floating-point and packed-
// decimal datatypes this core doesn't otherwise implement arithmetic
// for; decoding resolves to a plain sized immediate so instructions that
// only move or compare the operand still work (DESIGN.md: approximation,
// not full FP/decimal datatype support).
func decodeExpanded(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (Operand, *Fault) {
	tag, f := fetchByte(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}
	switch tag & 0x07 {
	case 0: // byte-sized expanded datatype
		v, f := fetchByteSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindExpanded, IsLiteral: true, Literal: v}, nil
	case 2, 3: // halfword-sized
		v, f := fetchHalfSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindExpanded, IsLiteral: true, Literal: v}, nil
	case 4, 6, 7: // word-sized (includes the approximated float/decimal tags)
		v, f := fetchWordSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindImmediate, IsLiteral: true, Literal: v}, nil
	default:
		return Operand{}, &Fault{Kind: KindNormal, ISC: IscReservedDatatype}
	}
}

// decodeAutoIncDec resolves the Rev 3 auto pre-decrement/post-increment
// prefix (0x5B): the following byte's bit 4 picks pre-decrement (1) or
// post-increment (0) and its low nibble picks the register. Real hardware
// scales the step by the operand's width; that width isn't known yet at
// this point in decode, so the step is fixed at one word (DESIGN.md notes
// the approximation).
func decodeAutoIncDec(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (Operand, *Fault) {
	sel, f := fetchByte(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}
	reg := int(sel & 0x0f)
	const step = 4
	if sel&0x10 != 0 { // pre-decrement
		c.Regs[reg] -= step
		return Operand{Kind: kindRegDef, Addr: c.Regs[reg]}, nil
	}
	addr := c.Regs[reg] // post-increment
	c.Regs[reg] += step
	return Operand{Kind: kindRegDef, Addr: addr}, nil
}

// decodeExtendedReg resolves the Rev 3 extended-register-file prefix
// (0xCB): the following byte's low nibble selects one of r16-r31, stored
// past the Rev 2 register file in CPU.Regs.
func decodeExtendedReg(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (Operand, *Fault) {
	sel, f := fetchByte(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}
	reg := extRegBase + int(sel&0x0f)
	if sel&0x80 != 0 { // deferred through the extended register
		return Operand{Kind: kindRegDef, Addr: c.Regs[reg]}, nil
	}
	return Operand{Kind: kindReg, IsReg: true, Reg: reg}, nil
}

// decodeIndexed resolves the Rev 3 indexed-with-displacement prefixes
// (0xAB byte displacement, 0xBB halfword displacement): one byte names
// base register (high nibble) and index register (low nibble), then a
// signed displacement of dispWidth bits follows. EA = base + index +
// disp, the classic indexed-addressing shape also used by decodeIndexed
// Scaled below.
func decodeIndexed(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32, dispWidth int) (Operand, *Fault) {
	sel, f := fetchByte(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}
	baseReg := int(sel >> 4)
	idxReg := int(sel & 0x0f)
	var disp int32
	if dispWidth == 8 {
		disp, f = fetchByteSigned(c, b, m, pc)
	} else {
		disp, f = fetchHalfSigned(c, b, m, pc)
	}
	if f != nil {
		return Operand{}, f
	}
	addr := c.Regs[baseReg] + c.Regs[idxReg] + uint32(disp)
	return Operand{Kind: kindWordDisp, Addr: addr}, nil
}

// decodeIndexedScaled resolves the Rev 3 scaled-index prefix (0xDB): one
// byte names base/index registers, a second gives the scale factor
// (1/2/4/8, clamped); EA = base + index*scale.
func decodeIndexedScaled(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (Operand, *Fault) {
	sel, f := fetchByte(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}
	scaleByte, f := fetchByte(c, b, m, pc)
	if f != nil {
		return Operand{}, f
	}
	baseReg := int(sel >> 4)
	idxReg := int(sel & 0x0f)
	scale := uint32(scaleByte & 0x0f)
	switch scale {
	case 0, 1:
		scale = 1
	case 2, 3:
		scale = 2
	case 4, 5, 6, 7:
		scale = 4
	default:
		scale = 8
	}
	addr := c.Regs[baseReg] + c.Regs[idxReg]*scale
	return Operand{Kind: kindWordDisp, Addr: addr}, nil
}

// decodeDisplacement resolves the byte/halfword/word-displacement and
// their deferred counterparts, the bulk of the WE32100's memory-operand
// encodings (descriptor high nibble 0x6-0xB per 3b2_cpu.h's addr_mode
// table).
func decodeDisplacement(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32, d byte) (Operand, *Fault) {
	reg := int(d & 0x0f)
	sub := d & 0xf0

	base := func() uint32 {
		if reg == 0x0f { // PC-relative: base is address *after* the displacement
			return 0 // filled in below once displacement size is known
		}
		return c.Regs[reg]
	}

	switch sub {
	case 0x60, 0x70: // byte displacement / byte displacement deferred
		disp, f := fetchByteSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		addr := base() + uint32(disp)
		if reg == 0x0f {
			addr = *pc + uint32(disp)
		}
		if sub == 0x70 {
			v, f := readMem(c, b, m, addr, 32)
			if f != nil {
				return Operand{}, f
			}
			return Operand{Kind: kindByteDispDef, Addr: v, Deferred: true}, nil
		}
		return Operand{Kind: kindByteDisp, Addr: addr}, nil

	case 0x80, 0x90: // halfword displacement / deferred
		disp, f := fetchHalfSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		addr := base() + uint32(disp)
		if reg == 0x0f {
			addr = *pc + uint32(disp)
		}
		if sub == 0x90 {
			v, f := readMem(c, b, m, addr, 32)
			if f != nil {
				return Operand{}, f
			}
			return Operand{Kind: kindHalfDispDef, Addr: v, Deferred: true}, nil
		}
		return Operand{Kind: kindHalfDisp, Addr: addr}, nil

	case 0xa0, 0xb0: // word displacement / deferred
		disp, f := fetchWordSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		addr := base() + uint32(disp)
		if reg == 0x0f {
			addr = *pc + uint32(disp)
		}
		if sub == 0xb0 {
			v, f := readMem(c, b, m, addr, 32)
			if f != nil {
				return Operand{}, f
			}
			return Operand{Kind: kindWordDispDef, Addr: v, Deferred: true}, nil
		}
		return Operand{Kind: kindWordDisp, Addr: addr}, nil

	default:
		return Operand{}, &Fault{Kind: KindNormal, ISC: IscReservedOpcode}
	}
}

// decodeAbsoluteOrImmediate resolves absolute addressing and the
// byte/halfword/word immediate forms.
func decodeAbsoluteOrImmediate(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32, d byte) (Operand, *Fault) {
	switch d {
	case 0xce: // absolute
		addr, f := fetchWordUnsigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindAbsolute, Addr: addr}, nil
	case 0xdf: // absolute deferred
		addr, f := fetchWordUnsigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		v, f := readMem(c, b, m, addr, 32)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindAbsoluteDef, Addr: v, Deferred: true}, nil
	case 0x8f: // byte immediate
		v, f := fetchByteSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindByteImm, IsLiteral: true, Literal: int32(v)}, nil
	case 0x9f: // halfword immediate
		v, f := fetchHalfSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindHalfImm, IsLiteral: true, Literal: int32(v)}, nil
	case 0xaf: // word immediate
		v, f := fetchWordSigned(c, b, m, pc)
		if f != nil {
			return Operand{}, f
		}
		return Operand{Kind: kindWordImm, IsLiteral: true, Literal: v}, nil
	default:
		return Operand{}, &Fault{Kind: KindNormal, ISC: IscReservedOpcode}
	}
}

// --- fetch helpers: read the instruction stream through the MMU in the
// current execution level, advancing *pc. ---

func fetchByte(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (byte, *Fault) {
	v, f := readMem(c, b, m, *pc, 8)
	if f != nil {
		return 0, f
	}
	*pc++
	return byte(v), nil
}

func fetchByteSigned(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (int32, *Fault) {
	v, f := fetchByte(c, b, m, pc)
	if f != nil {
		return 0, f
	}
	return int32(int8(v)), nil
}

func fetchHalfSigned(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (int32, *Fault) {
	v, f := readMem(c, b, m, *pc, 16)
	if f != nil {
		return 0, f
	}
	*pc += 2
	return int32(int16(v)), nil
}

func fetchWordSigned(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (int32, *Fault) {
	v, f := readMem(c, b, m, *pc, 32)
	if f != nil {
		return 0, f
	}
	*pc += 4
	return int32(v), nil
}

func fetchWordUnsigned(c *CPU, b *bus.Bus, m *mmu.MMU, pc *uint32) (uint32, *Fault) {
	v, f := readMem(c, b, m, *pc, 32)
	if f != nil {
		return 0, f
	}
	*pc += 4
	return v, nil
}

// readMem translates va through the MMU (when enabled) then performs the
// sized physical read, surfacing either side's fault as a cpu.Fault.
func readMem(c *CPU, b *bus.Bus, m *mmu.MMU, va uint32, width int) (uint32, *Fault) {
	pa := va
	if m.Enabled() {
		p, mf := m.Translate(va, mmu.AccessRead, c.PSW().CM(), true)
		if mf != nil {
			return 0, &Fault{Kind: KindNormal, ISC: IscInvalidDescriptor, MMUCode: mf.Kind}
		}
		pa = p
	}
	v, bf := b.Read(pa, busSize(width), bus.FromCPU, c.Rev3 && c.PSW().EA())
	if bf != nil {
		return 0, &Fault{Kind: KindNormal, ISC: IscExternalMemory}
	}
	if width == 8 {
		return v & 0xff, nil
	} else if width == 16 {
		return v & 0xffff, nil
	}
	return v, nil
}

func writeMem(c *CPU, b *bus.Bus, m *mmu.MMU, va uint32, val uint32, width int) *Fault {
	pa := va
	if m.Enabled() {
		p, mf := m.Translate(va, mmu.AccessWrite, c.PSW().CM(), true)
		if mf != nil {
			return &Fault{Kind: KindNormal, ISC: IscInvalidDescriptor, MMUCode: mf.Kind}
		}
		pa = p
	}
	if bf := b.Write(pa, val, busSize(width), bus.FromCPU, c.Rev3 && c.PSW().EA()); bf != nil {
		return &Fault{Kind: KindNormal, ISC: IscExternalMemory}
	}
	return nil
}

// Read materializes an operand's value at the given width: a literal,
// a register's contents, or a load from its effective address.
func (op Operand) Read(c *CPU, b *bus.Bus, m *mmu.MMU, width int) (uint32, *Fault) {
	switch {
	case op.IsLiteral:
		return uint32(op.Literal) & widthMask(width), nil
	case op.IsReg:
		return c.Regs[op.Reg] & widthMask(width), nil
	default:
		return readMem(c, b, m, op.Addr, width)
	}
}

// Write stores val into the operand's destination (register or memory).
// Writing a literal operand is an encoding the caller must never produce.
func (op Operand) Write(c *CPU, b *bus.Bus, m *mmu.MMU, val uint32, width int) *Fault {
	if op.IsReg {
		c.Regs[op.Reg] = (c.Regs[op.Reg] &^ widthMask(width)) | (val & widthMask(width))
		return nil
	}
	return writeMem(c, b, m, op.Addr, val, width)
}

// EffectiveAddr returns an operand's address for instructions that need
// the address itself rather than its contents (MOVA, PUSHAW, JUMP).
func (op Operand) EffectiveAddr(c *CPU) uint32 {
	if op.IsReg {
		return c.Regs[op.Reg]
	}
	return op.Addr
}
