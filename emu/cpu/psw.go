/*
sim3b2 Processor Status Word.

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

import "github.com/wearch/sim3b2/emu/mmu"

// PSW bit layout (spec.md section 3). Rev 2 uses bits through QIE/CFD;
// Rev 3 adds X/AR/EXUC/EA in the high byte.
const (
	pswC    uint32 = 1 << 0 // carry
	pswV    uint32 = 1 << 1 // overflow
	pswZ    uint32 = 1 << 2 // zero
	pswN    uint32 = 1 << 3 // negative
	pswOE   uint32 = 1 << 4 // enable overflow trap
	pswCD   uint32 = 1 << 5 // cache disable
	pswQIE  uint32 = 1 << 6 // quick interrupt enable
	pswCFD  uint32 = 1 << 7 // cache flush disable
	pswIPLm uint32 = 0xf << 8
	pswTE   uint32 = 1 << 12 // trace enable
	pswCMm  uint32 = 0x3 << 13
	pswPMm  uint32 = 0x3 << 15
	pswIRm  uint32 = 0x3 << 17 // I/R initial-context flags
	pswISCm uint32 = 0xf << 19
	pswTMm  uint32 = 1 << 23
	pswETm  uint32 = 0x3 << 24
	pswX    uint32 = 1 << 26 // Rev 3: extended carry for BCD
	pswAR   uint32 = 1 << 27 // Rev 3: extra register save
	pswEXUC uint32 = 1 << 28 // Rev 3
	pswEA   uint32 = 1 << 29 // Rev 3: enable arbitrary alignment
)

// PSW wraps the 32-bit Processor Status Word (architecturally register 11)
// with named field accessors, the way the teacher's bit constants over
// cpuState.flags/ecMode/problem work, generalized to the full WE32100
// bitfield layout.
type PSW struct {
	Value uint32
}

func (p PSW) C() bool  { return p.Value&pswC != 0 }
func (p PSW) V() bool  { return p.Value&pswV != 0 }
func (p PSW) Z() bool  { return p.Value&pswZ != 0 }
func (p PSW) N() bool  { return p.Value&pswN != 0 }
func (p PSW) OE() bool { return p.Value&pswOE != 0 }
func (p PSW) CD() bool { return p.Value&pswCD != 0 }
func (p PSW) QIE() bool { return p.Value&pswQIE != 0 }
func (p PSW) CFD() bool { return p.Value&pswCFD != 0 }
func (p PSW) TE() bool  { return p.Value&pswTE != 0 }
func (p PSW) TM() bool  { return p.Value&pswTMm != 0 }
func (p PSW) X() bool   { return p.Value&pswX != 0 }
func (p PSW) EA() bool  { return p.Value&pswEA != 0 }
func (p PSW) R() bool   { return p.Value&(1<<17) != 0 } // low bit of I/R field
func (p PSW) I() bool   { return p.Value&(1<<18) != 0 }

func (p PSW) IPL() uint8 { return uint8((p.Value & pswIPLm) >> 8) }
func (p PSW) CM() uint8  { return uint8((p.Value & pswCMm) >> 13) }
func (p PSW) PM() uint8  { return uint8((p.Value & pswPMm) >> 15) }
func (p PSW) ISC() uint8 { return uint8((p.Value & pswISCm) >> 19) }
func (p PSW) ET() uint8  { return uint8((p.Value & pswETm) >> 24) }

func setField(v uint32, mask uint32, shift uint, bits uint8) uint32 {
	return (v &^ mask) | (uint32(bits) << shift)
}

func (p *PSW) SetC(b bool)  { p.setBit(pswC, b) }
func (p *PSW) SetV(b bool)  { p.setBit(pswV, b) }
func (p *PSW) SetZ(b bool)  { p.setBit(pswZ, b) }
func (p *PSW) SetN(b bool)  { p.setBit(pswN, b) }
func (p *PSW) SetTM(b bool) { p.setBit(pswTMm, b) }
func (p *PSW) SetR(b bool)  { p.setBit(1<<17, b) }
func (p *PSW) SetI(b bool)  { p.setBit(1<<18, b) }
func (p *PSW) SetX(b bool)  { p.setBit(pswX, b) }

func (p *PSW) setBit(mask uint32, on bool) {
	if on {
		p.Value |= mask
	} else {
		p.Value &^= mask
	}
}

// InheritQuick builds the new PSW a quick interrupt installs: only the
// IPL and QIE bits come from raw (the vector word read from the quick
// vector table), everything else is inherited from p (the outgoing PSW),
// then PM is forced to the outgoing CM and ISC/TM/ET stamped 7/0/3, per
// spec.md section 4.4's quick-interrupt microsequence.
func (p PSW) InheritQuick(raw uint32) PSW {
	mask := pswIPLm | pswQIE
	np := PSW{Value: (p.Value &^ mask) | (raw & mask)}
	np.SetPM(p.CM())
	np.SetISC(7)
	np.SetTM(false)
	np.SetET(KindNormal)
	return np
}

func (p *PSW) SetIPL(v uint8) { p.Value = setField(p.Value, pswIPLm, 8, v&0xf) }
func (p *PSW) SetCM(v uint8)  { p.Value = setField(p.Value, pswCMm, 13, v&0x3) }
func (p *PSW) SetPM(v uint8)  { p.Value = setField(p.Value, pswPMm, 15, v&0x3) }
func (p *PSW) SetISC(v uint8) { p.Value = setField(p.Value, pswISCm, 19, v&0xf) }
func (p *PSW) SetET(v ExceptionKind) { p.Value = setField(p.Value, pswETm, 24, uint8(v)&0x3) }

// SetNZ sets N and Z from result masked to the operand width, and clears
// C/V, the shared tail of spec.md section 4.5's data-movement flag rule.
func (p *PSW) SetNZ(result uint32, width int) {
	mask := widthMask(width)
	v := result & mask
	p.SetZ(v == 0)
	p.SetN(v&signBit(width) != 0)
	p.SetC(false)
	p.SetV(false)
}

func widthMask(width int) uint32 {
	switch width {
	case 8:
		return 0xff
	case 16:
		return 0xffff
	default:
		return 0xffffffff
	}
}

func signBit(width int) uint32 {
	switch width {
	case 8:
		return 0x80
	case 16:
		return 0x8000
	default:
		return 0x80000000
	}
}

// Execution levels, spec.md section 3.
const (
	LevelKernel     uint8 = 0
	LevelExecutive  uint8 = 1
	LevelSupervisor uint8 = 2
	LevelUser       uint8 = 3
)

// ExceptionKind is the PSW.ET encoding (spec.md GLOSSARY: ET 0=reset,
// 1=process, 2=stack, 3=normal).
type ExceptionKind uint8

const (
	KindReset   ExceptionKind = 0
	KindProcess ExceptionKind = 1
	KindStack   ExceptionKind = 2
	KindNormal  ExceptionKind = 3
)

// Fault is the trap condition an instruction hands back to the main loop,
// per spec.md section 9's typed-result-propagation design note. Opcode
// is populated only for the GATE/RETG family, letting the main loop route
// those to the Exception Engine's dedicated handling instead of a generic
// exception raise. MMUCode carries the specific translation-fault reason
// (spec.md section 7: "the specific MMU fault code in the fault-code
// register plus a normal exception") separately from ISC, since the 4-bit
// ISC field has no room left to encode all ten MMU fault kinds on its own.
type Fault struct {
	Kind     ExceptionKind
	ISC      uint8
	Opcode   uint16
	GateArg  uint32 // GATE: first traversal operand (i1)
	GateArg2 uint32 // GATE: second traversal operand (i2)
	MMUCode  mmu.FaultKind
}

// Internal state codes (ISC), spec.md section 7 taxonomy and
// original_source/3B2/3b2_cpu.c's trap assignments.
const (
	IscExternalReset      uint8 = 3
	IscIllegalOpcode      uint8 = 0
	IscPrivilegedOpcode   uint8 = 1
	IscReservedOpcode     uint8 = 2
	IscReservedDatatype   uint8 = 4
	IscInvalidDescriptor  uint8 = 5
	IscExternalMemory     uint8 = 6
	IscIntegerOverflow    uint8 = 7
	IscIntegerZeroDivide  uint8 = 8
	IscPrivilegedRegister uint8 = 9
	IscBreakpoint         uint8 = 10
	IscGateVector         uint8 = 11
	IscTrace              uint8 = 13
	IscDecimalTrap        uint8 = 14
)
