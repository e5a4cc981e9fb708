/*
sim3b2 opcode encodings, grounded in the WE32100 byte assignments recorded
in original_source/3B2/3b2_cpu.h.

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

// Primary (single-byte) opcodes. The arithmetic/logical/shift/bit-field
// group (0x9e-0xfc) mirrors the real WE32100 byte assignments recorded in
// original_source/3B2/3b2_cpu.h; the data-movement, stack, and branch
// group below it (0x04-0x44) follows the same source's low-opcode-space
// layout, as do the INC/DEC/MCOM/MNEG/CLR/SWAP/decimal additions below --
// every mnemonic spec.md section 4.5 names by name gets at least one
// working width here. A handful of bytes (LRA, and the decimal-family
// byte collision noted at opTgedth's secondary-table entry) have no
// surviving real hardware assignment in the retrieved source and are
// invented; DESIGN.md records each one. Unlisted byte values still fault
// as reserved opcode.
const (
	opHalt    = 0x00
	opSPOP    = 0x02
	opRet     = 0x04
	opMovblw  = 0x06 // primary-table short form; 0x30-escaped MOVBLW below is canonical
	opSave    = 0x13
	opSPOPWD  = 0x16
	opRestore = 0x1d
	opCall    = 0x2c
	opBPT     = 0x38
	opWait    = 0x3b
	opEret    = 0x3e

	opMovw = 0x40
	opMovb = 0x41
	opMovh = 0x42
	opMova = 0x43
	opJsb  = 0x44
	opJump = 0x32
	opCmpw = 0x87

	opBr   = 0x50
	opBne  = 0x51
	opBeq  = 0x52
	opBgt  = 0x53
	opBle  = 0x54
	opBge  = 0x55
	opBlt  = 0x56
	opBgtu = 0x57
	opBleu = 0x58
	opBvc  = 0x59
	opBvs  = 0x5a
	opBcc  = 0x5b
	opBcs  = 0x5c

	opPackb   = 0x07
	opUnpackb = 0x47

	opAddh2 = 0x9e
	opAddb2 = 0x9f
	opPushw = 0xa0
	opModw2 = 0xa4
	opMulw2 = 0xa8
	opDivw2 = 0xac
	opOrw2  = 0xb0
	opXorw2 = 0xb4
	opAndw2 = 0xb8
	opSubw2 = 0xbc

	opAlsw3  = 0xc0
	opArsw3  = 0xc4
	opInsfw  = 0xc8
	opExtfw  = 0xcc
	opLlsw3  = 0xd0
	opLrsw3  = 0xd4
	opRotw   = 0xd8
	opAddw3  = 0xdc
	opPushaw = 0xe0

	opModw3 = 0xe4
	opMulw3 = 0xe8
	opDivw3 = 0xec
	opOrw3  = 0xf0
	opXorw3 = 0xf4
	opAndw3 = 0xf8
	opSubw3 = 0xfc

	// H/B-width siblings of the 2-op/3-op arithmetic and logical families
	// above: same real byte assignments, reusing the width-generic
	// handlers with width set to 16 or 8.
	opAddw2 = 0x9c
	opAddh3 = 0xde
	opAddb3 = 0xdf

	opSubh2 = 0xbe
	opSubb2 = 0xbf
	opSubh3 = 0xfe
	opSubb3 = 0xff

	opMulh2 = 0xaa
	opMulb2 = 0xab
	opMulh3 = 0xea
	opMulb3 = 0xeb

	opDivh2 = 0xae
	opDivb2 = 0xaf
	opDivh3 = 0xee
	opDivb3 = 0xef

	opModh2 = 0xa6
	opModb2 = 0xa7
	opModh3 = 0xe6
	opModb3 = 0xe7

	opOrh2 = 0xb2
	opOrb2 = 0xb3
	opOrh3 = 0xf2
	opOrb3 = 0xf3

	opXorh2 = 0xb6
	opXorb2 = 0xb7
	opXorh3 = 0xf6
	opXorb3 = 0xf7

	opAndh2 = 0xba
	opAndb2 = 0xbb
	opAndh3 = 0xfa
	opAndb3 = 0xfb

	// INC/DEC, complement and negate (spec.md section 4.5 Arithmetic).
	opIncw = 0x90
	opInch = 0x92
	opIncb = 0x93
	opDecw = 0x94
	opDech = 0x96
	opDecb = 0x97

	opMcomw = 0x88
	opMcomh = 0x8a
	opMcomb = 0x8b
	opMnegw = 0x8c
	opMnegh = 0x8e
	opMnegb = 0x8f

	// Data movement: CLR, POPW, MOVTRW, SWAP*, LRA.
	opClrw = 0x80
	opClrh = 0x82
	opClrb = 0x83

	opMovtrw = 0x0c
	opPopw   = 0x20

	opSwapwi = 0x1c
	opSwaphi = 0x1e
	opSwapbi = 0x1f

	// LRA has no surviving byte in the retrieved source; invented here
	// and aliased to MOVA's semantics (DESIGN.md records the decision).
	opLra = 0x05

	// Control flow: branch-to-subroutine and its return.
	opBsbh = 0x36
	opBsbb = 0x37
	opRsb  = 0x78

	// Decimal/packed-BCD family (spec.md section 4.5 Decimal), beyond
	// PACKB/UNPACKB above.
	opCaswi = 0x09
	opSetx  = 0x0a
	opClrx  = 0x0b

	opAddpb2 = 0xa3
	opAddpb3 = 0xe3
	opSubpb2 = 0x9b
	opSubpb3 = 0xdb

	opDtb = 0x29
	opDth = 0x19

	opTedtb  = 0x4d
	opTedth  = 0x0d
	opTgdtb  = 0x6d
	opTgdth  = 0x2d
	opTgedtb = 0x5d
	// opTgedth's real byte (0x1d) collides with the already-wired
	// opRestore; it is dispatched through the secondary table instead,
	// at escapePrefix<<8|0x28 (DESIGN.md records the collision).
	opTnedtb = 0x7d
	opTnedth = 0x3d
)

// Secondary (0x30-escaped, two-byte) opcodes: the first fetched byte is
// the literal 0x30 escapePrefix; the second selects among these, given
// here as the combined 0x3000|selector value used as the dispatch key
// throughout this package. All grounded in 3b2_cpu.h's escaped-opcode
// byte values.
const (
	opMverno  = 0x3009
	opEnbvjmp = 0x300d
	opDisvjmp = 0x3013
	opMovblwX = 0x3019
	opStrend  = 0x301f
	opIntack  = 0x302f
	opStrcpy  = 0x3035
	opRetg    = 0x3045
	opGate    = 0x3061
	opCallps  = 0x30ac
	opRetps   = 0x30c8

	// opTgedth's byte collides with the primary opRestore (see above); it
	// lives in the escape table instead, at a selector not claimed by any
	// real 0x30-escaped opcode in 3b2_cpu.h.
	opTgedth = 0x3028

	// CBS/MBS/EBS/TTBS/TBS/CS/ANLZ (spec.md section 4.5 String) have no
	// byte assignment anywhere in the retrieved original_source/3B2
	// files -- confirmed absent from both 3b2_cpu.h's opcode enum and
	// 3b2_cpu.c's instruction switch. Placed here, modeled on the
	// restartable MOVBLW/STRCPY/STREND family already in this table, and
	// recorded in DESIGN.md as an unverified approximation.
	opCbs  = 0x3021
	opMbs  = 0x3022
	opEbs  = 0x3023
	opTtbs = 0x3024
	opTbs  = 0x3025
	opCs   = 0x3026
	opAnlz = 0x3027
)

const escapePrefix = 0x30

// mnemonics names each dispatch key for SHOW CPU HISTORY, keyed the same
// way stepState.opcode is populated in RunOne: the raw byte for primary
// opcodes, escapePrefix<<8|selector for the 0x30-escaped secondary table.
var mnemonics = map[uint16]string{
	opHalt:    "HALT",
	opSPOP:    "SPOP",
	opRet:     "RET",
	opMovblw:  "MOVBLW",
	opSave:    "SAVE",
	opSPOPWD:  "SPOPWD",
	opRestore: "RESTORE",
	opCall:    "CALL",
	opBPT:     "BPT",
	opWait:    "WAIT",
	opEret:    "ERET",

	opMovw: "MOVW",
	opMovb: "MOVB",
	opMovh: "MOVH",
	opMova: "MOVA",
	opJsb:  "JSB",
	opJump: "JUMP",
	opCmpw: "CMPW",

	opBr:   "BR",
	opBne:  "BNE",
	opBeq:  "BEQ",
	opBgt:  "BGT",
	opBle:  "BLE",
	opBge:  "BGE",
	opBlt:  "BLT",
	opBgtu: "BGTU",
	opBleu: "BLEU",
	opBvc:  "BVC",
	opBvs:  "BVS",
	opBcc:  "BCC",
	opBcs:  "BCS",

	opPackb:   "PACKB",
	opUnpackb: "UNPACKB",

	opAddh2: "ADDH2",
	opAddb2: "ADDB2",
	opPushw: "PUSHW",
	opModw2: "MODW2",
	opMulw2: "MULW2",
	opDivw2: "DIVW2",
	opOrw2:  "ORW2",
	opXorw2: "XORW2",
	opAndw2: "ANDW2",
	opSubw2: "SUBW2",

	opAlsw3:  "ALSW3",
	opArsw3:  "ARSW3",
	opInsfw:  "INSFW",
	opExtfw:  "EXTFW",
	opLlsw3:  "LLSW3",
	opLrsw3:  "LRSW3",
	opRotw:   "ROTW",
	opAddw3:  "ADDW3",
	opPushaw: "PUSHAW",

	opModw3: "MODW3",
	opMulw3: "MULW3",
	opDivw3: "DIVW3",
	opOrw3:  "ORW3",
	opXorw3: "XORW3",
	opAndw3: "ANDW3",
	opSubw3: "SUBW3",

	opAddw2: "ADDW2",
	opAddh3: "ADDH3",
	opAddb3: "ADDB3",
	opSubh2: "SUBH2",
	opSubb2: "SUBB2",
	opSubh3: "SUBH3",
	opSubb3: "SUBB3",
	opMulh2: "MULH2",
	opMulb2: "MULB2",
	opMulh3: "MULH3",
	opMulb3: "MULB3",
	opDivh2: "DIVH2",
	opDivb2: "DIVB2",
	opDivh3: "DIVH3",
	opDivb3: "DIVB3",
	opModh2: "MODH2",
	opModb2: "MODB2",
	opModh3: "MODH3",
	opModb3: "MODB3",
	opOrh2:  "ORH2",
	opOrb2:  "ORB2",
	opOrh3:  "ORH3",
	opOrb3:  "ORB3",
	opXorh2: "XORH2",
	opXorb2: "XORB2",
	opXorh3: "XORH3",
	opXorb3: "XORB3",
	opAndh2: "ANDH2",
	opAndb2: "ANDB2",
	opAndh3: "ANDH3",
	opAndb3: "ANDB3",

	opIncw:  "INCW",
	opInch:  "INCH",
	opIncb:  "INCB",
	opDecw:  "DECW",
	opDech:  "DECH",
	opDecb:  "DECB",
	opMcomw: "MCOMW",
	opMcomh: "MCOMH",
	opMcomb: "MCOMB",
	opMnegw: "MNEGW",
	opMnegh: "MNEGH",
	opMnegb: "MNEGB",

	opClrw:   "CLRW",
	opClrh:   "CLRH",
	opClrb:   "CLRB",
	opMovtrw: "MOVTRW",
	opPopw:   "POPW",
	opSwapwi: "SWAPWI",
	opSwaphi: "SWAPHI",
	opSwapbi: "SWAPBI",
	opLra:    "LRA",

	opBsbh: "BSBH",
	opBsbb: "BSBB",
	opRsb:  "RSB",

	opCaswi:  "CASWI",
	opSetx:   "SETX",
	opClrx:   "CLRX",
	opAddpb2: "ADDPB2",
	opAddpb3: "ADDPB3",
	opSubpb2: "SUBPB2",
	opSubpb3: "SUBPB3",
	opDtb:    "DTB",
	opDth:    "DTH",
	opTedtb:  "TEDTB",
	opTedth:  "TEDTH",
	opTgdtb:  "TGDTB",
	opTgdth:  "TGDTH",
	opTgedtb: "TGEDTB",
	opTnedtb: "TNEDTB",
	opTnedth: "TNEDTH",

	escapePrefix<<8 | opMverno&0xff:  "MVERNO",
	escapePrefix<<8 | opEnbvjmp&0xff: "ENBVJMP",
	escapePrefix<<8 | opDisvjmp&0xff: "DISVJMP",
	escapePrefix<<8 | opMovblwX&0xff: "MOVBLW",
	escapePrefix<<8 | opStrend&0xff:  "STREND",
	escapePrefix<<8 | opIntack&0xff:  "INTACK",
	escapePrefix<<8 | opStrcpy&0xff:  "STRCPY",
	escapePrefix<<8 | opRetg&0xff:    "RETG",
	escapePrefix<<8 | opGate&0xff:    "GATE",
	escapePrefix<<8 | opCallps&0xff:  "CALLPS",
	escapePrefix<<8 | opRetps&0xff:   "RETPS",

	opTgedth: "TGEDTH",
	opCbs:    "CBS",
	opMbs:    "MBS",
	opEbs:    "EBS",
	opTtbs:   "TTBS",
	opTbs:    "TBS",
	opCs:     "CS",
	opAnlz:   "ANLZ",
}

// mnemonicFor looks up the dispatch-key mnemonic, falling back to a
// placeholder for any opcode this table's deliberately scoped subset
// doesn't cover (DESIGN.md notes the scoping decision).
func mnemonicFor(key uint16) string {
	if m, ok := mnemonics[key]; ok {
		return m
	}
	return "???"
}

// Exported accessors let emu/machine distinguish the GATE/RETG/CALLPS/
// RETPS family on a returned Fault.Opcode without this package exposing
// its whole opcode table.
func OpGate() uint16   { return opGate }
func OpRetg() uint16   { return opRetg }
func OpCallps() uint16 { return opCallps }
func OpRetps() uint16  { return opRetps }

// handlerFunc executes one decoded instruction. All operand state was
// already staged into st by the caller before the handler runs.
type handlerFunc func(c *CPU, e execEnv, st *stepState) *Fault
