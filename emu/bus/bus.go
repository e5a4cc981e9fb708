/*
sim3b2 Physical bus dispatch.

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
package bus

import (
	"log/slog"

	"github.com/wearch/sim3b2/emu/device"
)

// AccessSource tags who originated a bus transaction, used only for ECC
// fault routing per spec.md section 4.1.
type AccessSource uint8

const (
	FromCPU AccessSource = iota
	FromPeripheral
)

// FaultKind enumerates the memory faults a Bus access can raise.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultExternalMemory
	FaultECCMultiBit
)

// Fault is the typed result of a failing bus access; see spec.md section 9
// ("Long-jump unwind -> typed result propagation").
type Fault struct {
	Kind    FaultKind
	Addr    uint32
	Message string
}

func (f *Fault) Error() string { return f.Message }

// ioRange is one entry of the ordered, non-overlapping physical dispatch
// table described in spec.md section 4.1 step 3.
type ioRange struct {
	low, high uint32 // half-open [low, high)
	handler   device.BusDevice
}

// CSR bits relevant to alignment/ECC/timeout reporting (spec.md 4.1, 4.1 ECC).
const (
	CSRTimeout    uint32 = 1 << 0
	CSRAlignment  uint32 = 1 << 1
	CSRForceECC   uint32 = 1 << 2
	CSRECCLatched uint32 = 1 << 3
)

// Bus owns RAM, ROM, and the I/O dispatch table. It is an explicit value
// passed to every caller (CPU, MMU, Exception Engine) rather than a
// package-level singleton, per spec.md section 9's "avoid back-references"
// design note.
type Bus struct {
	ram []uint32 // word-addressed backing store
	rom []byte

	romBase, romSize uint32
	ramSize          uint32

	io []ioRange

	csr uint32

	rev3      bool // enables arbitrary alignment under PSW.EA and ECC semantics
	eccAddr   uint32
	eccLatch  bool
	forceECC  bool
	eccTarget uint32
}

// New creates a Bus with ramWords 32-bit words of RAM and the given ROM
// image based at romBase.
func New(ramWords int, romImage []byte, romBase uint32, rev3 bool) *Bus {
	return &Bus{
		ram:     make([]uint32, ramWords),
		rom:     romImage,
		romBase: romBase,
		romSize: uint32(len(romImage)),
		ramSize: uint32(ramWords) * 4,
		rev3:    rev3,
	}
}

// RAMSize returns the configured RAM size in bytes.
func (b *Bus) RAMSize() uint32 { return b.ramSize }

// LoadROM replaces the ROM image, the dedicated ROM-load path spec.md 4.1
// step 1 refers to (writes through the normal Write path are dropped).
func (b *Bus) LoadROM(image []byte) {
	b.rom = image
	b.romSize = uint32(len(image))
}

// RegisterDevice installs a device over the half-open physical range
// [low, high). Ranges must be added in increasing, non-overlapping order,
// matching the teacher's ordered chanDev.devTab dispatch.
func (b *Bus) RegisterDevice(low, high uint32, h device.BusDevice) {
	b.io = append(b.io, ioRange{low: low, high: high, handler: h})
}

// SetForceECCSyndrome simulates the CSR "Force ECC Syndrome" flag (Rev 3
// only): the next write latches a pending single-bit syndrome at addr,
// armed for the following read.
func (b *Bus) SetForceECCSyndrome(on bool) {
	b.forceECC = on
	b.csr |= CSRForceECC
}

func (b *Bus) CSR() uint32 { return b.csr }

func (b *Bus) findIO(pa uint32) device.BusDevice {
	for _, r := range b.io {
		if pa >= r.low && pa < r.high {
			return r.handler
		}
	}
	return nil
}

func (b *Bus) inROM(pa uint32) bool {
	return pa >= b.romBase && pa < b.romBase+b.romSize
}

func (b *Bus) inRAM(pa uint32) bool {
	return pa < b.ramSize
}

// alignmentOK applies spec.md section 4.1's alignment policy. arbitrary
// permits Rev 3 PSW.EA-style unaligned access.
func alignmentOK(pa uint32, size device.AccessSize, arbitrary bool) bool {
	switch size {
	case device.Word:
		return arbitrary || pa%4 == 0
	case device.Halfword:
		return arbitrary || pa%2 == 0
	default:
		return true
	}
}

// naturalBase returns the naturally-aligned word/halfword base containing pa,
// used only when arbitrary alignment is in effect.
func naturalBase(pa uint32, size device.AccessSize) uint32 {
	switch size {
	case device.Word:
		return pa &^ 3
	case device.Halfword:
		return pa &^ 1
	default:
		return pa
	}
}

func (b *Bus) alignFault(pa uint32) *Fault {
	b.csr |= CSRAlignment
	return &Fault{Kind: FaultExternalMemory, Addr: pa, Message: "alignment violation"}
}

func (b *Bus) noHandlerFault(pa uint32) *Fault {
	b.csr |= CSRTimeout
	return &Fault{Kind: FaultExternalMemory, Addr: pa, Message: "no device responds at physical address"}
}

// Read performs a sized physical read, dispatching per spec.md section 4.1.
func (b *Bus) Read(pa uint32, size device.AccessSize, src AccessSource, arbitraryAlign bool) (uint32, *Fault) {
	if !alignmentOK(pa, size, arbitraryAlign) {
		return 0, b.alignFault(pa)
	}
	base := naturalBase(pa, size)

	if b.rev3 && b.eccLatch && base == b.eccTarget {
		b.eccLatch = false
		b.csr |= CSRECCLatched
		if src == FromCPU {
			return 0, &Fault{Kind: FaultECCMultiBit, Addr: pa, Message: "multi-bit ECC error"}
		}
		slog.Warn("ECC multi-bit error observed by peripheral", "addr", pa)
	}

	switch {
	case b.inROM(base):
		return b.readROM(base, pa, size), nil
	case b.inRAM(base):
		return b.readWord(base, pa, size), nil
	default:
		h := b.findIO(base)
		if h == nil {
			return 0, b.noHandlerFault(pa)
		}
		v, ok := h.Read(pa, size)
		if !ok {
			return 0, b.noHandlerFault(pa)
		}
		return v, nil
	}
}

// Write performs a sized physical write.
func (b *Bus) Write(pa uint32, val uint32, size device.AccessSize, src AccessSource, arbitraryAlign bool) *Fault {
	if !alignmentOK(pa, size, arbitraryAlign) {
		return b.alignFault(pa)
	}
	base := naturalBase(pa, size)

	if b.rev3 && b.forceECC {
		b.forceECC = false
		b.eccLatch = true
		b.eccTarget = base
	}

	switch {
	case b.inROM(base):
		return nil // writes to ROM are silently dropped outside LoadROM
	case b.inRAM(base):
		b.writeWord(base, pa, val, size)
		return nil
	default:
		h := b.findIO(base)
		if h == nil {
			return b.noHandlerFault(pa)
		}
		if ok := h.Write(pa, val, size); !ok {
			return b.noHandlerFault(pa)
		}
		return nil
	}
}

func (b *Bus) readROM(base, pa uint32, size device.AccessSize) uint32 {
	off := base - b.romBase
	switch size {
	case device.Byte:
		bo := pa - b.romBase
		if int(bo) >= len(b.rom) {
			return 0
		}
		return uint32(b.rom[bo])
	case device.Halfword:
		return uint32(b.romByte(off)) | uint32(b.romByte(off+1))<<8
	default:
		return uint32(b.romByte(off)) | uint32(b.romByte(off+1))<<8 |
			uint32(b.romByte(off+2))<<16 | uint32(b.romByte(off+3))<<24
	}
}

func (b *Bus) romByte(off uint32) byte {
	if int(off) >= len(b.rom) {
		return 0
	}
	return b.rom[off]
}

func (b *Bus) readWord(base, pa uint32, size device.AccessSize) uint32 {
	w := b.ram[base>>2]
	switch size {
	case device.Word:
		return w
	case device.Halfword:
		shift := (pa & 2) * 8
		return (w >> shift) & 0xffff
	default: // Byte
		shift := (pa & 3) * 8
		return (w >> shift) & 0xff
	}
}

func (b *Bus) writeWord(base, pa uint32, val uint32, size device.AccessSize) {
	idx := base >> 2
	switch size {
	case device.Word:
		b.ram[idx] = val
	case device.Halfword:
		shift := (pa & 2) * 8
		mask := uint32(0xffff) << shift
		b.ram[idx] = (b.ram[idx] &^ mask) | ((val << shift) & mask)
	default: // Byte
		shift := (pa & 3) * 8
		mask := uint32(0xff) << shift
		b.ram[idx] = (b.ram[idx] &^ mask) | ((val << shift) & mask)
	}
}
