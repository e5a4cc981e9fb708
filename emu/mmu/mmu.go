/*
sim3b2 Memory Management Unit: WE 32101 (Rev 2) / WE 32201 (Rev 3).

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
package mmu

import (
	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/device"
)

// AccessType is the kind of reference being translated.
type AccessType uint8

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessExecute
	AccessInterlocked // read-modify-write (e.g. TAS-style), treated as a write for W-bit purposes
)

// FaultKind enumerates the MMU fault codes of spec.md section 7.2.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultSDTLength
	FaultInvalidSD
	FaultSegmentNotPresent
	FaultPDTNotPresent
	FaultPageNotPresent
	FaultPageWrite
	FaultAccessViolation
	FaultSegmentOffset
	FaultObjectTrap
	FaultRMUpdate
)

// Fault is the MMU's typed translation failure, carrying the fault code
// register contents of spec.md section 3 ("Fault registers (MMU)").
type Fault struct {
	Kind    FaultKind
	Access  AccessType
	CM      uint8
	VA      uint32
	Message string
}

func (f *Fault) Error() string { return f.Message }

// PageSize selects the Rev 3 page granularity.
type PageSize uint8

const (
	Page2K PageSize = iota
	Page4K
	Page8K
)

// segmentDescriptor is the two-word in-memory SD shape (spec.md section 3).
type segmentDescriptor struct {
	present    bool
	modified   bool
	contiguous bool
	cacheable  bool
	objTrap    bool
	referenced bool
	valid      bool
	indirect   bool
	maxOffset  uint32 // 14-bit maximum offset
	acc        [4]uint8 // per-CM 2-bit permission, index by CM
	base       uint32   // segment/PDT base, 32-byte aligned
}

// pageDescriptor is the one-word in-memory PD shape.
type pageDescriptor struct {
	frame      uint32
	referenced bool
	writeFault bool
	lastPage   bool
	modified   bool
	present    bool
}

const (
	permNone uint8 = iota
	permExecOnly
	permReadExec
	permFull
)

func permAllows(p uint8, a AccessType) bool {
	switch p {
	case permNone:
		return false
	case permExecOnly:
		return a == AccessExecute
	case permReadExec:
		return a == AccessExecute || a == AccessRead
	default: // permFull
		return true
	}
}

// sdCacheEntry mirrors spec.md's description: the cache loses the I and R
// bits of the source SD, which become implicit (I=0, R=as-tracked) on hit.
type sdCacheEntry struct {
	good bool
	tag  uint32 // full SSL, to resolve the direct-mapped collision
	sd   segmentDescriptor
}

// rev2PDEntry is one of the 2-way set-associative Rev 2 PDC sets.
type rev2PDEntry struct {
	good bool
	used bool // true => this way is LRU-eligible (the "Used" bit names which side is LRU)
	tag  uint32
	pd   pageDescriptor
}

// rev3PDEntry is one fully-associative Rev 3 PDC slot.
type rev3PDEntry struct {
	good bool
	used bool
	tag  uint64 // section<<32 | masked VA, mask depends on page size/context
	pd   pageDescriptor
}

const (
	sdCacheSize    = 32 // per-section direct-mapped slots; an implementation choice, see DESIGN.md
	rev2PDCSets    = 8
	rev2PDCSection = 4
	rev3PDCEntries = 32
)

// MMU translates virtual to physical addresses and owns the descriptor
// caches. It holds a *bus.Bus to read/write descriptors and never holds a
// reference back to the CPU, per spec.md section 9's cyclic-coupling note.
type MMU struct {
	bus      *bus.Bus
	enabled  bool
	rev3     bool
	pageSz   PageSize
	multiCtx bool

	sram [4]struct {
		a uint32 // SD table base, 32-byte aligned
		b uint32 // segment-table length minus 1
	}

	sdc [4][sdCacheSize]sdCacheEntry

	pdcRev2 [rev2PDCSection][rev2PDCSets][2]rev2PDEntry
	pdcRev3 [rev3PDCEntries]rev3PDEntry

	// MMU configuration register enable bits controlling R/M writeback.
	updateR bool
	updateM bool

	maxIndirects int
}

// New builds an MMU. rev3 selects the WE 32201 cache shapes and ECC-era
// fault codes; rev2 uses the WE 32101 2-way PDC.
func New(b *bus.Bus, rev3 bool) *MMU {
	return &MMU{
		bus:          b,
		rev3:         rev3,
		pageSz:       Page4K,
		updateR:      true,
		updateM:      true,
		maxIndirects: 4,
	}
}

func (m *MMU) Enable()  { m.enabled = true }
func (m *MMU) Disable() { m.enabled = false; m.FlushAll() }
func (m *MMU) Enabled() bool { return m.enabled }

func (m *MMU) SetPageSize(p PageSize)  { m.pageSz = p }
func (m *MMU) SetMultiContext(on bool) { m.multiCtx = on }

// WriteSRAMA installs a new SD table base for section and flushes every
// cache entry belonging to that section (spec.md section 4.2 "Cache
// flushing").
func (m *MMU) WriteSRAMA(section int, a uint32) {
	m.sram[section].a = a
	m.flushSection(section)
}

// WriteSRAMB sets the segment-table length bound; it does not flush.
func (m *MMU) WriteSRAMB(section int, b uint32) {
	m.sram[section].b = b
}

func (m *MMU) flushSection(section int) {
	for i := range m.sdc[section] {
		m.sdc[section][i] = sdCacheEntry{}
	}
	if m.rev3 {
		for i := range m.pdcRev3 {
			if m.entrySection(i) == section {
				m.pdcRev3[i] = rev3PDEntry{}
			}
		}
	} else {
		for s := range m.pdcRev2[section] {
			m.pdcRev2[section][s] = [2]rev2PDEntry{}
		}
	}
}

func (m *MMU) entrySection(i int) int {
	return int(m.pdcRev3[i].tag >> 32)
}

// FlushAll clears every cache entry, used when the MMU is disabled.
func (m *MMU) FlushAll() {
	for s := 0; s < 4; s++ {
		m.flushSection(s)
	}
}

// FlushVA flushes the single SD and PD entries matching va, the effect of
// writing the Virtual Address Register (spec.md section 4.2).
func (m *MMU) FlushVA(va uint32) {
	section, ssl, _, _ := decompose(va, m.pageSz)
	idx := int(ssl) % sdCacheSize
	if m.sdc[section][idx].good && m.sdc[section][idx].tag == ssl {
		m.sdc[section][idx] = sdCacheEntry{}
	}
	if m.rev3 {
		tag := pdTag(uint32(section), va, m.pageSz, m.multiCtx)
		for i := range m.pdcRev3 {
			if m.pdcRev3[i].good && m.pdcRev3[i].tag == tag {
				m.pdcRev3[i] = rev3PDEntry{}
			}
		}
	} else {
		set := pdSet(va)
		for w := 0; w < 2; w++ {
			e := &m.pdcRev2[section][set][w]
			if e.good && e.tag == va {
				*e = rev2PDEntry{}
			}
		}
	}
}

// decompose splits a virtual address into SID/SSL and, for the paged case,
// PSL/POT, per spec.md section 4.2 "Address decomposition".
func decompose(va uint32, pageSz PageSize) (section int, ssl uint32, psl uint32, pot uint32) {
	section = int(va >> 30)
	ssl = (va >> 17) & 0x1fff
	switch pageSz {
	case Page2K:
		psl = (va >> 11) & 0x3f
		pot = va & 0x7ff
	case Page8K:
		psl = (va >> 13) & 0xf
		pot = va & 0x1fff
	default: // Page4K
		psl = (va >> 12) & 0x1f
		pot = va & 0xfff
	}
	return
}

func pdSet(va uint32) int {
	return int((va >> 11) & 0xf) % rev2PDCSets
}

func pdTag(section uint32, va uint32, pageSz PageSize, multiCtx bool) uint64 {
	var mask uint32
	switch pageSz {
	case Page2K:
		mask = ^uint32(0x7ff)
	case Page8K:
		mask = ^uint32(0x1fff)
	default:
		mask = ^uint32(0xfff)
	}
	key := va & mask
	if multiCtx {
		key ^= 0x1 // context discriminator folded in; see DESIGN.md
	}
	return uint64(section)<<32 | uint64(key)
}

// readSD loads both SD words from physical memory at sram.a + ssl*8,
// following indirection per spec.md section 4.2 step 4.
func (m *MMU) readSD(section int, ssl uint32, access AccessType, cm uint8) (segmentDescriptor, *Fault) {
	addr := m.sram[section].a + ssl*8
	var sd segmentDescriptor
	hops := 0
	for {
		w0, f := m.bus.Read(addr, deviceWord, busSrc(), false)
		if f != nil {
			return sd, &Fault{Kind: FaultSDTLength, Access: access, CM: cm, Message: "SD fetch failed"}
		}
		w1, f := m.bus.Read(addr+4, deviceWord, busSrc(), false)
		if f != nil {
			return sd, &Fault{Kind: FaultSDTLength, Access: access, CM: cm, Message: "SD fetch failed"}
		}
		sd = decodeSD(w0, w1)
		if !sd.valid {
			return sd, &Fault{Kind: FaultInvalidSD, Access: access, CM: cm, Message: "invalid SD"}
		}
		if !sd.indirect {
			break
		}
		hops++
		if hops > m.maxIndirects {
			return sd, &Fault{Kind: FaultInvalidSD, Access: access, CM: cm, Message: "indirect SD chain too deep"}
		}
		if !permAllows(sd.acc[cm], access) {
			return sd, &Fault{Kind: FaultAccessViolation, Access: access, CM: cm, Message: "indirect SD access denied"}
		}
		addr = sd.base
	}
	if !sd.present {
		if sd.contiguous {
			return sd, &Fault{Kind: FaultSegmentNotPresent, Access: access, CM: cm, Message: "segment not present"}
		}
		return sd, &Fault{Kind: FaultPDTNotPresent, Access: access, CM: cm, Message: "PDT not present"}
	}
	return sd, nil
}

func decodeSD(w0, w1 uint32) segmentDescriptor {
	var sd segmentDescriptor
	sd.present = w0&0x01 != 0
	sd.modified = w0&0x02 != 0
	sd.contiguous = w0&0x04 != 0
	sd.cacheable = w0&0x08 != 0
	sd.objTrap = w0&0x10 != 0
	sd.referenced = w0&0x20 != 0
	sd.valid = w0&0x40 != 0
	sd.indirect = w0&0x80 != 0
	sd.maxOffset = (w0 >> 10) & 0x3fff
	accByte := uint8((w0 >> 24) & 0xff)
	for cm := 0; cm < 4; cm++ {
		sd.acc[cm] = (accByte >> (uint(cm) * 2)) & 0x3
	}
	sd.base = w1 &^ 0x1f
	return sd
}

// decodePD follows original_source/3B2/3b2_mmu.h's PD_PRESENT/PD_MODIFIED/
// PD_LAST/PD_WFAULT/PD_REF bit positions exactly.
func decodePD(w uint32) pageDescriptor {
	return pageDescriptor{
		frame:      w &^ 0x7ff,
		present:    w&0x01 != 0,
		modified:   w&0x02 != 0,
		lastPage:   w&0x04 != 0,
		writeFault: w&0x10 != 0,
		referenced: w&0x20 != 0,
	}
}

func busSrc() bus.AccessSource { return bus.FromCPU }

const deviceWord = device.Word

// lookupSD consults the SD cache, falling back to readSD on miss and, when
// fc is true, inserting the result back into the cache.
func (m *MMU) lookupSD(section int, ssl uint32, access AccessType, cm uint8, fc bool) (segmentDescriptor, *Fault) {
	idx := int(ssl) % sdCacheSize
	e := &m.sdc[section][idx]
	if e.good && e.tag == ssl {
		return e.sd, nil
	}
	sd, f := m.readSD(section, ssl, access, cm)
	if f != nil {
		return sd, f
	}
	if fc {
		m.sdc[section][idx] = sdCacheEntry{good: true, tag: ssl, sd: sd}
	}
	return sd, nil
}

// lookupPD consults the PD cache (Rev 2 or Rev 3 shape per m.rev3).
func (m *MMU) lookupPD(section int, va uint32, sd segmentDescriptor, psl, pot uint32, access AccessType, cm uint8, fc bool) (pageDescriptor, *Fault) {
	if m.rev3 {
		tag := pdTag(uint32(section), va, m.pageSz, m.multiCtx)
		for i := range m.pdcRev3 {
			if m.pdcRev3[i].good && m.pdcRev3[i].tag == tag {
				m.touchRev3(i)
				return m.pdcRev3[i].pd, nil
			}
		}
		pd, f := m.readPD(sd, psl, access, cm)
		if f != nil {
			return pd, f
		}
		if fc {
			m.insertRev3(tag, pd)
		}
		return pd, nil
	}

	set := pdSet(va)
	for w := 0; w < 2; w++ {
		e := &m.pdcRev2[section][set][w]
		if e.good && e.tag == va {
			return e.pd, nil
		}
	}
	pd, f := m.readPD(sd, psl, access, cm)
	if f != nil {
		return pd, f
	}
	if fc {
		m.insertRev2(section, set, va, pd)
	}
	return pd, nil
}

func (m *MMU) readPD(sd segmentDescriptor, psl uint32, access AccessType, cm uint8) (pageDescriptor, *Fault) {
	addr := sd.base + psl*4
	w, f := m.bus.Read(addr, deviceWord, busSrc(), false)
	if f != nil {
		return pageDescriptor{}, &Fault{Kind: FaultPDTNotPresent, Access: access, CM: cm, Message: "PD fetch failed"}
	}
	pd := decodePD(w)
	if !pd.present {
		return pd, &Fault{Kind: FaultPageNotPresent, Access: access, CM: cm, Message: "page not present"}
	}
	if (access == AccessWrite || access == AccessInterlocked) && pd.writeFault {
		return pd, &Fault{Kind: FaultPageWrite, Access: access, CM: cm, Message: "page write fault"}
	}
	return pd, nil
}

// insertRev2 implements the 2-way set-associative LRU policy: the "Used"
// bit on the left side names which side is LRU.
func (m *MMU) insertRev2(section, set int, va uint32, pd pageDescriptor) {
	s := &m.pdcRev2[section][set]
	victim := 0
	if s[0].used {
		victim = 0
	} else {
		victim = 1
	}
	for w, e := range s {
		if !e.good {
			victim = w
			break
		}
	}
	s[victim] = rev2PDEntry{good: true, tag: va, pd: pd}
	s[0].used = victim == 1
}

// insertRev3 implements spec.md section 4.2's fully-associative insertion
// policy.
func (m *MMU) insertRev3(tag uint64, pd pageDescriptor) {
	for i := range m.pdcRev3 {
		if !m.pdcRev3[i].good {
			m.pdcRev3[i] = rev3PDEntry{good: true, tag: tag, pd: pd, used: true}
			m.clearOtherUsed(i)
			return
		}
	}
	for i := range m.pdcRev3 {
		if !m.pdcRev3[i].used {
			m.pdcRev3[i] = rev3PDEntry{good: true, tag: tag, pd: pd, used: true}
			return
		}
	}
	// All G=1, all U=1: pick any slot, clear all U except the new one.
	victim := 0
	m.pdcRev3[victim] = rev3PDEntry{good: true, tag: tag, pd: pd, used: true}
	m.clearOtherUsed(victim)
}

func (m *MMU) clearOtherUsed(keep int) {
	allUsed := true
	for i := range m.pdcRev3 {
		if i != keep && !m.pdcRev3[i].used {
			allUsed = false
			break
		}
	}
	if allUsed {
		for i := range m.pdcRev3 {
			if i != keep {
				m.pdcRev3[i].used = false
			}
		}
	}
}

func (m *MMU) touchRev3(i int) {
	m.pdcRev3[i].used = true
	m.clearOtherUsed(i)
}

// Translate implements spec.md section 4.2's algorithm end to end. When
// fc is false (the debugger's "examine" path) no permission checks, cache
// insertion, fault-register update, or R/M writeback occurs.
func (m *MMU) Translate(va uint32, access AccessType, cm uint8, fc bool) (uint32, *Fault) {
	if !m.enabled {
		return va, nil
	}

	section, ssl, psl, pot := decompose(va, m.pageSz)
	if ssl > m.sram[section].b {
		return 0, m.fault(FaultSDTLength, access, cm, va, fc)
	}

	sd, f := m.lookupSD(section, ssl, access, cm, fc)
	if f != nil {
		return 0, m.pass(f, va, fc)
	}

	var pa uint32
	var pd pageDescriptor
	havePD := false
	if sd.contiguous {
		if pot >= (sd.maxOffset+1)*8 {
			return 0, m.fault(FaultSegmentOffset, access, cm, va, fc)
		}
		pa = sd.base + pot
	} else {
		pd, f = m.lookupPD(section, va, sd, psl, pot, access, cm, fc)
		if f != nil {
			return 0, m.pass(f, va, fc)
		}
		havePD = true
		pa = pd.frame + pot
	}

	if fc {
		perm := sd.acc[cm]
		if havePD {
			// Rev 3 PDC entries may carry their own narrower permission;
			// we conservatively use the SD's, matching spec.md step 7's
			// "(or the cached pd.acc)" alternative when no per-page acc
			// is tracked.
			_ = pd
		}
		if !permAllows(perm, access) {
			return 0, m.fault(FaultAccessViolation, access, cm, va, fc)
		}
		if rf := m.updateRM(section, ssl, va, psl, sd, pd, havePD, access, cm); rf != nil {
			return 0, m.pass(rf, va, fc)
		}
	}

	return pa, nil
}

func (m *MMU) pass(f *Fault, va uint32, fc bool) *Fault {
	if fc {
		f.VA = va
	}
	return f
}

func (m *MMU) fault(kind FaultKind, access AccessType, cm uint8, va uint32, fc bool) *Fault {
	f := &Fault{Kind: kind, Access: access, CM: cm}
	if fc {
		f.VA = va
	}
	return f
}

// updateRM implements spec.md step 8: set R always on first touch, M on
// write, in both the cache entry and backing memory. A Rev 3 bus write
// failure while stamping either descriptor back to memory is itself a
// fault (FaultRMUpdate), since the processor cannot silently drop the
// bookkeeping write spec.md section 7.2 requires.
func (m *MMU) updateRM(section int, ssl, va, psl uint32, sd segmentDescriptor, pd pageDescriptor, havePD bool, access AccessType, cm uint8) *Fault {
	write := access == AccessWrite || access == AccessInterlocked

	if m.updateR && !sd.referenced {
		sdAddr := m.sram[section].a + ssl*8
		w0, f := m.bus.Read(sdAddr, deviceWord, busSrc(), false)
		if f == nil {
			w0 |= 0x20
			if wf := m.bus.Write(sdAddr, w0, deviceWord, busSrc(), false); wf != nil && m.rev3 {
				return &Fault{Kind: FaultRMUpdate, Access: access, CM: cm, Message: "SD referenced-bit writeback failed"}
			}
		}
		idx := int(ssl) % sdCacheSize
		if m.sdc[section][idx].good && m.sdc[section][idx].tag == ssl {
			m.sdc[section][idx].sd.referenced = true
		}
	}

	if !havePD {
		return nil
	}

	needR := m.updateR && !pd.referenced
	needM := write && m.updateM && !pd.modified
	if needR || needM {
		pdAddr := sd.base + psl*4
		pdWord, f := m.bus.Read(pdAddr, deviceWord, busSrc(), false)
		if f == nil {
			if needR {
				pdWord |= 0x20
			}
			if needM {
				pdWord |= 0x02
			}
			if wf := m.bus.Write(pdAddr, pdWord, deviceWord, busSrc(), false); wf != nil && m.rev3 {
				return &Fault{Kind: FaultRMUpdate, Access: access, CM: cm, Message: "PD R/M-bit writeback failed"}
			}
		}
		if needR {
			pd.referenced = true
		}
		if needM {
			pd.modified = true
		}
		if m.rev3 {
			tag := pdTag(uint32(section), va, m.pageSz, m.multiCtx)
			for i := range m.pdcRev3 {
				if m.pdcRev3[i].good && m.pdcRev3[i].tag == tag {
					m.pdcRev3[i].pd = pd
					break
				}
			}
		} else {
			set := pdSet(va)
			for w := 0; w < 2; w++ {
				e := &m.pdcRev2[section][set][w]
				if e.good && e.tag == va {
					e.pd = pd
					break
				}
			}
		}
	}
	return nil
}
