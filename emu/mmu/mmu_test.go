/*
sim3b2 MMU translation and descriptor cache tests.

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
	"testing"

	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/device"
)

func newTestBusAndMMU(t *testing.T, rev3 bool) (*bus.Bus, *MMU) {
	t.Helper()
	b := bus.New(1<<16, nil, 0xffffffff, rev3)
	m := New(b, rev3)
	m.Enable()
	return b, m
}

// TestDisabledMMUIsIdentity covers spec.md section 3's invariant: when the
// MMU is disabled, virtual == physical and no checks occur.
func TestDisabledMMUIsIdentity(t *testing.T) {
	b := bus.New(1024, nil, 0xffffffff, false)
	m := New(b, false)
	pa, f := m.Translate(0x12345678, AccessRead, 0, true)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if pa != 0x12345678 {
		t.Errorf("got %#x want identity %#x", pa, 0x12345678)
	}
}

// TestPagedTranslationHit reproduces spec.md section 8's "Paged
// translation hit" scenario end to end, including the PD-cache-served
// repeat lookup.
func TestPagedTranslationHit(t *testing.T) {
	b, m := newTestBusAndMMU(t, false)

	// sd0: paged (C=0), valid (V=1), present (P=1), kernel perm full (3).
	sd0 := uint32(0x03000000) | 0x40 | 0x01 // acc byte 0x03 already at bit24 in 0x03000000; V|P
	sd1 := uint32(0x00020000)               // segment/PDT base
	if f := b.Write(0x00010000, sd0, device.Word, bus.FromCPU, false); f != nil {
		t.Fatalf("seed sd0: %v", f)
	}
	if f := b.Write(0x00010004, sd1, device.Word, bus.FromCPU, false); f != nil {
		t.Fatalf("seed sd1: %v", f)
	}

	pd := uint32(0x00040001) // frame 0x40000, present (spec.md section 8 scenario 3's literal PD value)
	if f := b.Write(0x00020000, pd, device.Word, bus.FromCPU, false); f != nil {
		t.Fatalf("seed pd: %v", f)
	}

	m.WriteSRAMA(0, 0x00010000)
	m.WriteSRAMB(0, 0)

	pa, f := m.Translate(0x00000010, AccessRead, LevelKernelForTest, true)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if pa != 0x00040010 {
		t.Errorf("got %#x want %#x", pa, 0x00040010)
	}

	// Corrupt the backing PD in memory; a cached lookup must not re-read it.
	if f := b.Write(0x00020000, 0, device.Word, bus.FromCPU, false); f != nil {
		t.Fatalf("corrupt pd: %v", f)
	}
	pa2, f := m.Translate(0x00000010, AccessRead, LevelKernelForTest, true)
	if f != nil {
		t.Fatalf("unexpected fault on cached lookup: %v", f)
	}
	if pa2 != pa {
		t.Errorf("cached lookup returned %#x, want %#x (served from PD cache)", pa2, pa)
	}
}

// LevelKernelForTest avoids importing emu/cpu (which would import emu/mmu,
// creating a cycle); kernel is execution level 0 per spec.md section 3.
const LevelKernelForTest uint8 = 0

func TestSDTLengthFault(t *testing.T) {
	b, m := newTestBusAndMMU(t, false)
	m.WriteSRAMA(0, 0x1000)
	m.WriteSRAMB(0, 0) // length 1: only ssl==0 is valid

	_, f := m.Translate(1<<17, AccessRead, LevelKernelForTest, true) // ssl=1
	if f == nil || f.Kind != FaultSDTLength {
		t.Fatalf("expected SDT length fault, got %v", f)
	}
	_ = b
}

func TestInvalidSDFaults(t *testing.T) {
	b, m := newTestBusAndMMU(t, false)
	m.WriteSRAMA(0, 0x2000)
	m.WriteSRAMB(0, 0)
	// V=0: leave memory zeroed (already the default).
	_, f := m.Translate(0, AccessRead, LevelKernelForTest, true)
	if f == nil || f.Kind != FaultInvalidSD {
		t.Fatalf("expected invalid SD fault, got %v", f)
	}
	_ = b
}

func TestContiguousSegmentOffsetFault(t *testing.T) {
	b, m := newTestBusAndMMU(t, false)
	// C=1 (contiguous), V=1, P=1, maxOffset small (bits 10-23 of sd0,
	// original_source/3B2/3b2_mmu.h's SD_MAX_OFF).
	sd0 := uint32(0x03000000) | 0x40 | 0x01 | 0x04 | (1 << 10) // maxOffset=1 -> (1+1)*8=16 bytes valid
	sd1 := uint32(0x00030000)
	if f := b.Write(0x4000, sd0, device.Word, bus.FromCPU, false); f != nil {
		t.Fatalf("seed: %v", f)
	}
	if f := b.Write(0x4004, sd1, device.Word, bus.FromCPU, false); f != nil {
		t.Fatalf("seed: %v", f)
	}
	m.WriteSRAMA(0, 0x4000)
	m.WriteSRAMB(0, 0)

	if _, f := m.Translate(0, AccessRead, LevelKernelForTest, true); f != nil {
		t.Fatalf("in-bounds offset should succeed, got %v", f)
	}
	if _, f := m.Translate(20, AccessRead, LevelKernelForTest, true); f == nil || f.Kind != FaultSegmentOffset {
		t.Fatalf("expected segment offset fault, got %v", f)
	}
}

// TestWriteSRAMAFlushesOnlyThatSection covers spec.md section 8's MMU
// boundary behavior: writing SRAM-A for one section must not disturb the
// caches of any other section.
func TestWriteSRAMAFlushesOnlyThatSection(t *testing.T) {
	_, m := newTestBusAndMMU(t, false)
	m.sdc[2][5] = sdCacheEntry{good: true, tag: 5}
	m.sdc[0][5] = sdCacheEntry{good: true, tag: 5}
	m.sdc[1][5] = sdCacheEntry{good: true, tag: 5}
	m.sdc[3][5] = sdCacheEntry{good: true, tag: 5}

	m.WriteSRAMA(2, 0x9000)

	if m.sdc[2][5].good {
		t.Errorf("section 2 cache entry should have been flushed")
	}
	for _, s := range []int{0, 1, 3} {
		if !m.sdc[s][5].good {
			t.Errorf("section %d cache entry should not have been flushed", s)
		}
	}
}

// TestRev3PDCFullyAssociativeEviction fills the 32-entry PDC, then sets
// every Used bit and checks that a 33rd insertion takes slot 0 (the first
// one inserted) and clears the Used bit of every other entry.
func TestRev3PDCFullyAssociativeEviction(t *testing.T) {
	_, m := newTestBusAndMMU(t, true)

	for i := 0; i < rev3PDCEntries; i++ {
		m.insertRev3(uint64(i), pageDescriptor{frame: uint32(i) * 0x1000, present: true})
	}
	for i := range m.pdcRev3 {
		if !m.pdcRev3[i].good {
			t.Fatalf("entry %d should be populated after filling the cache", i)
		}
	}

	// First batch marks every entry used via clearOtherUsed's all-used
	// reset, so by the time the 32nd insert lands every earlier entry has
	// had its Used bit cleared except the most recent; emulate the
	// "cold fill, no further touches" case directly: force every entry
	// used to exercise the all-G=1,all-U=1 eviction branch.
	for i := range m.pdcRev3 {
		m.pdcRev3[i].used = true
	}

	victimTag := m.pdcRev3[0].tag
	m.insertRev3(999, pageDescriptor{frame: 0xdead000, present: true})

	if m.pdcRev3[0].tag != 999 {
		t.Errorf("expected slot 0 (first inserted) to be evicted, tag now %d want 999", m.pdcRev3[0].tag)
	}
	for i := 1; i < rev3PDCEntries; i++ {
		if m.pdcRev3[i].used {
			t.Errorf("entry %d should have had its Used bit cleared by the all-U=1 eviction branch", i)
		}
	}
	_ = victimTag
}

func TestRev2PDCTwoWaySetAssociative(t *testing.T) {
	_, m := newTestBusAndMMU(t, false)

	va1 := uint32(0x00000800) // set bits (11-14) pick one set
	va2 := uint32(0x00004800) // different VA, same set bits, different tag

	m.insertRev2(0, pdSet(va1), va1, pageDescriptor{frame: 0x1000, present: true})
	m.insertRev2(0, pdSet(va2), va2, pageDescriptor{frame: 0x2000, present: true})

	set := &m.pdcRev2[0][pdSet(va1)]
	if !set[0].good || !set[1].good {
		t.Fatalf("expected both ways occupied after two distinct insertions")
	}
}
