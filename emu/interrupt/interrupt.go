/*
sim3b2 Interrupt controller: latching, priority-level comparison, NMI.

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
package interrupt

import "sync/atomic"

// Source identifies a system-board interrupt line. Values match the bit
// position in the pending bitfield.
type Source uint8

// Rev 3 system-board sources, spec.md section 4.3.
const (
	SrcPowerDown Source = iota
	SrcBusOperational
	SrcECCSingleBit
	SrcECCMultiBit
	SrcBusReceiveFail
	SrcBusTimeout
	SrcClock
	SrcUART
	SrcUARTDMA
	SrcFloppy
	SrcFloppyDMA
	SrcPIR9
	SrcPIR8
	numSources
)

// iplOf maps each source to its interrupt priority level (spec.md 4.3).
var iplOf = [numSources]uint8{
	SrcPowerDown:      15,
	SrcBusOperational: 15,
	SrcECCSingleBit:   15,
	SrcECCMultiBit:    15,
	SrcBusReceiveFail: 15,
	SrcBusTimeout:     15,
	SrcClock:          15,
	SrcUART:           13,
	SrcUARTDMA:        13,
	SrcFloppy:         11,
	SrcFloppyDMA:      11,
	SrcPIR9:           9,
	SrcPIR8:           8,
}

const numSlots = 12 // one backplane I/O slot bitfield per spec.md 4.3

// Request describes a serviceable interrupt handed back by Sample.
type Request struct {
	Vector  uint16
	IPL     uint8
	IsSlot  bool
	Slot    int
	IsNMI   bool
}

// Controller latches interrupt requests, maps each to a priority level,
// and hands back the first serviceable request above the current mask:
// NMI, then backplane slots in slot order, then the highest-priority
// system-board source. Posting
// (Post/PostSlot/PostNMI) happens from any goroutine, so the pending
// bitfield is updated atomically; Sample runs only from the CPU loop.
type Controller struct {
	pending   atomic.Uint32 // one bit per Source
	slots     [numSlots]atomic.Bool
	slotIPL   [numSlots]uint8
	nmi       atomic.Bool

	iplTable [1 << numSources]uint8 // precomputed: bitmask -> highest IPL
}

// New builds a Controller with the precomputed system-board IPL table
// (spec.md 4.3: "A precomputed table maps each bitmask of pending
// system-board sources to its highest IPL").
func New() *Controller {
	c := &Controller{}
	for mask := 0; mask < len(c.iplTable); mask++ {
		var best uint8
		for s := Source(0); s < numSources; s++ {
			if mask&(1<<s) != 0 && iplOf[s] > best {
				best = iplOf[s]
			}
		}
		c.iplTable[mask] = best
	}
	for i := range c.slotIPL {
		c.slotIPL[i] = 8 // default; overridden by SetSlotIPL
	}
	return c
}

// SetSlotIPL configures the priority level a backplane slot raises at.
func (c *Controller) SetSlotIPL(slot int, ipl uint8) {
	c.slotIPL[slot] = ipl
}

// Post latches a system-board source. Safe to call from any goroutine.
func (c *Controller) Post(s Source) {
	for {
		old := c.pending.Load()
		nw := old | (1 << s)
		if c.pending.CompareAndSwap(old, nw) {
			return
		}
	}
}

// Clear acknowledges a system-board source.
func (c *Controller) Clear(s Source) {
	for {
		old := c.pending.Load()
		nw := old &^ (1 << s)
		if c.pending.CompareAndSwap(old, nw) {
			return
		}
	}
}

// PostSlot latches a backplane slot request.
func (c *Controller) PostSlot(slot int) { c.slots[slot].Store(true) }

// ClearSlot acknowledges a backplane slot request.
func (c *Controller) ClearSlot(slot int) { c.slots[slot].Store(false) }

// PostNMI latches the single NMI line.
func (c *Controller) PostNMI() { c.nmi.Store(true) }

// Sample implements spec.md section 4.3 steps 2-4 (the DMA poll, step 1,
// is driven by the caller through emu/dma before Sample runs). currentIPL
// is PSW.IPL.
func (c *Controller) Sample(currentIPL uint8) (Request, bool) {
	if c.nmi.Load() {
		c.nmi.Store(false)
		return Request{IsNMI: true, Vector: 0, IPL: 16}, true
	}

	for slot := 0; slot < numSlots; slot++ {
		if c.slots[slot].Load() && c.slotIPL[slot] > currentIPL {
			c.ClearSlot(slot)
			return Request{IsSlot: true, Slot: slot, IPL: c.slotIPL[slot], Vector: uint16(32 + slot)}, true
		}
	}

	mask := c.pending.Load()
	ipl := c.iplTable[mask]
	if mask != 0 && ipl > currentIPL {
		src := highestSource(mask)
		c.Clear(src)
		return Request{IPL: ipl, Vector: uint16(src)}, true
	}

	return Request{}, false
}

func highestSource(mask uint32) Source {
	var best Source
	var bestIPL uint8
	for s := Source(0); s < numSources; s++ {
		if mask&(1<<s) != 0 && iplOf[s] >= bestIPL {
			bestIPL = iplOf[s]
			best = s
		}
	}
	return best
}

// AnyPending reports whether any source (system-board, slot, or NMI) is
// latched, used by the CPU loop to decide whether a WAIT state may idle.
func (c *Controller) AnyPending() bool {
	if c.nmi.Load() || c.pending.Load() != 0 {
		return true
	}
	for i := range c.slots {
		if c.slots[i].Load() {
			return true
		}
	}
	return false
}
