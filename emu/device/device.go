/*
sim3b2 Bus device handler and DMA channel interfaces

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
package device

// AccessSize is the width in bits of a single bus transaction.
type AccessSize uint8

const (
	Byte     AccessSize = 8
	Halfword AccessSize = 16
	Word     AccessSize = 32
)

// BusDevice is the contract every memory-mapped peripheral register window
// implements. The bus dispatch layer looks one up by physical address range
// and calls Read/Write directly; the device is otherwise free to raise an
// abort by returning ok=false, which the bus turns into an
// external-memory-fault.
type BusDevice interface {
	// Name identifies the device for debug/logging.
	Name() string
	// Read returns the value at pa sized to size, or ok=false to abort.
	Read(pa uint32, size AccessSize) (value uint32, ok bool)
	// Write stores val at pa sized to size, or ok=false to abort.
	Write(pa uint32, val uint32, size AccessSize) (ok bool)
}

// DMAChannel is the contract a DMA-capable device exposes to the DMA poll
// described in spec.md section 6. Exactly one transaction is performed per
// Service call.
type DMAChannel interface {
	// Pending reports whether the device has asserted its request line.
	Pending() bool
	// Service performs exactly one DMA transaction and clears the request
	// line. AfterDMA (if any) is invoked by the caller on completion.
	Service()
	// AfterDMA runs once the transfer this channel is driving completes;
	// nil if the device has no completion callback.
	AfterDMA() func()
}

// DMAState is the per-channel register set named in spec.md section 6:
// one start address, word count, current address/count pair, and a mode
// register. Devices embed this the way IBM-370 subchannels embed chanCtl.
type DMAState struct {
	StartAddr uint32
	WordCount uint32
	CurAddr   uint32
	CurCount  uint32
	Mode      uint8
}
