/*
sim3b2 DMA service poll.

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
package dma

import "github.com/wearch/sim3b2/emu/device"

// Poller round-robins across registered DMA channels, invoking at most one
// transaction per channel per Poll call (spec.md section 4.3 step 1 and
// section 6's DMA channel contract).
type Poller struct {
	channels []device.DMAChannel
	next     int
}

// New builds an empty Poller; channels are added with Register.
func New() *Poller { return &Poller{} }

// Register installs a DMA-capable device's channel.
func (p *Poller) Register(ch device.DMAChannel) {
	p.channels = append(p.channels, ch)
}

// Poll services the next channel (round-robin) that has a pending request,
// clearing its request line. Returns true if a transaction was performed.
func (p *Poller) Poll() bool {
	n := len(p.channels)
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		ch := p.channels[idx]
		if ch.Pending() {
			ch.Service()
			if cb := ch.AfterDMA(); cb != nil {
				cb()
			}
			p.next = (idx + 1) % n
			return true
		}
	}
	return false
}
