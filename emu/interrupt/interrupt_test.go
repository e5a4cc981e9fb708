/*
sim3b2 interrupt controller tests.

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

import "testing"

func TestNoRequestWhenNothingPending(t *testing.T) {
	c := New()
	if _, ok := c.Sample(0); ok {
		t.Errorf("expected no serviceable request on a fresh controller")
	}
}

func TestSystemBoardIPLComparison(t *testing.T) {
	c := New()
	c.Post(SrcClock) // IPL 15
	req, ok := c.Sample(14)
	if !ok || req.IPL != 15 {
		t.Fatalf("expected clock IPL 15 to service above mask 14, got %+v ok=%v", req, ok)
	}
	// Masked at or above its own level: not serviceable.
	c.Post(SrcClock)
	if _, ok := c.Sample(15); ok {
		t.Errorf("IPL 15 source should not service when PSW.IPL is already 15")
	}
}

func TestNMIBeatsEverything(t *testing.T) {
	c := New()
	c.Post(SrcClock)
	c.PostSlot(0)
	c.SetSlotIPL(0, 15)
	c.PostNMI()

	req, ok := c.Sample(15)
	if !ok || !req.IsNMI {
		t.Fatalf("expected NMI to win over slot and system-board sources, got %+v ok=%v", req, ok)
	}
}

func TestSlotBeatsSystemBoard(t *testing.T) {
	c := New()
	c.Post(SrcClock) // IPL 15
	c.PostSlot(3)
	c.SetSlotIPL(3, 9) // lower IPL than clock, but slots are checked first

	req, ok := c.Sample(0)
	if !ok || !req.IsSlot || req.Slot != 3 {
		t.Fatalf("expected slot 3 to be serviced ahead of the system-board source, got %+v ok=%v", req, ok)
	}
}

func TestHighestPrioritySystemBoardSourceWins(t *testing.T) {
	c := New()
	c.Post(SrcPIR8)  // IPL 8
	c.Post(SrcFloppy) // IPL 11

	req, ok := c.Sample(0)
	if !ok || req.IPL != 11 {
		t.Fatalf("expected the higher-IPL source (floppy, 11) to win, got %+v ok=%v", req, ok)
	}
}

func TestAnyPendingReflectsAllThreeSourceKinds(t *testing.T) {
	c := New()
	if c.AnyPending() {
		t.Fatalf("fresh controller should report nothing pending")
	}
	c.PostSlot(1)
	if !c.AnyPending() {
		t.Errorf("AnyPending should see a latched slot request")
	}
	c.ClearSlot(1)
	c.PostNMI()
	if !c.AnyPending() {
		t.Errorf("AnyPending should see a latched NMI")
	}
}

func TestSampleClearsServicedSource(t *testing.T) {
	c := New()
	c.Post(SrcClock)
	if _, ok := c.Sample(0); !ok {
		t.Fatalf("expected the clock source to be serviceable")
	}
	if _, ok := c.Sample(0); ok {
		t.Errorf("the clock source should have been cleared after being serviced once")
	}
}
