/*
sim3b2 DMA poller tests.

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

import "testing"

type fakeChannel struct {
	name     string
	pending  bool
	serviced int
	after    func()
}

func (f *fakeChannel) Pending() bool { return f.pending }
func (f *fakeChannel) Service() {
	f.serviced++
	f.pending = false
}
func (f *fakeChannel) AfterDMA() func() { return f.after }

func TestPollReturnsFalseWithNoChannels(t *testing.T) {
	p := New()
	if p.Poll() {
		t.Errorf("expected no transaction with zero registered channels")
	}
}

func TestPollServicesFirstPendingChannel(t *testing.T) {
	p := New()
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b", pending: true}
	p.Register(a)
	p.Register(b)

	if !p.Poll() {
		t.Fatalf("expected a transaction when a channel is pending")
	}
	if b.serviced != 1 {
		t.Errorf("channel b should have been serviced once, got %d", b.serviced)
	}
	if a.serviced != 0 {
		t.Errorf("channel a should not have been touched")
	}
}

func TestPollInvokesAfterDMACallback(t *testing.T) {
	p := New()
	called := false
	a := &fakeChannel{name: "a", pending: true, after: func() { called = true }}
	p.Register(a)

	p.Poll()
	if !called {
		t.Errorf("expected AfterDMA callback to run after Service")
	}
}

func TestPollRoundRobinsAcrossCalls(t *testing.T) {
	p := New()
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b"}
	p.Register(a)
	p.Register(b)

	a.pending = true
	b.pending = true
	p.Poll() // services a (next starts at 0)
	if a.serviced != 1 || b.serviced != 0 {
		t.Fatalf("expected a serviced first, got a=%d b=%d", a.serviced, b.serviced)
	}

	a.pending = true
	b.pending = true
	p.Poll() // should now prefer b, since next advanced past a
	if b.serviced != 1 {
		t.Errorf("expected round-robin to move on to b, got b.serviced=%d", b.serviced)
	}
}
