/*
sim3b2 Physical bus dispatch tests.

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
	"testing"

	"github.com/wearch/sim3b2/emu/device"
)

// fakeDevice is a minimal register-window device for exercising the I/O
// dispatch table, the same role testdev_test.go's fake channel device
// plays for the teacher's sys_channel tests.
type fakeDevice struct {
	name string
	reg  uint32
	fail bool
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Read(pa uint32, size device.AccessSize) (uint32, bool) {
	if d.fail {
		return 0, false
	}
	return d.reg, true
}

func (d *fakeDevice) Write(pa uint32, val uint32, size device.AccessSize) bool {
	if d.fail {
		return false
	}
	d.reg = val
	return true
}

func newTestBus(rev3 bool) *Bus {
	rom := []byte{0x01, 0x02, 0x03, 0x04}
	return New(16, rom, 0x80000000, rev3)
}

func TestRAMReadWriteWord(t *testing.T) {
	b := newTestBus(false)
	if f := b.Write(0x10, 0xdeadbeef, device.Word, FromCPU, false); f != nil {
		t.Fatalf("unexpected write fault: %v", f)
	}
	v, f := b.Read(0x10, device.Word, FromCPU, false)
	if f != nil {
		t.Fatalf("unexpected read fault: %v", f)
	}
	if v != 0xdeadbeef {
		t.Errorf("got %#x, want %#x", v, 0xdeadbeef)
	}
}

func TestROMWritesDropped(t *testing.T) {
	b := newTestBus(false)
	if f := b.Write(0x80000000, 0xffffffff, device.Word, FromCPU, false); f != nil {
		t.Fatalf("unexpected write fault: %v", f)
	}
	v, f := b.Read(0x80000000, device.Byte, FromCPU, false)
	if f != nil {
		t.Fatalf("unexpected read fault: %v", f)
	}
	if v != 0x01 {
		t.Errorf("ROM write should be dropped, got %#x want %#x", v, 0x01)
	}
}

func TestIODispatch(t *testing.T) {
	b := newTestBus(false)
	dev := &fakeDevice{name: "uart"}
	b.RegisterDevice(0x40000000, 0x40000010, dev)

	if f := b.Write(0x40000004, 42, device.Word, FromCPU, false); f != nil {
		t.Fatalf("unexpected write fault: %v", f)
	}
	if dev.reg != 42 {
		t.Errorf("device register not updated, got %d want 42", dev.reg)
	}
	v, f := b.Read(0x40000004, device.Word, FromCPU, false)
	if f != nil {
		t.Fatalf("unexpected read fault: %v", f)
	}
	if v != 42 {
		t.Errorf("got %d want 42", v)
	}
}

func TestNoHandlerFaultsAndSetsTimeout(t *testing.T) {
	b := newTestBus(false)
	_, f := b.Read(0x50000000, device.Word, FromCPU, false)
	if f == nil || f.Kind != FaultExternalMemory {
		t.Fatalf("expected external memory fault, got %v", f)
	}
	if b.CSR()&CSRTimeout == 0 {
		t.Errorf("CSR timeout bit not set")
	}
}

func TestAlignmentViolation(t *testing.T) {
	b := newTestBus(false)
	_, f := b.Read(0x1, device.Word, FromCPU, false)
	if f == nil || f.Kind != FaultExternalMemory {
		t.Fatalf("expected alignment fault, got %v", f)
	}
	if b.CSR()&CSRAlignment == 0 {
		t.Errorf("CSR alignment bit not set")
	}
}

func TestRev3ArbitraryAlignmentReadsNaturalWord(t *testing.T) {
	b := newTestBus(true)
	if f := b.Write(0x0, 0x11223344, device.Word, FromCPU, false); f != nil {
		t.Fatalf("unexpected write fault: %v", f)
	}
	v, f := b.Read(0x1, device.Word, FromCPU, true)
	if f != nil {
		t.Fatalf("Rev3 EA=1 unaligned read should succeed, got fault: %v", f)
	}
	if v != 0x11223344 {
		t.Errorf("got %#x, want the containing word %#x", v, 0x11223344)
	}
}

func TestHalfwordAlignment(t *testing.T) {
	b := newTestBus(false)
	if f := b.Write(0x4, 0x1234, device.Halfword, FromCPU, false); f != nil {
		t.Fatalf("unexpected write fault: %v", f)
	}
	v, f := b.Read(0x4, device.Halfword, FromCPU, false)
	if f != nil {
		t.Fatalf("unexpected read fault: %v", f)
	}
	if v != 0x1234 {
		t.Errorf("got %#x want %#x", v, 0x1234)
	}
	if _, f := b.Read(0x5, device.Halfword, FromCPU, false); f == nil {
		t.Errorf("expected alignment fault for odd halfword address")
	}
}

func TestByteAccessAlwaysAligned(t *testing.T) {
	b := newTestBus(false)
	if f := b.Write(0x7, 0xab, device.Byte, FromCPU, false); f != nil {
		t.Fatalf("unexpected fault on byte write: %v", f)
	}
	v, f := b.Read(0x7, device.Byte, FromCPU, false)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if v != 0xab {
		t.Errorf("got %#x want %#x", v, 0xab)
	}
}

func TestECCMultiBitFaultsCPUSource(t *testing.T) {
	b := newTestBus(true)
	b.SetForceECCSyndrome(true)
	if f := b.Write(0x20, 1, device.Word, FromCPU, false); f != nil {
		t.Fatalf("unexpected write fault: %v", f)
	}
	_, f := b.Read(0x20, device.Word, FromCPU, false)
	if f == nil || f.Kind != FaultECCMultiBit {
		t.Fatalf("expected ECC multi-bit fault on CPU read, got %v", f)
	}
	// The latch is one-shot: a second read of the same address succeeds.
	if _, f := b.Read(0x20, device.Word, FromCPU, false); f != nil {
		t.Errorf("ECC latch should have cleared after first fault, got %v", f)
	}
}

func TestECCDoesNotAbortPeripheralSource(t *testing.T) {
	b := newTestBus(true)
	b.SetForceECCSyndrome(true)
	if f := b.Write(0x24, 1, device.Word, FromCPU, false); f != nil {
		t.Fatalf("unexpected write fault: %v", f)
	}
	if _, f := b.Read(0x24, device.Word, FromPeripheral, false); f != nil {
		t.Errorf("peripheral-sourced ECC read should not abort, got %v", f)
	}
}
