/*
sim3b2 Machine: wires Bus, MMU, CPU, Interrupt Controller, and DMA Poller
into the per-instruction run loop and owns the simulator's goroutine
lifecycle.

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
package machine

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wearch/sim3b2/emu/bus"
	"github.com/wearch/sim3b2/emu/control"
	"github.com/wearch/sim3b2/emu/cpu"
	"github.com/wearch/sim3b2/emu/dma"
	"github.com/wearch/sim3b2/emu/exception"
	"github.com/wearch/sim3b2/emu/interrupt"
	"github.com/wearch/sim3b2/emu/mmu"
)

// Config gathers the knobs SET CPU/SET MEMORY configure before Boot.
type Config struct {
	RAMWords     int
	Rev3         bool
	HistoryDepth int
	EnableIdle   bool
	ExBreak      bool
	OpBreak      bool
}

// Machine owns every emulated component and the goroutine that steps the
// CPU, the way the teacher's emu/core.core owns cpuState and the select
// loop over its master channel.
type Machine struct {
	Bus    *bus.Bus
	MMU    *mmu.MMU
	CPU    *cpu.CPU
	IC     *interrupt.Controller
	DMA    *dma.Poller
	Except *exception.Engine

	wg              sync.WaitGroup
	done            chan struct{}
	running         bool
	control         chan control.Packet
	ramWords        int
	appliedRAMWords int
}

// New builds a Machine from Config. The machine starts stopped (not
// running); Boot (via the control channel) loads ROM, resets the CPU and
// sets the machine running.
func New(cfg Config) *Machine {
	b := bus.New(cfg.RAMWords, nil, 0, cfg.Rev3)
	m := &Machine{
		Bus:             b,
		MMU:             mmu.New(b, cfg.Rev3),
		CPU:             cpu.New(cfg.HistoryDepth),
		IC:              interrupt.New(),
		DMA:             dma.New(),
		Except:          exception.New(),
		done:            make(chan struct{}),
		control:         make(chan control.Packet, 16),
		ramWords:        cfg.RAMWords,
		appliedRAMWords: cfg.RAMWords,
	}
	m.CPU.Rev3 = cfg.Rev3
	m.CPU.EnableIdle = cfg.EnableIdle
	m.CPU.ExBreak = cfg.ExBreak
	m.CPU.OpBreak = cfg.OpBreak
	m.CPU.Reset()
	return m
}

// Control returns the channel BOOT/SET/START/STOP commands are posted
// to; the REPL command layer owns sending, Start's select loop owns
// receiving.
func (m *Machine) Control() chan<- control.Packet { return m.control }

// Start runs the machine's goroutine: each iteration performs spec.md
// section 4.5's ten-step main loop (DMA poll, interrupt sample, fetch/
// decode/execute, fault routing) when running, else idles waiting for a
// control packet -- mirroring core.core.Start's running-bool/select
// structure.
func (m *Machine) Start() {
	m.wg.Add(1)
	defer m.wg.Done()

	for {
		if m.running && !m.CPU.Halted {
			m.step()
		}
		select {
		case <-m.done:
			slog.Info("machine: shutdown")
			return
		case pkt := <-m.control:
			m.process(pkt)
		default:
			if !m.running || m.CPU.Halted {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// Stop signals Start's loop to exit and waits (bounded) for it to do so.
func (m *Machine) Stop() {
	close(m.done)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("machine: timed out waiting for shutdown")
	}
}

func (m *Machine) process(pkt control.Packet) {
	switch pkt.Msg {
	case control.Start:
		m.running = true
	case control.Stop:
		m.running = false
	case control.Boot:
		if m.ramWords != m.appliedRAMWords {
			m.Bus = bus.New(m.ramWords, nil, 0, m.CPU.Rev3)
			m.MMU = mmu.New(m.Bus, m.CPU.Rev3)
			m.appliedRAMWords = m.ramWords
		}
		if pkt.ROMPath != "" {
			image, err := os.ReadFile(pkt.ROMPath)
			if err != nil {
				slog.Error("machine: boot ROM load failed", "path", pkt.ROMPath, "err", err)
				return
			}
			m.Bus.LoadROM(image)
		}
		m.running = true
		m.CPU.Reset()
	case control.SetMemSize:
		m.ramWords = int(pkt.Arg)
	case control.SetHistory:
		m.CPU.HistoryLen = int(pkt.Arg)
		m.CPU.History = make([]cpu.HistoryEntry, pkt.Arg)
	case control.SetIdle:
		m.CPU.EnableIdle = pkt.BoolArg
	case control.SetExBreak:
		m.CPU.ExBreak = pkt.BoolArg
	case control.SetOpBreak:
		m.CPU.OpBreak = pkt.BoolArg
	}
}

// step performs one pass of the main loop: at most one DMA transaction,
// one interrupt sample/dispatch, then exactly one CPU instruction
// (unless a WAIT state and no pending work lets it idle instead), per
// spec.md section 4.5.
func (m *Machine) step() {
	m.DMA.Poll()

	if req, ok := m.IC.Sample(m.CPU.PSW().IPL()); ok {
		m.CPU.Idle = false
		if req.IsNMI {
			m.Except.Raise(m.CPU, m.Bus, m.MMU, cpu.Fault{Kind: cpu.KindNormal, ISC: cpu.IscExternalReset})
			return
		}
		m.Except.Interrupt(m.CPU, m.Bus, m.MMU, req.Vector, req.IPL)
		return
	}

	if m.CPU.Idle {
		if !m.CPU.EnableIdle || m.IC.AnyPending() {
			m.CPU.Idle = false
		}
		return
	}

	f := m.CPU.RunOne(m.Bus, m.MMU)
	if f == nil {
		return
	}
	switch f.Opcode {
	case cpu.OpGate():
		if gf := m.Except.Gate(m.CPU, m.Bus, m.MMU, f.GateArg, f.GateArg2); gf != nil {
			m.Except.Raise(m.CPU, m.Bus, m.MMU, *gf)
		}
	case cpu.OpRetg():
		m.Except.RetG(m.CPU, m.Bus)
	default:
		m.Except.Raise(m.CPU, m.Bus, m.MMU, *f)
	}
}
