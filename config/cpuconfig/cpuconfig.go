/*
sim3b2 SET/SHOW CPU and SET MEMORY command surface, implemented against
command/command's generic Command interface -- the 3B2-scoped
replacement for the teacher's config/configparser + config/debugconfig
pair, which were too tightly coupled to S/370 device/model registration
to adapt (see DESIGN.md).

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
package cpuconfig

import (
	"errors"
	"fmt"
	"strconv"

	cmdpkg "github.com/wearch/sim3b2/command/command"
	"github.com/wearch/sim3b2/emu/control"
	"github.com/wearch/sim3b2/emu/cpu"
)

// CPUCommand adapts a running Machine's control channel and CPU state to
// command.Command, so SET CPU/SHOW CPU/SET MEMORY share the teacher's
// generic option-dispatch shape instead of a one-off parser.
type CPUCommand struct {
	Control chan<- control.Packet
	CPU     *cpu.CPU
	RAMWords int
	Rev3     bool
}

var _ cmdpkg.Command = (*CPUCommand)(nil)

// Options reports the switches SET/SHOW CPU accepts, per spec.md
// section 6's configuration surface.
func (c *CPUCommand) Options(opt string) []cmdpkg.Options {
	switch opt {
	case "SET":
		return []cmdpkg.Options{
			{Name: "MEMORY", OptionType: cmdpkg.OptionNumber, OptionValid: cmdpkg.ValidSet},
			{Name: "HISTORY", OptionType: cmdpkg.OptionNumber, OptionValid: cmdpkg.ValidSet},
			{Name: "IDLE", OptionType: cmdpkg.OptionSwitch, OptionValid: cmdpkg.ValidSet},
			{Name: "EXBRK", OptionType: cmdpkg.OptionSwitch, OptionValid: cmdpkg.ValidSet},
			{Name: "OPBRK", OptionType: cmdpkg.OptionSwitch, OptionValid: cmdpkg.ValidSet},
			{Name: "REV3", OptionType: cmdpkg.OptionSwitch, OptionValid: cmdpkg.ValidSet},
		}
	case "SHOW":
		return []cmdpkg.Options{
			{Name: "CPU", OptionType: cmdpkg.OptionSwitch, OptionValid: cmdpkg.ValidShow},
			{Name: "MEMORY", OptionType: cmdpkg.OptionSwitch, OptionValid: cmdpkg.ValidShow},
			{Name: "HISTORY", OptionType: cmdpkg.OptionSwitch, OptionValid: cmdpkg.ValidShow},
		}
	}
	return nil
}

// Attach is not meaningful for the CPU; the 3B2's processor isn't a
// file-backed device.
func (c *CPUCommand) Attach(options []*cmdpkg.CmdOption) error {
	return errors.New("cpu: ATTACH not supported")
}

// Detach is not meaningful for the CPU.
func (c *CPUCommand) Detach() error {
	return errors.New("cpu: DETACH not supported")
}

// Set applies SET CPU ... / SET MEMORY ... options, posting the
// corresponding control.Packet to a running Machine.
func (c *CPUCommand) Set(set bool, options []*cmdpkg.CmdOption) error {
	for _, opt := range options {
		switch opt.Name {
		case "MEMORY":
			words, err := wordsFromOption(opt)
			if err != nil {
				return err
			}
			c.RAMWords = words
			c.Control <- control.Packet{Msg: control.SetMemSize, Arg: uint32(words)}
		case "HISTORY":
			n, err := strconv.Atoi(opt.EqualOpt)
			if err != nil {
				return fmt.Errorf("cpu: bad HISTORY value %q: %w", opt.EqualOpt, err)
			}
			c.Control <- control.Packet{Msg: control.SetHistory, Arg: uint32(n)}
		case "IDLE":
			c.Control <- control.Packet{Msg: control.SetIdle, BoolArg: set}
		case "EXBRK":
			c.Control <- control.Packet{Msg: control.SetExBreak, BoolArg: set}
		case "OPBRK":
			c.Control <- control.Packet{Msg: control.SetOpBreak, BoolArg: set}
		case "REV3":
			c.Rev3 = set
		default:
			return fmt.Errorf("cpu: unknown option %q", opt.Name)
		}
	}
	return nil
}

// Show renders SHOW CPU / SHOW MEMORY / SHOW HISTORY text.
func (c *CPUCommand) Show(options []*cmdpkg.CmdOption) (string, error) {
	if len(options) == 0 {
		return c.showCPU(), nil
	}
	var out string
	for _, opt := range options {
		switch opt.Name {
		case "CPU":
			out += c.showCPU()
		case "MEMORY":
			out += fmt.Sprintf("memory: %d words (%d KB)\n", c.RAMWords, c.RAMWords*4/1024)
		case "HISTORY":
			out += c.showHistory()
		default:
			return "", fmt.Errorf("cpu: unknown SHOW option %q", opt.Name)
		}
	}
	return out, nil
}

func (c *CPUCommand) showCPU() string {
	psw := c.CPU.PSW()
	return fmt.Sprintf(
		"PC=%08x PSW=%08x CM=%d PM=%d IPL=%d ET=%d ISC=%d halted=%v idle=%v rev3=%v\n",
		c.CPU.PC(), psw.Value, psw.CM(), psw.PM(), psw.IPL(), psw.ET(), psw.ISC(),
		c.CPU.Halted, c.CPU.Idle, c.Rev3,
	)
}

func (c *CPUCommand) showHistory() string {
	out := ""
	for i := 0; i < c.CPU.HistoryLen && i < len(c.CPU.History); i++ {
		h := c.CPU.History[i]
		out += fmt.Sprintf("%08x: opcode=%04x len=%d\n", h.PC, h.Opcode, h.Len)
	}
	return out
}

func wordsFromOption(opt *cmdpkg.CmdOption) (int, error) {
	if opt.Value > 0 {
		return opt.Value, nil
	}
	n, err := strconv.Atoi(opt.EqualOpt)
	if err != nil {
		return 0, fmt.Errorf("cpu: bad MEMORY value %q: %w", opt.EqualOpt, err)
	}
	return n, nil
}
