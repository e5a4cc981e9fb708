/*
sim3b2 control-channel messages exchanged between the command layer and
the running machine.

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

// Package control defines the command channel between the CLI/REPL and
// the running machine goroutine -- the role the teacher's emu/master
// package plays for core.core's select loop, reconstructed here since
// that package's source was not part of the retrieved reference set.
package control

// Msg identifies the kind of control-channel request.
type Msg int

const (
	Start Msg = iota
	Stop
	Boot
	SetMemSize
	SetHistory
	SetIdle
	SetExBreak
	SetOpBreak
)

// Packet is one request sent over the machine's control channel.
type Packet struct {
	Msg     Msg
	Arg     uint32 // e.g. memory size in words, history depth
	BoolArg bool   // e.g. [NO]IDLE/[NO]EXBRK/[NO]OPBRK polarity
	ROMPath string // Boot
}
