/*
 * sim3b2 - Log debug data to a file
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package debug

import (
	"fmt"
	"os"
)

// Per-module debug masks, SET CPU/MMU/BUS/IRQ/EXC DEBUG=... selects
// among these (spec.md section 6).
const (
	CPU = 1 << iota
	MMU
	Bus
	IRQ
	Exception
)

var logFile *os.File
var moduleMask = map[string]int{
	"CPU":  CPU,
	"MMU":  MMU,
	"BUS":  Bus,
	"IRQ":  IRQ,
	"EXC":  Exception,
}

// SetLogFile installs (or replaces) the file debug traces are written
// to; the empty string disables file output.
func SetLogFile(path string) error {
	if path == "" {
		logFile = nil
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create debug file: %w", err)
	}
	logFile = f
	return nil
}

// ModuleMask resolves a SET ... DEBUG=name token to its bit, or 0 if
// the name is unrecognized.
func ModuleMask(name string) int { return moduleMask[name] }

// Debugf writes a module trace line, gated by mask&level, the same
// level-AND-mask test the teacher's util/debug package uses.
func Debugf(module string, mask int, level int, format string, a ...interface{}) {
	if logFile == nil || (mask&level) == 0 {
		return
	}
	fmt.Fprintf(logFile, module+": "+format+"\n", a...)
}
