/*
 * sim3b2 - Main process.
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

package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	getopt "github.com/pborman/getopt/v2"
	"github.com/peterh/liner"
	"golang.org/x/term"

	cmdpkg "github.com/wearch/sim3b2/command/command"
	"github.com/wearch/sim3b2/config/cpuconfig"
	"github.com/wearch/sim3b2/emu/control"
	"github.com/wearch/sim3b2/emu/machine"
	logger "github.com/wearch/sim3b2/util/logger"
)

var Logger *slog.Logger

func main() {
	optROM := getopt.StringLong("rom", 'r', "", "Boot ROM image")
	optRAM := getopt.IntLong("ram", 'm', 2*1024*1024, "RAM size in words")
	optRev3 := getopt.BoolLong("rev3", '3', "Enable WE32200 (Rev 3) mode")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Echo log records to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	Logger.Info("sim3b2 started", "ram", *optRAM, "rev3", *optRev3)

	m := machine.New(machine.Config{
		RAMWords:     *optRAM,
		Rev3:         *optRev3,
		HistoryDepth: 64,
		EnableIdle:   true,
	})

	cpuCmd := &cpuconfig.CPUCommand{
		Control:  m.Control(),
		CPU:      m.CPU,
		RAMWords: *optRAM,
		Rev3:     *optRev3,
	}

	go m.Start()

	if *optROM != "" {
		m.Control() <- control.Packet{Msg: control.Boot, ROMPath: *optROM}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cmdChan := make(chan string, 1)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		go func() {
			for {
				input, err := line.Prompt("sim3b2> ")
				if err != nil {
					close(cmdChan)
					return
				}
				line.AppendHistory(input)
				cmdChan <- input
			}
		}()
	} else {
		// stdin is piped (batch/scripted boot): liner's raw-mode line
		// editing has nothing to attach to, so read plain lines instead.
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				cmdChan <- scanner.Text()
			}
			close(cmdChan)
		}()
	}

loop:
	for {
		select {
		case <-sigChan:
			fmt.Println("\nGot quit signal")
			break loop
		case input, ok := <-cmdChan:
			if !ok {
				break loop
			}
			if quit := dispatch(m, cpuCmd, input); quit {
				break loop
			}
		}
	}

	Logger.Info("shutting down machine")
	m.Stop()
	Logger.Info("shutdown complete")
}

// dispatch runs one REPL line, in the style of the teacher's bufio-loop
// master-channel dispatch but against the emu/control command surface.
// Returns true when the REPL should exit.
func dispatch(m *machine.Machine, cpuCmd *cpuconfig.CPUCommand, input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	switch verb {
	case "QUIT", "EXIT":
		return true
	case "BOOT":
		pkt := control.Packet{Msg: control.Boot}
		if len(args) > 0 {
			pkt.ROMPath = args[0]
		}
		m.Control() <- pkt
	case "START", "GO", "CONT":
		m.Control() <- control.Packet{Msg: control.Start}
	case "STOP", "HALT":
		m.Control() <- control.Packet{Msg: control.Stop}
	case "SET":
		runSet(cpuCmd, args)
	case "SHOW":
		runShow(cpuCmd, args)
	case "":
	default:
		fmt.Printf("unrecognized command %q\n", fields[0])
	}
	return false
}

func runSet(cpuCmd *cpuconfig.CPUCommand, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: SET CPU option[=value] ... | SET MEMORY words")
		return
	}
	head := strings.ToUpper(args[0])
	if head == "MEMORY" {
		if len(args) != 2 {
			fmt.Println("usage: SET MEMORY words")
			return
		}
		if err := cpuCmd.Set(true, []*cmdpkg.CmdOption{{Name: "MEMORY", EqualOpt: args[1]}}); err != nil {
			fmt.Println(err)
		}
		return
	}
	if head != "CPU" {
		fmt.Println("usage: SET CPU option[=value] ... | SET MEMORY words")
		return
	}
	for _, a := range args[1:] {
		set := true
		name := a
		if strings.HasPrefix(strings.ToUpper(a), "NO") {
			set = false
			name = a[2:]
		}
		opt := &cmdpkg.CmdOption{}
		if idx := strings.IndexByte(name, '='); idx >= 0 {
			opt.Name = strings.ToUpper(name[:idx])
			opt.EqualOpt = name[idx+1:]
			if n, err := strconv.Atoi(opt.EqualOpt); err == nil {
				opt.Value = n
			}
		} else {
			opt.Name = strings.ToUpper(name)
		}
		if err := cpuCmd.Set(set, []*cmdpkg.CmdOption{opt}); err != nil {
			fmt.Println(err)
		}
	}
}

func runShow(cpuCmd *cpuconfig.CPUCommand, args []string) {
	opts := make([]*cmdpkg.CmdOption, 0, len(args))
	for _, a := range args {
		opts = append(opts, &cmdpkg.CmdOption{Name: strings.ToUpper(a)})
	}
	out, err := cpuCmd.Show(opts)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Print(out)
}
