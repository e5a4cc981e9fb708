/*
3b2dump - offline inspection tool for sim3b2 memory images.

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
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "3b2dump",
		Short: "Inspect sim3b2 ROM images and raw memory dumps offline",
	}

	rootCmd.AddCommand(newWordsCmd(), newPCBCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newWordsCmd() *cobra.Command {
	var offset int64
	var count int

	cmd := &cobra.Command{
		Use:   "words <image-file>",
		Short: "Dump big-endian 32-bit words from a raw memory image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := f.Seek(offset, 0); err != nil {
				return err
			}

			buf := make([]byte, 4)
			for i := 0; i < count; i++ {
				if _, err := f.Read(buf); err != nil {
					return fmt.Errorf("read word %d: %w", i, err)
				}
				addr := offset + int64(i)*4
				fmt.Printf("%08x: %08x\n", addr, binary.BigEndian.Uint32(buf))
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&offset, "offset", "o", 0, "byte offset to start dumping from")
	cmd.Flags().IntVarP(&count, "count", "n", 16, "number of words to dump")
	return cmd
}

// PCB field offsets, mirroring emu/exception's in-memory layout
// (spec.md section 3's Process Control Block).
const (
	pcbPSW       = 0x00
	pcbPC        = 0x04
	pcbSP        = 0x08
	pcbStackBase = 0x0c
	pcbStackBnd  = 0x10
)

func newPCBCmd() *cobra.Command {
	var addr int64

	cmd := &cobra.Command{
		Use:   "pcb <image-file>",
		Short: "Decode a Process Control Block at a given byte offset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			readWord := func(off int64) (uint32, error) {
				buf := make([]byte, 4)
				if _, err := f.ReadAt(buf, addr+off); err != nil {
					return 0, err
				}
				return binary.BigEndian.Uint32(buf), nil
			}

			psw, err := readWord(pcbPSW)
			if err != nil {
				return fmt.Errorf("read PSW: %w", err)
			}
			pc, err := readWord(pcbPC)
			if err != nil {
				return fmt.Errorf("read PC: %w", err)
			}
			sp, err := readWord(pcbSP)
			if err != nil {
				return fmt.Errorf("read SP: %w", err)
			}
			stackBase, err := readWord(pcbStackBase)
			if err != nil {
				return fmt.Errorf("read stack base: %w", err)
			}
			stackBnd, err := readWord(pcbStackBnd)
			if err != nil {
				return fmt.Errorf("read stack bound: %w", err)
			}

			fmt.Printf("PCB @ %#x\n", addr)
			fmt.Printf("  PSW         = %#08x\n", psw)
			fmt.Printf("  PC          = %#08x\n", pc)
			fmt.Printf("  SP          = %#08x\n", sp)
			fmt.Printf("  stack base  = %#08x\n", stackBase)
			fmt.Printf("  stack bound = %#08x\n", stackBnd)
			return nil
		},
	}
	cmd.Flags().Int64VarP(&addr, "addr", "a", 0, "byte offset of the PCB within the image")
	return cmd
}
