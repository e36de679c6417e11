// Package main provides the entry point for TacOS.
// TacOS simulates the RISC-V machine an educational kernel runs on.
//
// For the full CLI, use: go run ./cmd/nachos
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("TacOS - RISC-V machine simulator")
	fmt.Println("")
	fmt.Println("Usage: nachos [options] <program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to machine configuration (JSON or YAML)")
	fmt.Println("  -d         Debug flags (+ all, m machine, i interrupts, d disk, a address spaces)")
	fmt.Println("  -s         Single-step in the machine debugger")
	fmt.Println("  -rs        Seed for random timer interrupts")
	fmt.Println("  -v         Print statistics when the machine halts")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/nachos' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/nachos' instead.")
	}
}
