// Package main runs a RISC-V user program on the simulated machine under
// a minimal kernel.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/Kyllano/TacOS/config"
	"github.com/Kyllano/TacOS/loader"
)

var (
	configPath = flag.String("config", "", "Path to machine configuration (JSON or YAML)")
	debugFlags = flag.String("d", "", "Debug flags: + all, m machine, i interrupts, d disk, a address spaces, v dumps")
	singleStep = flag.Bool("s", false, "Single-step the program in the machine debugger")
	randomSeed = flag.Uint64("rs", 0, "Seed for random timer interrupts (0 disables the timer)")
	diskPath   = flag.String("disk", "", "Disk image (overrides the configuration)")
	swapPath   = flag.String("swap", "", "Swap disk image (overrides the configuration)")
	caches     = flag.Bool("caches", false, "Profile L1 instruction and data caches")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	verbose    = flag.Bool("v", false, "Print statistics when the machine halts")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: nachos [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	os.Exit(run(flag.Arg(0)))
}

func run(programPath string) int {
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create CPU profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "could not start CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}
	if *diskPath != "" {
		cfg.DiskFile = *diskPath
	}
	if *swapPath != "" {
		cfg.SwapFile = *swapPath
	}

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		return 1
	}

	sys, err := newSystem(cfg, options{
		debugFlags:    *debugFlags,
		singleStep:    *singleStep,
		randomSeed:    *randomSeed,
		profileCaches: *caches,
		in:            os.Stdin,
		out:           os.Stdout,
		logOut:        os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting machine: %v\n", err)
		return 1
	}
	defer func() { _ = sys.close() }()

	if err := sys.load(prog, programPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	status := sys.run()

	if *verbose {
		sys.report(os.Stdout)
	}

	return status
}
