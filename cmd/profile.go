package cmd

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/huangsam/weightflow/internal/contract"
)

// profile holds profiling configuration.
var profile = &contract.ProfileConfig{}

// cpuProfile is the open CPU profile while profiling runs.
var cpuProfile *os.File

// startProfiling starts CPU profiling when a --profile prefix was given.
// The heap profile is written by stopProfiling.
func startProfiling() error {
	if !profile.Enabled || cpuProfile != nil {
		return nil
	}

	f, err := os.Create(profile.Prefix + ".cpu.prof")
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not start CPU profiling: %w", err)
	}
	cpuProfile = f

	// Progress goes to stderr so stdout stays parseable
	fmt.Fprintf(os.Stderr, "📈 Profiling to %s.cpu.prof and %s.mem.prof\n", profile.Prefix, profile.Prefix)
	return nil
}

// stopProfiling ends CPU profiling and writes the heap profile.
func stopProfiling() error {
	if cpuProfile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	_ = cpuProfile.Close()
	cpuProfile = nil

	memFile, err := os.Create(profile.Prefix + ".mem.prof")
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer func() { _ = memFile.Close() }()

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}

	fmt.Fprintf(os.Stderr, "📈 Profiles written. Inspect with 'go tool pprof %s.cpu.prof'\n", profile.Prefix)
	return nil
}

// StopProfiling stops profiling if enabled.
func StopProfiling() error {
	return stopProfiling()
}
