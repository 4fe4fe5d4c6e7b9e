/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utilities.go
Description: Utility commands. Provides list-mutators and a self-check that
exercises the harness against the built-in scanner and probes the host for shared
memory support.
*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/kleascm/crashprobe/pkg/analysis"
	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/kleascm/crashprobe/pkg/execution"
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/kleascm/crashprobe/pkg/strategies"
	"github.com/kleascm/crashprobe/pkg/target"
	"github.com/spf13/cobra"
)

// ListMutators lists all available mutators
func ListMutators(cmd *cobra.Command, args []string) {
	fmt.Println("🧬 crashprobe - Available Mutators")
	fmt.Println("==================================")
	fmt.Println()

	for i, m := range strategies.Catalog() {
		fmt.Printf("%d. %s\n", i+1, m.Name())
		fmt.Printf("   %s\n", m.Description())
		fmt.Println()
	}

	fmt.Println("✨ Fuzzing uses ScheduleMutator, which picks one stage per input")
	fmt.Println("   and splices with another corpus entry 10% of the time")
}

// RunCheck validates the harness and host
func RunCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("🔍 crashprobe - System Self-Check")
	fmt.Println("=================================")
	fmt.Println()

	checks := []struct {
		name     string
		function func() error
	}{
		{"Scanner Behaviour", checkScanner},
		{"Shared Memory", checkSharedMemory},
		{"Working Directory Permissions", checkWorkingDirectory},
		{"CPU Cores", checkCPU},
	}

	passed := 0
	total := len(checks)

	for _, check := range checks {
		fmt.Printf("🔍 %s... ", check.name)
		if err := check.function(); err != nil {
			fmt.Printf("❌ FAILED: %v\n", err)
		} else {
			fmt.Println("✅ PASSED")
			passed++
		}
	}

	fmt.Println()
	fmt.Printf("📊 Results: %d/%d checks passed\n", passed, total)

	if passed == total {
		fmt.Println("✨ All checks passed! System is ready for fuzzing.")
		return nil
	}
	fmt.Println("⚠️  Some checks failed. Please address the issues before fuzzing.")
	return fmt.Errorf("%d/%d checks failed", total-passed, total)
}

// checkScanner runs the in-process scanner on a boring input and the trigger
// and expects the trigger to crash and reach extra edges
func checkScanner() error {
	executor := execution.NewInProcessExecutor(execution.ScannerTarget)
	if err := executor.Initialize(&interfaces.FuzzerConfig{CrashExitCodes: []int{target.ExitTriggered}}); err != nil {
		return err
	}
	defer executor.Cleanup()

	inputs := make([][]byte, len(analysis.DefaultProbeInputs))
	for i, s := range analysis.DefaultProbeInputs {
		inputs[i] = []byte(s)
	}
	results, err := analysis.NewProbe(executor).Run(context.Background(), inputs)
	if err != nil {
		return err
	}

	base, trigger := results[0], results[1]
	if base.Status != interfaces.StatusSuccess || base.ExitCode != target.ExitOK {
		return fmt.Errorf("input %q: got %s exit %d", base.Input, base.Status, base.ExitCode)
	}
	if trigger.Status != interfaces.StatusCrash || trigger.ExitCode != target.ExitTriggered {
		return fmt.Errorf("input %q: got %s exit %d", trigger.Input, trigger.Status, trigger.ExitCode)
	}
	if len(analysis.Compare(base, trigger)) == 0 {
		return errors.New("trigger reached no new edges")
	}
	return nil
}

func checkSharedMemory() error {
	shm, err := coverage.NewSharedMemory(coverage.MapSize)
	if err != nil {
		return fmt.Errorf("%w (use --no-shm)", err)
	}
	return shm.Close()
}

func checkWorkingDirectory() error {
	dir, err := os.MkdirTemp(".", ".crashprobe_check_")
	if err != nil {
		return fmt.Errorf("cannot create directories: %w", err)
	}
	return os.RemoveAll(dir)
}

func checkCPU() error {
	if n := runtime.NumCPU(); n < 2 {
		return fmt.Errorf("only %d CPU core, use --workers 1", n)
	}
	return nil
}
