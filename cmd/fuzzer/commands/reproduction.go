/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reproduction.go
Description: Crash reproduction and minimization commands. Replays a saved crash
input against the target to measure how reliably it reproduces, and shrinks a crash
input to the smallest file that still fails with the same reason.
*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/kleascm/crashprobe/pkg/analysis"
	"github.com/spf13/cobra"
)

// RunReproduce replays a crash file several times
func RunReproduce(cmd *cobra.Command, args []string) error {
	fmt.Println("🔄 crashprobe - Crash Reproduction")
	fmt.Println("==================================")
	fmt.Println()

	logger, err := prepare()
	if err != nil {
		return err
	}
	defer logger.Close()

	crashFile, _ := cmd.Flags().GetString("crash-file")
	attempts, _ := cmd.Flags().GetInt("attempts")
	data, err := os.ReadFile(crashFile)
	if err != nil {
		return fmt.Errorf("failed to read crash file: %w", err)
	}

	config, err := execConfig(cmd, args)
	if err != nil {
		return err
	}
	executor, err := newExecutor(config, logger.GetLogger())
	if err != nil {
		return err
	}
	defer executor.Cleanup()

	fmt.Printf("📁 Crash file: %s (%d bytes)\n", crashFile, len(data))
	if reason := analysis.ReasonFromFileName(filepath.Base(crashFile)); reason != "" {
		fmt.Printf("   Recorded reason: %s (%s)\n", reason, analysis.DescribeReason(reason))
	}

	harness := analysis.NewReproducibilityHarness(&analysis.ReproducibilityConfig{Attempts: attempts}, executor, logger.GetLogger())
	result, err := harness.Reproduce(context.Background(), data)
	if err != nil {
		return fmt.Errorf("reproduction failed: %w", err)
	}

	fmt.Println("\n📊 Reproduction Results")
	fmt.Println("=======================")
	fmt.Printf("Attempts: %d\n", result.Attempts)
	fmt.Printf("Reproductions: %d (%.0f%%)\n", result.Reproductions, result.ReproductionRate*100)
	fmt.Printf("Duration: %v\n", result.Duration)
	for _, reason := range sortedKeys(result.ReasonCounts) {
		fmt.Printf("   %s: %d (%s)\n", reason, result.ReasonCounts[reason], analysis.DescribeReason(reason))
	}
	if stderr := strings.TrimSpace(string(result.Stderr)); stderr != "" {
		fmt.Printf("Stderr: %s\n", stderr)
	}

	if !result.Reproducible {
		fmt.Println("\n❌ Crash did not reproduce")
		return analysis.ErrNotReproducible
	}
	if result.Reproductions < result.Attempts {
		fmt.Println("\n⚠️  Crash is flaky")
	} else {
		fmt.Println("\n✅ Crash reproduces reliably")
	}
	return nil
}

// RunMinimize shrinks a crash file
func RunMinimize(cmd *cobra.Command, args []string) error {
	fmt.Println("✂️  crashprobe - Crash Minimization")
	fmt.Println("==================================")
	fmt.Println()

	logger, err := prepare()
	if err != nil {
		return err
	}
	defer logger.Close()

	crashFile, _ := cmd.Flags().GetString("crash-file")
	output, _ := cmd.Flags().GetString("output")
	maxRuns, _ := cmd.Flags().GetInt("max-runs")
	if output == "" {
		output = crashFile + ".min"
	}

	data, err := os.ReadFile(crashFile)
	if err != nil {
		return fmt.Errorf("failed to read crash file: %w", err)
	}

	config, err := execConfig(cmd, args)
	if err != nil {
		return err
	}
	executor, err := newExecutor(config, logger.GetLogger())
	if err != nil {
		return err
	}
	defer executor.Cleanup()

	minimizer := analysis.NewMinimizer(executor, logger.GetLogger())
	minimizer.MaxRuns = maxRuns
	result, err := minimizer.Minimize(context.Background(), data)
	if errors.Is(err, analysis.ErrNotReproducible) {
		fmt.Println("❌ Input does not crash the target, nothing to minimize")
		return err
	}
	if err != nil {
		return fmt.Errorf("minimization failed: %w", err)
	}

	if err := renameio.WriteFile(output, result.Data, 0644); err != nil {
		return fmt.Errorf("failed to write minimized input: %w", err)
	}

	fmt.Printf("Reason: %s (%s)\n", result.Reason, analysis.DescribeReason(result.Reason))
	fmt.Printf("Size: %d -> %d bytes in %d runs\n", result.OriginalSize, len(result.Data), result.Runs)
	fmt.Printf("Minimized input: %s\n", printable(result.Data))
	fmt.Printf("\n✨ Written to %s\n", output)
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
