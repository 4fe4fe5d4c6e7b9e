/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: probe.go
Description: Probe command implementation. Runs a handful of fixed inputs against the
target and prints their exit status together with the coverage edges the later
inputs reach beyond the first one. Useful to confirm instrumentation works before
starting a long session.
*/

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/kleascm/crashprobe/pkg/analysis"
	"github.com/spf13/cobra"
)

// RunProbe executes the probe inputs and compares their coverage
func RunProbe(cmd *cobra.Command, args []string) error {
	fmt.Println("🔬 crashprobe - Coverage Probe")
	fmt.Println("==============================")
	fmt.Println()

	logger, err := prepare()
	if err != nil {
		return err
	}
	defer logger.Close()

	config, err := execConfig(cmd, args)
	if err != nil {
		return err
	}
	executor, err := newExecutor(config, logger.GetLogger())
	if err != nil {
		return err
	}
	defer executor.Cleanup()

	raw, _ := cmd.Flags().GetStringArray("input")
	if len(raw) == 0 {
		raw = analysis.DefaultProbeInputs
	}
	inputs := make([][]byte, len(raw))
	for i, s := range raw {
		inputs[i] = []byte(s)
	}

	results, err := analysis.NewProbe(executor).Run(context.Background(), inputs)
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("▶ Input %s\n", printable(r.Input))
		fmt.Printf("   Status: %s (exit %d)\n", r.Status, r.ExitCode)
		if r.Reason != "" {
			fmt.Printf("   Reason: %s (%s)\n", r.Reason, analysis.DescribeReason(r.Reason))
		}
		if stderr := strings.TrimSpace(string(r.Stderr)); stderr != "" {
			fmt.Printf("   Stderr: %s\n", stderr)
		}
		fmt.Printf("   Edges: %d", len(r.Edges))
		if r.Hash != "" {
			fmt.Printf(" (hash %s)", r.Hash)
		}
		fmt.Println()
	}

	if len(results) > 1 {
		fmt.Println()
		for _, other := range results[1:] {
			added := analysis.Compare(results[0], other)
			fmt.Printf("🔍 %s reaches %d edges not hit by %s", printable(other.Input), len(added), printable(results[0].Input))
			if len(added) > 0 {
				fmt.Printf(": %v", added)
			}
			fmt.Println()
		}
	}

	if !config.UseSharedMem || results[0].Hash == "" {
		fmt.Println("\n⚠️  No coverage recorded; is the target built with AFL instrumentation?")
	}
	return nil
}
