/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: Report command implementation. Collects the per-target stats CSV files
from an output directory and writes the markdown table, coverage chart and YAML
summary next to them.
*/

package commands

import (
	"errors"
	"fmt"

	"github.com/kleascm/crashprobe/pkg/reporting"
	"github.com/spf13/cobra"
)

// RunReport generates the experiment report
func RunReport(cmd *cobra.Command, args []string) error {
	fmt.Println("📈 crashprobe - Experiment Report")
	fmt.Println("=================================")
	fmt.Println()

	logger, err := prepare()
	if err != nil {
		return err
	}
	defer logger.Close()

	outDir, _ := cmd.Flags().GetString("out")
	pattern, _ := cmd.Flags().GetString("pattern")

	report, err := reporting.NewReportGenerator(outDir, pattern, logger.GetLogger()).Generate()
	if errors.Is(err, reporting.ErrNoStats) {
		fmt.Printf("❌ No stats files found in %s\n", outDir)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	fmt.Print(reporting.RenderMarkdown(report.Summary))
	fmt.Println()
	fmt.Printf("📄 Report: %s\n", report.MarkdownPath)
	fmt.Printf("📊 Chart: %s\n", report.ChartPath)
	fmt.Printf("🗂  Summary: %s\n", report.SummaryPath)
	return nil
}
