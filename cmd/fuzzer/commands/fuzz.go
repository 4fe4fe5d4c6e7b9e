/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fuzz.go
Description: Fuzz command implementation. Builds the fuzzer configuration from flags,
config file and environment, runs the engine until the session timeout, a signal or
the crash limit stops it and prints the final statistics.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kleascm/crashprobe/pkg/core"
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunFuzz executes the main fuzzing process
func RunFuzz(cmd *cobra.Command, args []string) error {
	fmt.Println("🚀 crashprobe - Starting Fuzzing Session")
	fmt.Println("========================================")
	fmt.Println()

	logger, err := prepare()
	if err != nil {
		return err
	}
	defer logger.Close()

	config, err := createFuzzerConfig(args)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	engine := core.NewEngine(config, logger.GetLogger())
	engine.AddReporter(core.NewLoggerReporter(logger.GetLogger()))
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressCtx, stopProgress := context.WithCancel(ctx)
	go reportStats(progressCtx, engine)

	runErr := engine.Run(ctx)
	stopProgress()
	if ctx.Err() != nil {
		fmt.Println("\n🛑 Received shutdown signal, fuzzer stopped")
	}
	if runErr != nil {
		return fmt.Errorf("fuzzing session failed: %w", runErr)
	}

	stats := engine.Stats()
	logger.LogStats(stats.Executions(), stats.UniqueCrashes(), stats.UniqueHangs(), stats.ExecutionsPerSecond())
	if path := logger.FilePath(); path != "" {
		fmt.Printf("📝 Log file: %s\n", path)
	}

	printFinalStats(engine)
	fmt.Println("\n✨ Fuzzing session completed!")
	return nil
}

// createFuzzerConfig creates the fuzzer configuration from viper
func createFuzzerConfig(args []string) (*interfaces.FuzzerConfig, error) {
	path, targetArgs, err := splitTarget(args)
	if err != nil {
		return nil, err
	}
	codes, err := crashExitCodes("crash_exit_codes")
	if err != nil {
		return nil, err
	}
	sessionTimeout, err := parseSessionTimeout(viper.GetString("session_timeout"))
	if err != nil {
		return nil, err
	}

	config := &interfaces.FuzzerConfig{
		TargetPath:     path,
		TargetArgs:     targetArgs,
		TargetEnv:      viper.GetStringSlice("target_env"),
		InputMode:      interfaces.InputModeFile,
		Workers:        viper.GetInt("workers"),
		ExecTimeout:    viper.GetDuration("exec_timeout"),
		SessionTimeout: sessionTimeout,
		SeedDir:        viper.GetString("seed_dir"),
		WatchSeeds:     viper.GetBool("watch_seeds"),
		OutputDir:      viper.GetString("output_dir"),
		DictionaryPath: viper.GetString("dictionary"),
		MapSize:        viper.GetInt("map_size"),
		UseSharedMem:   !viper.GetBool("no_shm"),
		CrashExitCodes: codes,
		MaxCrashes:     viper.GetInt("max_crashes"),
		LogLevel:       viper.GetString("log_level"),
	}
	if viper.GetBool("stdin") {
		config.InputMode = interfaces.InputModeStdin
	}
	if config.WatchSeeds && config.SeedDir == "" {
		return nil, fmt.Errorf("--watch-seeds requires a seed directory")
	}
	return config, nil
}

// reportStats periodically prints a progress line
func reportStats(ctx context.Context, engine *core.Engine) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Stats()
			fmt.Printf("\r🔄 Executions: %d | Paths: %d | Crashes: %d | Hangs: %d | Rate: %.1f/sec",
				stats.Executions(), engine.Corpus().Size(), stats.UniqueCrashes(),
				stats.UniqueHangs(), stats.ExecutionsPerSecond())
		}
	}
}

// printFinalStats prints the session summary
func printFinalStats(engine *core.Engine) {
	summary := engine.Summary()

	fmt.Println("\n📊 Final Statistics")
	fmt.Println("==================")
	fmt.Printf("Session: %s\n", summary.SessionID)
	fmt.Printf("Target: %s\n", summary.Target)
	fmt.Printf("Total Runtime: %s\n", summary.Duration)
	fmt.Printf("Total Executions: %d\n", summary.Executions)
	fmt.Printf("Average Rate: %.1f executions/sec\n", summary.ExecsPerSec)
	fmt.Printf("Corpus Paths: %d (%d favored, %d imported)\n", summary.Paths, summary.Favored, summary.Imported)
	fmt.Printf("Covered Edges: %d\n", summary.CoveredEdges)
	fmt.Printf("Unique Crashes: %d\n", summary.UniqueCrashes)
	fmt.Printf("Unique Hangs: %d\n", summary.UniqueHangs)
	fmt.Printf("Output: %s\n", engine.Layout().TargetDir)

	if last := engine.Stats().LastCrash(); !last.IsZero() {
		fmt.Printf("Last Crash: %v\n", last.Format("2006-01-02 15:04:05"))
	}
}
