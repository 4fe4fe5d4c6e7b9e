/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Entry point for the crashprobe command line. Wires the cobra command
tree and binds every flag into viper so config files and CRASHPROBE_* environment
variables can override them.
*/

package main

import (
	"fmt"
	"os"

	"github.com/kleascm/crashprobe/cmd/fuzzer/commands"
	"github.com/kleascm/crashprobe/pkg/core"
	"github.com/kleascm/crashprobe/pkg/execution"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "crashprobe",
	Short: "Coverage-guided fuzzer for stdin and file driven targets",
	Long: `crashprobe drives a target program with mutated inputs, keeps the inputs
that reach new coverage and stores every unique crash and hang.

Output follows the AFL layout (queue/, crashes/, hangs/, fuzzer_stats, plot_data)
so existing tooling can read it.`,
	Version: core.Version,
}

var fuzzCmd = &cobra.Command{
	Use:   "fuzz <target> [args...]",
	Short: "Fuzz a target binary",
	Long: `Start a fuzzing session. Put @@ in the target arguments to receive the
input as a file path, or pass --stdin to feed it on standard input.`,
	Example: `  crashprobe fuzz -i seeds -x dict.txt ./scanner @@
  crashprobe fuzz --stdin --timeout 10m ./scanner
  crashprobe fuzz -t 3600 ./scanner @@`,
	Args: cobra.MinimumNArgs(1),
	RunE: commands.RunFuzz,
}

var probeCmd = &cobra.Command{
	Use:   "probe <target> [args...]",
	Short: "Run fixed inputs and compare their coverage",
	Args:  cobra.MinimumNArgs(1),
	RunE:  commands.RunProbe,
}

var reproduceCmd = &cobra.Command{
	Use:   "reproduce <target> [args...]",
	Short: "Replay a crash input and measure how reliably it reproduces",
	Args:  cobra.MinimumNArgs(1),
	RunE:  commands.RunReproduce,
}

var minimizeCmd = &cobra.Command{
	Use:   "minimize <target> [args...]",
	Short: "Shrink a crash input while keeping the same crash reason",
	Args:  cobra.MinimumNArgs(1),
	RunE:  commands.RunMinimize,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build a comparison report from stats_<target>.csv files",
	RunE:  commands.RunReport,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Self-check the harness against the built-in scanner",
	RunE:  commands.RunCheck,
}

var listMutatorsCmd = &cobra.Command{
	Use:   "list-mutators",
	Short: "List the available mutators",
	Run:   commands.ListMutators,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Configuration file (yaml, json or toml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "custom", "Log format (custom, text, json)")
	pf.String("log-dir", "", "Directory for log files (empty logs to stderr only)")
	pf.Int("log-max-files", 10, "Log files to keep in the log directory")
	pf.Bool("log-compress", false, "Gzip rotated log files")
	pf.Bool("log-caller", false, "Include caller information in logs")
	pf.Bool("no-color", false, "Disable colored log output")

	viper.BindPFlag("config", pf.Lookup("config"))
	viper.BindPFlag("log_level", pf.Lookup("log-level"))
	viper.BindPFlag("log_format", pf.Lookup("log-format"))
	viper.BindPFlag("log_dir", pf.Lookup("log-dir"))
	viper.BindPFlag("log_max_files", pf.Lookup("log-max-files"))
	viper.BindPFlag("log_compress", pf.Lookup("log-compress"))
	viper.BindPFlag("log_caller", pf.Lookup("log-caller"))
	viper.BindPFlag("no_color", pf.Lookup("no-color"))

	setupFuzzFlags()
	setupExecFlags(probeCmd, reproduceCmd, minimizeCmd)

	probeCmd.Flags().StringArray("input", nil, "Input to run (repeatable, default: \"a\" and \"crash\")")
	reproduceCmd.Flags().String("crash-file", "", "Crash input to replay")
	reproduceCmd.Flags().Int("attempts", 10, "Number of replays")
	reproduceCmd.MarkFlagRequired("crash-file")
	minimizeCmd.Flags().String("crash-file", "", "Crash input to shrink")
	minimizeCmd.Flags().String("output", "", "Where to write the minimized input (default: <crash-file>.min)")
	minimizeCmd.Flags().Int("max-runs", 4096, "Execution budget")
	minimizeCmd.MarkFlagRequired("crash-file")

	reportCmd.Flags().String("out", "./out", "Directory holding stats_<target>.csv files")
	reportCmd.Flags().String("pattern", "", "Glob for stats files (default stats_target*.csv)")

	rootCmd.AddCommand(fuzzCmd, probeCmd, reproduceCmd, minimizeCmd, reportCmd, checkCmd, listMutatorsCmd)
}

// setupFuzzFlags registers the fuzz command flags and binds them into viper
func setupFuzzFlags() {
	f := fuzzCmd.Flags()
	f.SetInterspersed(false)

	f.BoolP("stdin", "s", false, "Feed inputs on stdin instead of a file")
	f.StringP("timeout", "t", core.DefaultSessionTimeout.String(), "Session timeout in seconds or as a duration (3600, 10m)")
	f.StringP("dict", "x", "", "Dictionary file (AFL format)")
	f.StringP("seeds", "i", "", "Seed directory")
	f.StringP("out", "o", "./out", "Output directory")
	f.Duration("exec-timeout", execution.DefaultExecTimeout, "Per execution timeout")
	f.Int("workers", 1, "Parallel workers")
	f.IntSlice("crash-exit-codes", []int{core.DefaultCrashExitCode}, "Exit codes treated as crashes")
	f.Int("max-crashes", 0, "Stop after this many unique crashes (0 = unlimited)")
	f.Int("map-size", 65536, "Coverage map size in bytes")
	f.Bool("no-shm", false, "Run without shared memory coverage")
	f.Bool("watch-seeds", false, "Import files added to the seed directory while running")
	f.StringSlice("env", nil, "Extra KEY=VALUE environment for the target")

	binds := map[string]string{
		"stdin":            "stdin",
		"timeout":          "session_timeout",
		"dict":             "dictionary",
		"seeds":            "seed_dir",
		"out":              "output_dir",
		"exec-timeout":     "exec_timeout",
		"workers":          "workers",
		"crash-exit-codes": "crash_exit_codes",
		"max-crashes":      "max_crashes",
		"map-size":         "map_size",
		"no-shm":           "no_shm",
		"watch-seeds":      "watch_seeds",
		"env":              "target_env",
	}
	for flag, key := range binds {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

// setupExecFlags adds the target execution flags shared by the replay commands
func setupExecFlags(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		f := cmd.Flags()
		f.SetInterspersed(false)
		f.BoolP("stdin", "s", false, "Feed inputs on stdin instead of a file")
		f.Duration("exec-timeout", execution.DefaultExecTimeout, "Per execution timeout")
		f.IntSlice("crash-exit-codes", []int{core.DefaultCrashExitCode}, "Exit codes treated as crashes")
		f.Bool("no-shm", false, "Run without shared memory coverage")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
