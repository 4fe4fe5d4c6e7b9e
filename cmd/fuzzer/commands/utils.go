/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared helpers for the crashprobe commands. Loads configuration,
builds the logger and turns command line arguments into target configuration.
*/

package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kleascm/crashprobe/pkg/core"
	"github.com/kleascm/crashprobe/pkg/coverage"
	"github.com/kleascm/crashprobe/pkg/execution"
	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/kleascm/crashprobe/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("CRASHPROBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return nil
}

// SetupLogging builds the session logger from the log_* settings
func SetupLogging() (*logging.Logger, error) {
	config := logging.DefaultConfig()
	config.Level = logging.LogLevel(viper.GetString("log_level"))
	config.Format = logging.LogFormat(viper.GetString("log_format"))
	config.OutputDir = viper.GetString("log_dir")
	config.MaxFiles = viper.GetInt("log_max_files")
	config.Compress = viper.GetBool("log_compress")
	config.Caller = viper.GetBool("log_caller")
	config.Colors = !viper.GetBool("no_color")

	logger, err := logging.NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}

// prepare runs the steps every command starts with
func prepare() (*logging.Logger, error) {
	if err := LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return SetupLogging()
}

// splitTarget accepts either "prog arg..." as separate arguments or a single
// quoted command line
func splitTarget(args []string) (string, []string, error) {
	if len(args) == 1 && strings.ContainsAny(args[0], " \t") {
		return execution.ParseCommand(args[0])
	}
	if len(args) == 0 || args[0] == "" {
		return "", nil, fmt.Errorf("no target specified")
	}
	return args[0], args[1:], nil
}

// crashExitCodes reads an exit code list from viper. Flags and config files
// yield a list while the environment yields one comma separated string.
func crashExitCodes(key string) ([]int, error) {
	var codes []int
	for _, entry := range viper.GetStringSlice(key) {
		for _, field := range strings.Split(strings.Trim(entry, "[]"), ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			code, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("invalid crash exit code %q", field)
			}
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// parseSessionTimeout accepts a Go duration or a bare number of seconds
func parseSessionTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative session timeout %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid session timeout %q: use seconds or a duration like 10m", value)
	}
	return d, nil
}

// execConfig builds the executor configuration for the replay commands
func execConfig(cmd *cobra.Command, args []string) (*interfaces.FuzzerConfig, error) {
	path, targetArgs, err := splitTarget(args)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	stdin, _ := flags.GetBool("stdin")
	timeout, _ := flags.GetDuration("exec-timeout")
	codes, _ := flags.GetIntSlice("crash-exit-codes")
	noShm, _ := flags.GetBool("no-shm")

	config := &interfaces.FuzzerConfig{
		TargetPath:     path,
		TargetArgs:     targetArgs,
		InputMode:      interfaces.InputModeFile,
		ExecTimeout:    timeout,
		MapSize:        viper.GetInt("map_size"),
		UseSharedMem:   !noShm,
		CrashExitCodes: codes,
	}
	if stdin {
		config.InputMode = interfaces.InputModeStdin
	}
	if config.MapSize <= 0 {
		config.MapSize = coverage.MapSize
	}
	return config, nil
}

// newExecutor creates and initializes a single process executor
func newExecutor(config *interfaces.FuzzerConfig, logger *logrus.Logger) (interfaces.Executor, error) {
	executor, err := core.ProcessExecutorFactory(config, logger)(0)
	if err != nil {
		return nil, err
	}
	if err := executor.Initialize(config); err != nil {
		executor.Cleanup()
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}
	return executor, nil
}

// printable renders input bytes for terminal output
func printable(data []byte) string {
	const limit = 64
	s := fmt.Sprintf("%q", data)
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
