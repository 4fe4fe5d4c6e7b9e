/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands_test.go
Description: Tests for command argument handling and configuration building.
*/

package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/kleascm/crashprobe/pkg/interfaces"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTarget(t *testing.T) {
	path, args, err := splitTarget([]string{"./scanner", "-v", "@@"})
	require.NoError(t, err)
	assert.Equal(t, "./scanner", path)
	assert.Equal(t, []string{"-v", "@@"}, args)

	path, args, err = splitTarget([]string{`./scanner --name "two words" @@`})
	require.NoError(t, err)
	assert.Equal(t, "./scanner", path)
	assert.Equal(t, []string{"--name", "two words", "@@"}, args)

	_, _, err = splitTarget(nil)
	assert.Error(t, err)
}

func TestCreateFuzzerConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("stdin", true)
	viper.Set("workers", 3)
	viper.Set("exec_timeout", "250ms")
	viper.Set("session_timeout", "10m")
	viper.Set("seed_dir", "seeds")
	viper.Set("output_dir", "results")
	viper.Set("crash_exit_codes", []int{66, 70})
	viper.Set("target_env", []string{"ASAN_OPTIONS=abort_on_error=1"})

	config, err := createFuzzerConfig([]string{"./scanner"})
	require.NoError(t, err)
	assert.Equal(t, "./scanner", config.TargetPath)
	assert.Empty(t, config.TargetArgs)
	assert.Equal(t, interfaces.InputModeStdin, config.InputMode)
	assert.Equal(t, 3, config.Workers)
	assert.Equal(t, 250*time.Millisecond, config.ExecTimeout)
	assert.Equal(t, 10*time.Minute, config.SessionTimeout)
	assert.Equal(t, "seeds", config.SeedDir)
	assert.Equal(t, "results", config.OutputDir)
	assert.Equal(t, []int{66, 70}, config.CrashExitCodes)
	assert.Equal(t, []string{"ASAN_OPTIONS=abort_on_error=1"}, config.TargetEnv)
	assert.True(t, config.UseSharedMem)
}

func TestCreateFuzzerConfigWatchNeedsSeeds(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("watch_seeds", true)
	_, err := createFuzzerConfig([]string{"./scanner"})
	assert.Error(t, err)
}

func TestCreateFuzzerConfigFromEnv(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("CRASHPROBE_CRASH_EXIT_CODES", "66,70")
	t.Setenv("CRASHPROBE_SESSION_TIMEOUT", "3600")
	require.NoError(t, LoadConfig())

	config, err := createFuzzerConfig([]string{"./scanner", "@@"})
	require.NoError(t, err)
	assert.Equal(t, []int{66, 70}, config.CrashExitCodes)
	assert.Equal(t, time.Hour, config.SessionTimeout)
}

func TestCreateFuzzerConfigBadExitCode(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("CRASHPROBE_CRASH_EXIT_CODES", "66,segv")
	require.NoError(t, LoadConfig())

	_, err := createFuzzerConfig([]string{"./scanner"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segv")
}

func TestCrashExitCodesFromFlag(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := &cobra.Command{Use: "fuzz"}
	cmd.Flags().IntSlice("crash-exit-codes", []int{66}, "")
	require.NoError(t, viper.BindPFlag("crash_exit_codes", cmd.Flags().Lookup("crash-exit-codes")))

	codes, err := crashExitCodes("crash_exit_codes")
	require.NoError(t, err)
	assert.Equal(t, []int{66}, codes)

	require.NoError(t, cmd.Flags().Parse([]string{"--crash-exit-codes", "1,66"}))
	codes, err = crashExitCodes("crash_exit_codes")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 66}, codes)
}

func TestParseSessionTimeout(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"3600", time.Hour},
		{"90", 90 * time.Second},
		{"10m", 10 * time.Minute},
		{"24h0m0s", 24 * time.Hour},
		{"", 0},
	}
	for _, c := range cases {
		got, err := parseSessionTimeout(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := parseSessionTimeout("soon")
	assert.Error(t, err)
	_, err = parseSessionTimeout("-5")
	assert.Error(t, err)
}

func TestExecConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := &cobra.Command{Use: "probe"}
	cmd.Flags().Bool("stdin", false, "")
	cmd.Flags().Duration("exec-timeout", time.Second, "")
	cmd.Flags().IntSlice("crash-exit-codes", []int{66}, "")
	cmd.Flags().Bool("no-shm", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--no-shm", "--crash-exit-codes", "66,99"}))

	config, err := execConfig(cmd, []string{"./scanner", "@@"})
	require.NoError(t, err)
	assert.Equal(t, interfaces.InputModeFile, config.InputMode)
	assert.Equal(t, []string{"@@"}, config.TargetArgs)
	assert.False(t, config.UseSharedMem)
	assert.Equal(t, []int{66, 99}, config.CrashExitCodes)
	assert.Equal(t, time.Second, config.ExecTimeout)
	assert.Equal(t, 65536, config.MapSize)
}

func TestCheckScanner(t *testing.T) {
	assert.NoError(t, checkScanner())
}

func TestPrintable(t *testing.T) {
	assert.Equal(t, `"crash\n"`, printable([]byte("crash\n")))
	long := printable([]byte(strings.Repeat("a", 200)))
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.Len(t, long, 67)
}
