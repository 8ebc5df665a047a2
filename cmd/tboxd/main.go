package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError carries a daemon exit status through cobra without printing it.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	kvFlags := &KVFlags{}
	statusFlags := &StatusFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, runFlags),
		createKVCommand(globalFlags, kvFlags),
		createStatusCommand(statusFlags),
	)
	return root
}

// createRootCommand creates the root command with persistent config flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tboxd",
		Short: "Telematics box daemon",
		Long: `tboxd runs the telematics agent and manages its persisted identity values.

Configuration is read from <config-dir>/config.<profile>.yaml. The profile
comes from --profile or the ENV variable (default dev); the directory from
--config-dir or TBOX_CONFIG_DIR (default ../config). Any key can be
overridden with TBOX_<SECTION>_<KEY>, e.g. TBOX_LOGGER_LEVEL=info.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigDir, "config-dir", "", "directory holding config.<profile>.yaml")
	root.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "explicit config file (bypasses profile lookup)")
	root.PersistentFlags().StringVar(&flags.Profile, "profile", "", "configuration profile (default from ENV)")
	return root
}
