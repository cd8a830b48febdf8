package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// main runs the checkengine command tree.
// Params: CLI arguments (serve, check, discover).
// Returns: process exit code by command result.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// configFlags selects the config source shared by all subcommands.
type configFlags struct {
	file string
	dir  string
}

func newRootCmd() *cobra.Command {
	flags := &configFlags{}
	root := &cobra.Command{
		Use:           "checkengine",
		Short:         "Check execution engine for agent based monitoring",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.file, "config-file", "", "path to one TOML config file")
	root.PersistentFlags().StringVar(&flags.dir, "config-dir", "", "path to directory with TOML config fragments")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newCheckCmd(flags))
	root.AddCommand(newDiscoverCmd(flags))
	return root
}
