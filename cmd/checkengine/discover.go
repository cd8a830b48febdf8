package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"checkengine/internal/checkers"
	"checkengine/internal/domain"

	"github.com/spf13/cobra"
)

func newDiscoverCmd(flags *configFlags) *cobra.Command {
	var (
		agent  agentFlags
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover services and host labels on a saved agent output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker, cleanup, err := newOneShotChecker(flags, agent, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := checker.Discover(domain.HostName(agent.host), !dryRun)
			if printErr := printDiscovery(cmd.OutOrStdout(), result); printErr != nil {
				return printErr
			}
			return err
		},
	}
	agent.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print discovered services without writing autochecks")
	return cmd
}

// printDiscovery renders discovered services, host labels and failed plugins.
func printDiscovery(w io.Writer, result checkers.DiscoveryResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PLUGIN\tITEM")
	for _, entry := range result.Services {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", entry.CheckPluginName, entry.Item)
	}
	if len(result.HostLabels) > 0 {
		_, _ = fmt.Fprintln(tw, "\nLABEL\tVALUE")
		for _, label := range result.HostLabels {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", label.Name, label.Value)
		}
	}
	if len(result.Failed) > 0 {
		names := make([]string, 0, len(result.Failed))
		for name := range result.Failed {
			names = append(names, string(name))
		}
		sort.Strings(names)
		_, _ = fmt.Fprintln(tw, "\nFAILED\tERROR")
		for _, name := range names {
			_, _ = fmt.Fprintf(tw, "%s\t%v\n", name, result.Failed[domain.CheckPluginName(name)])
		}
	}
	return tw.Flush()
}
