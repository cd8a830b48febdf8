package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"checkengine/internal/app"
	"checkengine/internal/autochecks"
	"checkengine/internal/checking"
	"checkengine/internal/clock"
	"checkengine/internal/config"
	"checkengine/internal/domain"
	"checkengine/internal/logging"
	"checkengine/internal/plugins"
	"checkengine/internal/submit"

	"github.com/spf13/cobra"
)

// agentFlags select the agent output a one-shot command works on.
type agentFlags struct {
	host       string
	agentFile  string
	sourceType string
	autochecks string
}

func (f *agentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", "", "host name as configured")
	cmd.Flags().StringVar(&f.agentFile, "agent-file", "", "file with raw agent output ('-' reads stdin)")
	cmd.Flags().StringVar(&f.sourceType, "source-type", string(domain.SourceTypeHost), "HOST or MANAGEMENT")
	cmd.Flags().StringVar(&f.autochecks, "autochecks-dir", "", "autochecks directory (overrides config; a scratch dir is used when both are empty)")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("agent-file")
}

// loadOneShotConfig loads config when a source is given, defaults otherwise.
func loadOneShotConfig(flags *configFlags) (config.Config, error) {
	if strings.TrimSpace(flags.file) == "" && strings.TrimSpace(flags.dir) == "" {
		return config.Parse(nil)
	}
	source, err := config.FromCLI(flags.file, flags.dir)
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadSnapshot(source)
}

// newOneShotChecker builds an in-memory checker fed with one agent output.
// Params: config flags, agent flags and stdin for "-".
// Returns: checker, cleanup func and setup error.
func newOneShotChecker(flags *configFlags, agent agentFlags, stdin io.Reader) (*app.Checker, func(), error) {
	cfg, err := loadOneShotConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	if agent.autochecks != "" {
		cfg.Autochecks.Dir = agent.autochecks
	}
	if cfg.Autochecks.Dir == "" {
		scratch, err := os.MkdirTemp("", "checkengine-autochecks-")
		if err != nil {
			closeLog()
			return nil, nil, err
		}
		cfg.Autochecks.Dir = scratch
		closeLogOnly := closeLog
		closeLog = func() {
			_ = os.RemoveAll(scratch)
			closeLogOnly()
		}
	}

	var payload []byte
	if agent.agentFile == "-" {
		payload, err = io.ReadAll(stdin)
	} else {
		payload, err = os.ReadFile(agent.agentFile)
	}
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("read agent output: %w", err)
	}

	registry, err := plugins.NewRegistry()
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	clk := clock.RealClock{}
	checker, err := app.NewChecker(cfg, app.Deps{
		Registry:   registry,
		Crash:      checking.NewCrashReporter(cfg.Crash.Dir, clk, logger),
		Autochecks: autochecks.NewStore(cfg.Autochecks.Dir),
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	data := domain.RawHostData{
		DT:         clk.Now().UnixMilli(),
		Host:       domain.HostName(agent.host),
		SourceType: domain.SourceType(strings.ToUpper(agent.sourceType)),
		Payload:    string(payload),
	}
	if err := data.Normalize(); err != nil {
		closeLog()
		return nil, nil, err
	}
	_ = checker.Push(data)
	return checker, closeLog, nil
}

func newCheckCmd(flags *configFlags) *cobra.Command {
	var (
		agent    agentFlags
		output   string
		discover bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check one host on a saved agent output and print the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker, closeLog, err := newOneShotChecker(flags, agent, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeLog()

			host := domain.HostName(agent.host)
			if discover {
				if _, err := checker.Discover(host, true); err != nil {
					return err
				}
			}
			batch, err := checker.CheckOnce(cmd.Context(), host)
			if printErr := printBatch(cmd.OutOrStdout(), batch, output); printErr != nil {
				return printErr
			}
			return err
		},
	}
	agent.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&discover, "discover", false, "run discovery and write autochecks before checking")
	return cmd
}

// printBatch renders check results.
// Params: writer, batch and format (table or json).
// Returns: write error.
func printBatch(w io.Writer, batch submit.Batch, format string) error {
	switch strings.ToLower(format) {
	case "json":
		messages := make([]submit.Message, 0, len(batch.Results))
		for _, res := range batch.Results {
			messages = append(messages, submit.NewMessage(batch.Host, batch.CheckedAt, res))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(messages)
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "STATE\tSERVICE\tSUMMARY")
		for _, res := range batch.Results {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Result.State, res.Service.Description, res.Result.Summary())
		}
		return tw.Flush()
	}
}
