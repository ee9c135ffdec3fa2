package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/ruleengine/integrations/eventbus"
	"github.com/liamcoop/ruleengine/integrations/httpcall"
	"github.com/liamcoop/ruleengine/loader"
	"github.com/liamcoop/ruleengine/rules"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Facts      string
	Database   string
	ServiceURL string
	Timeout    time.Duration
	Events     eventbus.Config
}

// RunReport is the JSON payload of a run.
type RunReport struct {
	Outputs    map[string]any `json:"outputs"`
	Fired      []string       `json:"fired"`
	Skipped    int            `json:"skipped"`
	DurationMS float64        `json:"duration_ms"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [rules-file]",
		Short: "Run a rule set against a fact snapshot",
		Long: `Run every enabled rule in priority order against the given facts and
print the resulting outputs.

Rules come from a JSON, YAML or CUE file, or from a SQLite store with --db.
External service calls succeed without I/O unless --service-url is set.
Events are logged unless --events selects a broker.

Example:
  rulectl run rules.yaml --facts txn.json
  rulectl run --db rules.db --facts txn.json --format json
  rulectl run rules.cue --facts txn.json --service-url http://localhost:9000 --events nats --events-url nats://localhost:4222`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRules(ctx, opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Facts, "facts", "", "path to a JSON or YAML fact file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "load rules from this SQLite store instead of a file")
	cmd.Flags().StringVar(&opts.ServiceURL, "service-url", "", "base URL for CallExternalService actions")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall run timeout")
	cmd.Flags().StringVar(&opts.Events.Type, "events", eventbus.TypeLog, "event bus (log|kafka|nats|redis|mqtt|rabbitmq)")
	cmd.Flags().StringVar(&opts.Events.URL, "events-url", "", "event broker URL")
	cmd.Flags().StringSliceVar(&opts.Events.Brokers, "events-brokers", nil, "kafka brokers")
	cmd.Flags().StringVar(&opts.Events.Topic, "events-topic", "", "kafka topic")
	cmd.Flags().StringVar(&opts.Events.SubjectPrefix, "events-prefix", "rules.", "subject prefix for published events")

	return cmd
}

func runRules(ctx context.Context, opts *RunOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	ruleSet, err := loadRuleSet(opts, args, f)
	if err != nil {
		return err
	}

	facts := rules.Map{}
	if opts.Facts != "" {
		facts, err = loader.LoadFacts(opts.Facts)
		if err != nil {
			return f.Error(ExitCommandError, ErrCodeLoad, "failed to load facts", err, nil)
		}
	}
	f.VerboseLog("Loaded %d rule(s) and %d fact(s)", len(ruleSet), len(facts))

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log := opts.newLogger(f.ErrWriter)
	collaborators := rules.Collaborators{
		Services: rules.StubServiceCaller{},
		Logger:   rules.NewSlogLogger(log),
	}
	if opts.ServiceURL != "" {
		config := httpcall.DefaultConfig()
		config.BaseURL = opts.ServiceURL
		collaborators.Services = httpcall.New(config, nil, log)
	}
	bus, err := eventbus.New(ctx, opts.Events, log)
	if err != nil {
		return f.Error(ExitCommandError, ErrCodeLoad, "failed to connect event bus", err, nil)
	}
	defer bus.Close()
	collaborators.Events = bus

	return executeRules(ctx, f, rules.NewEngine(rules.WithCollaborators(collaborators)), ruleSet, facts)
}

func loadRuleSet(opts *RunOptions, args []string, f *OutputFormatter) ([]rules.Rule, error) {
	switch {
	case len(args) == 1 && opts.Database != "":
		return nil, f.Error(ExitCommandError, ErrCodeLoad, "pass either a rules file or --db, not both", nil, nil)
	case len(args) == 1:
		ruleSet, err := loader.LoadFile(args[0])
		if err != nil {
			return nil, f.Error(ExitCommandError, ErrCodeLoad, "failed to load rules", err, nil)
		}
		return ruleSet, nil
	case opts.Database != "":
		store, err := rules.OpenSQLiteRuleStore(opts.Database)
		if err != nil {
			return nil, f.Error(ExitCommandError, ErrCodeStore, "failed to open store", err, nil)
		}
		defer store.Close()
		ruleSet, err := store.List()
		if err != nil {
			return nil, f.Error(ExitCommandError, ErrCodeStore, "failed to list rules", err, nil)
		}
		return ruleSet, nil
	default:
		return nil, f.Error(ExitCommandError, ErrCodeLoad, "a rules file or --db is required", nil, nil)
	}
}

// executeRules runs ruleSet and reports the outcome. Partial outputs are
// printed when the run fails.
func executeRules(ctx context.Context, f *OutputFormatter, engine *rules.Engine, ruleSet []rules.Rule, facts rules.Map) error {
	engine.AddMany(ruleSet)

	result, err := engine.Run(ctx, facts)
	report := RunReport{
		Outputs:    rules.ToNativeMap(result.Outputs),
		Fired:      result.Fired,
		Skipped:    result.Skipped,
		DurationMS: float64(result.Duration.Microseconds()) / 1000,
	}
	if report.Fired == nil {
		report.Fired = []string{}
	}

	if err != nil {
		if f.Format != "json" {
			fmt.Fprintf(f.Writer, "Partial outputs:\n%s\n", formatOutputs(result.Outputs))
		}
		return f.Error(ExitFailure, ErrCodeRun, "rule run failed", err, report)
	}

	f.VerboseLog("Run finished in %s", result.Duration)
	return f.Success(report, textReport(result))
}

func textReport(result *rules.RunResult) string {
	fired := "none"
	if len(result.Fired) > 0 {
		fired = strings.Join(result.Fired, ", ")
	}
	return fmt.Sprintf("Fired: %s\nSkipped: %d\nOutputs:\n%s", fired, result.Skipped, formatOutputs(result.Outputs))
}
