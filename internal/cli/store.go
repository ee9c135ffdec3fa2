package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/ruleengine/loader"
	"github.com/liamcoop/ruleengine/rules"
)

// StoreOptions holds flags shared by the store subcommands.
type StoreOptions struct {
	*RootOptions
	Database string
}

// RuleSummary is one line of `store list`.
type RuleSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority uint32 `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// NewStoreCommand creates the store command group.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage rules in a local SQLite store",
		Long: `Manage rules persisted in a local SQLite database. The database is
created on first use. Run rules from it with "rulectl run --db".`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "rules.db", "path to SQLite database")

	cmd.AddCommand(newStoreImportCommand(opts))
	cmd.AddCommand(newStoreListCommand(opts))
	cmd.AddCommand(newStoreGetCommand(opts))
	cmd.AddCommand(newStoreDeleteCommand(opts))
	return cmd
}

func (o *StoreOptions) open(f *OutputFormatter) (*rules.SQLiteRuleStore, error) {
	store, err := rules.OpenSQLiteRuleStore(o.Database)
	if err != nil {
		return nil, f.Error(ExitCommandError, ErrCodeStore, "failed to open store", err, nil)
	}
	f.VerboseLog("Opened store %s", o.Database)
	return store, nil
}

func newStoreImportCommand(opts *StoreOptions) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:           "import <rules-file>",
		Short:         "Validate a rule file and add its rules to the store",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			loaded, err := loader.LoadFile(args[0])
			if err != nil {
				return f.Error(ExitCommandError, ErrCodeLoad, "failed to load rules", err, nil)
			}

			store, err := opts.open(f)
			if err != nil {
				return err
			}
			defer store.Close()

			imported := make([]string, 0, len(loaded))
			for _, rule := range loaded {
				err := store.Add(rule)
				if errors.Is(err, rules.ErrRuleExists) && replace {
					err = store.Update(rule)
				}
				if err != nil {
					return f.Error(ExitCommandError, ErrCodeStore, "failed to import rule "+rule.ID, err, imported)
				}
				imported = append(imported, rule.ID)
			}

			return f.Success(map[string]any{"imported": imported},
				fmt.Sprintf("✓ Imported %d rule(s) into %s", len(imported), opts.Database))
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace rules whose id already exists")
	return cmd
}

func newStoreListCommand(opts *StoreOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored rules in insertion order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			store, err := opts.open(f)
			if err != nil {
				return err
			}
			defer store.Close()

			stored, err := store.List()
			if err != nil {
				return f.Error(ExitCommandError, ErrCodeStore, "failed to list rules", err, nil)
			}

			summaries := make([]RuleSummary, len(stored))
			lines := make([]string, len(stored))
			for i, r := range stored {
				summaries[i] = RuleSummary{ID: r.ID, Name: r.Name, Priority: r.Priority, Enabled: r.Enabled}
				state := "enabled"
				if !r.Enabled {
					state = "disabled"
				}
				lines[i] = fmt.Sprintf("%s\t%d\t%s\t%s", r.ID, r.Priority, state, r.Name)
			}
			text := "(no rules)"
			if len(lines) > 0 {
				text = strings.Join(lines, "\n")
			}
			return f.Success(summaries, text)
		},
	}
}

func newStoreGetCommand(opts *StoreOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <rule-id>",
		Short:         "Print one stored rule in the exchange format",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			store, err := opts.open(f)
			if err != nil {
				return err
			}
			defer store.Close()

			rule, err := store.Get(args[0])
			if errors.Is(err, rules.ErrRuleNotFound) {
				return f.Error(ExitCommandError, ErrCodeNotFound, "rule not found: "+args[0], nil, nil)
			}
			if err != nil {
				return f.Error(ExitCommandError, ErrCodeStore, "failed to get rule", err, nil)
			}

			definition, err := rule.MarshalJSON()
			if err != nil {
				return f.Error(ExitCommandError, ErrCodeStore, "failed to encode rule", err, nil)
			}
			return f.Success(rule, string(definition))
		},
	}
}

func newStoreDeleteCommand(opts *StoreOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <rule-id>",
		Short:         "Delete a stored rule",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			store, err := opts.open(f)
			if err != nil {
				return err
			}
			defer store.Close()

			err = store.Delete(args[0])
			if errors.Is(err, rules.ErrRuleNotFound) {
				return f.Error(ExitCommandError, ErrCodeNotFound, "rule not found: "+args[0], nil, nil)
			}
			if err != nil {
				return f.Error(ExitCommandError, ErrCodeStore, "failed to delete rule", err, nil)
			}
			return f.Success(map[string]string{"deleted": args[0]}, "✓ Deleted "+args[0])
		},
	}
}
