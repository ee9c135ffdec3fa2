package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/ruleengine/rules"
	"github.com/liamcoop/ruleengine/rules/generated"
)

// DemoRules returns the sample fraud and promotion rules.
func DemoRules() []rules.Rule {
	highRisk := rules.NewRuleBuilder("rule1", "High-risk transaction").
		Description("flags large USD payments from high-risk countries").
		Priority(100).
		Condition(rules.And{
			rules.GreaterThan{Field: "amount", Value: rules.Int(10000)},
			rules.Equals{Field: "currency", Value: rules.String("USD")},
			rules.Or{
				rules.Equals{Field: "country", Value: rules.String("high-risk-1")},
				rules.Equals{Field: "country", Value: rules.String("high-risk-2")},
			},
		}).
		Action(rules.Log{Message: "high-risk transaction detected"}).
		Action(rules.CallExternalService{
			Endpoint: "/fraud-detection",
			Payload: map[string]rules.Value{
				"transaction_id": rules.String("txn12345"),
				"amount":         rules.Int(15000),
			},
		}).
		Build()

	discount := rules.NewRuleBuilder("rule2", "Big discount promotion").
		Priority(80).
		Condition(rules.And{
			rules.GreaterThan{Field: "amount", Value: rules.Int(5000)},
			rules.Not{Condition: rules.Equals{Field: "category", Value: rules.String("electronics")}},
		}).
		Action(rules.UpdateField{Field: "discount", Value: rules.Float(0.15)}).
		Action(rules.SendEvent{
			EventType: "promotion_applied",
			Data: map[string]rules.Value{
				"discount": rules.Float(0.15),
				"rule":     rules.String("big discount"),
			},
		}).
		Build()

	return []rules.Rule{highRisk, discount}
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	var printRules bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the sample fraud and promotion rules",
		Long: `Run two sample rules against a sample high-risk transaction.
Service calls and events stay in process.

Use --print-rules to write the sample rule set in the exchange format,
e.g. as a starting point for a rules file:
  rulectl demo --print-rules > rules.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printRules {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(DemoRules()); err != nil {
					return fmt.Errorf("failed to encode demo rules: %w", err)
				}
				return nil
			}

			f := rootOpts.formatter(cmd)
			engine := rules.NewEngine(rules.WithLogger(rules.NewSlogLogger(rootOpts.newLogger(f.ErrWriter))))
			txn := generated.DemoTransaction()
			f.VerboseLog("Screening transaction %s", txn.ID)
			return executeRules(cmd.Context(), f, engine, DemoRules(), txn.Facts())
		},
	}

	cmd.Flags().BoolVar(&printRules, "print-rules", false, "print the demo rules as JSON and exit")
	return cmd
}
