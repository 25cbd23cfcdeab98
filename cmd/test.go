package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/runner"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run every configured check once and print the results",
	Long: `Test executes each configured check once, in order, and prints its
result as indented JSON. No alerts are sent and the snapshot file is not
written.`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Results go to stdout, so the agent logger stays quiet here.
	r := runner.New(cfg, nil, nil, zap.NewNop())
	results := r.RunOnce(context.Background())

	out := cmd.OutOrStdout()
	for _, check := range cfg.Checks {
		data, err := json.MarshalIndent(results[check.Name], "", "  ")
		if err != nil {
			return fmt.Errorf("encode result of %s: %w", check.Name, err)
		}
		fmt.Fprintf(out, "%s:\n%s\n\n", check.Name, data)
	}
	return nil
}
