package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jandubois/healthagent/internal/metrics"
	"github.com/jandubois/healthagent/internal/probe"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the latest snapshot written by the agent",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("file", "", "Snapshot file (defaults to service.metrics_file)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Service.MetricsFile
	}

	snap, err := metrics.ReadSnapshot(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s, updated %s\n\n", snap.Server, humanize.Time(snap.Timestamp))

	names := make([]string, 0, len(snap.Checks))
	for name := range snap.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := probe.StatusOK
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tVALUE\tLAST RUN\tMESSAGE")
	for _, name := range names {
		res := snap.Checks[name]
		if res == nil {
			continue
		}
		overall = probe.Worst(overall, res.Status)
		lastRun := "-"
		if !res.Timestamp.IsZero() {
			lastRun = humanize.Time(res.Timestamp)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			name, strings.ToUpper(string(res.Status)), formatValue(res), lastRun, firstLine(res.Message))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d checks, overall %s\n", len(names), strings.ToUpper(string(overall)))
	return nil
}

func formatValue(res *probe.Result) string {
	if res.Value == nil {
		return "-"
	}
	v := humanize.FtoaWithDigits(*res.Value, 2)
	if res.Unit != "" {
		v += " " + res.Unit
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
