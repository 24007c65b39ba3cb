package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"queryorch/internal/orchestrator"
)

var (
	askDatabaseID       string
	askDialect          string
	askMaxRows          int
	askStatementTimeout time.Duration
	askJSON             bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run one question through the full pipeline and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askDatabaseID, "database-id", "default", "database identifier to label the trace with")
	askCmd.Flags().StringVar(&askDialect, "dialect", "", "override the configured SQL dialect")
	askCmd.Flags().IntVar(&askMaxRows, "max-rows", 0, "cap the number of returned rows (0 = use configured default)")
	askCmd.Flags().DurationVar(&askStatementTimeout, "statement-timeout", 0, "override the configured statement timeout")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full answer, including trace, as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	orc, cleanup, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := orchestrator.Options{
		Dialect:          askDialect,
		MaxRows:          askMaxRows,
		StatementTimeout: askStatementTimeout,
	}

	ans, err := orc.Answer(ctx, args[0], askDatabaseID, opts)
	if err != nil {
		if askJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			_ = enc.Encode(map[string]interface{}{"error": err.Error(), "trace": ans.Trace})
		}
		return err
	}

	if askJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ans.SQL)
	fmt.Fprintf(out, "\n%d row(s), confidence %.2f\n", ans.RowCount, ans.Confidence)
	for i, row := range ans.Rows {
		if i >= 20 {
			fmt.Fprintf(out, "... %d more row(s)\n", len(ans.Rows)-i)
			break
		}
		fmt.Fprintf(out, "%v\n", row)
	}
	return nil
}
