package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/reconciliation"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compare AI extractions with human-validated values",
	Long: `Read the record store and report, over records with Human_Validated set,
how often each AI field agrees with the reviewer's value. Invoice numbers
and company names are compared ignoring case and spacing, dates after
normalization and totals within one cent.`,
	Example: `  invoicepipe report
  invoicepipe report --json --mismatches`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Bool("json", false, "Output as JSON")
	reportCmd.Flags().Bool("mismatches", false, "List every disagreement")
}

func runReport(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("report")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	showMismatches, _ := cmd.Flags().GetBool("mismatches")

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, appNeeds{store: true}, log)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := reconciliation.NewDataReader(a.store).Report(ctx)
	if err != nil {
		return err
	}
	if !showMismatches {
		r.Mismatches = nil
	}

	if jsonOutput {
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Print(r.String())
	for _, m := range r.Mismatches {
		fmt.Printf("  node %s %s: AI %q, human %q\n", m.NodeID, m.Field, m.AI, m.Human)
	}
	return nil
}
