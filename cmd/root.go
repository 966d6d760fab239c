package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoicepipe/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicepipe",
	Short: "Invoice field extraction with OCR and a local LLM",
	Long: `invoicepipe extracts invoice number, vendor, date and total from scanned
invoices. Documents are rasterized and recognized with OCR, sliced to fit
the model, sent to an LLM and the JSON answer is parsed, scored and written
back to the record store for human review.

Run "invoicepipe serve" for the HTTP API used by the review UI, or the
individual commands to work from the shell.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
