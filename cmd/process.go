package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoicepipe/internal/jobs"
	"invoicepipe/internal/logger"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a batch of unprocessed documents",
	Long: `Run one batch job in the foreground: take up to N unprocessed records
(lowest NodeID first), run each document through OCR and extraction and
write the AI_* fields back to the record store.

The first Ctrl-C requests cancellation; the batch stops after the current
document. A second Ctrl-C aborts immediately.`,
	Example: `  # Process the next 10 documents with the default model
  invoicepipe process

  # Process 25 documents with a specific model
  invoicepipe process -n 25 --model llama-3-8b.gguf`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().IntP("count", "n", 0, "Number of documents to process (default: DEFAULT_BATCH_SIZE)")
	processCmd.Flags().String("model", "", "Model to use (default: DEFAULT_MODEL)")
}

func runProcess(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("process")

	count, _ := cmd.Flags().GetInt("count")
	model, _ := cmd.Flags().GetString("model")

	// The job context only ends on the second signal.
	jobCtx, abort := context.WithCancel(context.Background())
	defer abort()

	a, err := newApp(jobCtx, appNeeds{store: true, source: true, ocr: true}, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl := a.newController()
	st, err := ctrl.Start(jobCtx, jobs.Request{Count: count, Model: model})
	if err != nil {
		return err
	}
	log.Info().Str("job_id", st.JobID).Str("model", st.SelectedModel).Msg("Batch started")

	sigCtx, stop := signalContext()
	defer stop()
	go func() {
		<-sigCtx.Done()
		if !ctrl.Cancel() {
			return
		}
		fmt.Fprintln(os.Stderr, "Cancelling after the current document. Press Ctrl-C again to abort.")
		stop()
		again, stopAgain := signalContext()
		defer stopAgain()
		<-again.Done()
		abort()
	}()

	bus := ctrl.Events()
	var seq int64
	for {
		changed := bus.Changed()
		for _, l := range bus.Since(seq) {
			fmt.Println(l.Text)
			seq = l.Seq
		}
		if !ctrl.Running() {
			for _, l := range bus.Since(seq) {
				fmt.Println(l.Text)
			}
			break
		}
		<-changed
	}

	final := ctrl.State()
	if final.Status == jobs.StatusFailed {
		return fmt.Errorf("batch failed after %d of %d documents", final.CurrentCount, final.TotalCount)
	}
	return nil
}
