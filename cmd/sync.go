package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/logger"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create records for new documents in the source folder",
	Long: `List the document folder and create a default record (AI_Processed
false) for every node the record store does not know yet. Existing records
are never touched.`,
	Example: `  # Sync the configured folder (GCDOCS_FOLDER_NODE)
  invoicepipe sync

  # Sync another folder
  invoicepipe sync --folder 32495999`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("folder", "", "Folder node to sync (default: GCDOCS_FOLDER_NODE, or the root of LOCAL_DOCS_DIR)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("sync")

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, appNeeds{store: true, source: true}, log)
	if err != nil {
		return err
	}
	defer a.Close()

	folder, _ := cmd.Flags().GetString("folder")
	if folder == "" && a.cfg.DocSource == "gcdocs" {
		folder = a.cfg.GCDocsFolderNode
	}

	res, err := docsource.NewSyncer(a.source, a.store, a.urlTemplate()).Sync(ctx, folder, func(line string) {
		fmt.Println(line)
	})
	if err != nil {
		return err
	}
	if res.Errors > 0 {
		return fmt.Errorf("%d of %d nodes failed to sync", res.Errors, res.Total)
	}
	return nil
}
