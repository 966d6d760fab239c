package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"invoicepipe/internal/config"
	"invoicepipe/internal/extraction"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available in MODELS_DIR",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		names, err := extraction.ListModels(cfg.ModelsDir)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Printf("No %s models found in %s\n", extraction.ModelExt, cfg.ModelsDir)
			return nil
		}
		for _, n := range names {
			marker := " "
			if n == cfg.DefaultModel {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
