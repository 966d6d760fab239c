package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoicepipe/internal/convert"
	"invoicepipe/internal/slicer"
)

var sliceCmd = &cobra.Command{
	Use:   "slice [text-file]",
	Short: "Show the slicing decision for a text",
	Long: `Print the strategy and the exact payload the model would receive for a
text file, typically one saved with "invoicepipe ocr". Texts longer than
the page limit are cut to a delimited header and footer.`,
	Example: `  invoicepipe ocr invoice.pdf -o invoice.txt
  invoicepipe slice invoice.txt --max 1500`,
	Args: cobra.ExactArgs(1),
	RunE: runSlice,
}

func init() {
	rootCmd.AddCommand(sliceCmd)

	def := slicer.DefaultConfig()
	sliceCmd.Flags().Int("max", def.MaxPageChars, "Largest text sent whole, in characters")
	sliceCmd.Flags().Int("header", def.HeaderChars, "Header size in characters")
	sliceCmd.Flags().Int("footer", def.FooterChars, "Footer size in characters")
}

func runSlice(cmd *cobra.Command, args []string) error {
	maxChars, _ := cmd.Flags().GetInt("max")
	header, _ := cmd.Flags().GetInt("header")
	footer, _ := cmd.Flags().GetInt("footer")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read text file: %w", err)
	}
	text := convert.PlainText(data)

	d := slicer.Slice(text, slicer.Config{MaxPageChars: maxChars, HeaderChars: header, FooterChars: footer})

	fmt.Printf("Strategy: %s\n", d.Strategy)
	fmt.Printf("Input: %d characters, payload: %d characters\n\n", len([]rune(text)), len([]rune(d.Payload)))
	fmt.Println(d.Payload)
	return nil
}
