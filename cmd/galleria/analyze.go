package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"galleria/internal/media"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Print suggested tags for an image file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		a := bootstrap(cmd.Context(), true)
		defer a.close()

		if a.tagger == nil {
			return fmt.Errorf("tag suggestion is unavailable")
		}

		blob := a.images.Pipeline.Normalizer.Normalize(media.Blob{Name: filepath.Base(args[0]), Data: data})
		tags := a.tagger.SuggestBytes(cmd.Context(), blob.Data)
		fmt.Println(strings.Join(tags, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
