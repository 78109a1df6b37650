package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"trophy-manager/feature/identify"

	"github.com/spf13/cobra"
)

var identifyFlags struct {
	console int
	parts   bool
}

// identifyCmd represents the identify command
var identifyCmd = &cobra.Command{
	Use:   "identify <file> [file...]",
	Short: "Compute the canonical content hash of game files",
	Long: `Computes the provider-facing content hash of one or more game files
using the per-console hashing rules. With --parts, each file is hashed as one
part of a multi-disk title with the whole-file rule.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if identifyFlags.parts {
			parts := make([]identify.Part, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					log.Fatalf("Failed to read %s: %v", path, err)
				}
				parts = append(parts, identify.Part{
					Filename: filepath.Base(path),
					Data:     data,
				})
			}
			hashes, err := identify.IdentifyParts(parts)
			if err != nil {
				log.Fatalf("Identification failed: %v", err)
			}
			for _, part := range parts {
				fmt.Printf("%s  %s\n", hashes[part.Filename], part.Filename)
			}
			return
		}

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Fatalf("Failed to read %s: %v", path, err)
			}
			hash, err := identify.Identify(identifyFlags.console, filepath.Base(path), data)
			if err != nil {
				log.Fatalf("Identification of %s failed: %v", path, err)
			}
			fmt.Printf("%s  %s\n", hash, path)
		}
	},
}

func init() {
	identifyCmd.Flags().IntVar(&identifyFlags.console, "console", 0, "numeric console id selecting the hashing rule")
	identifyCmd.Flags().BoolVar(&identifyFlags.parts, "parts", false, "treat all files as parts of one multi-part title")
	RootCmd.AddCommand(identifyCmd)
}
