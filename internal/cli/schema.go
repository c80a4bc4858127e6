package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/deskpilot/internal/protocol"
)

var schemaOutDir string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Work with the planner wire contracts",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write JSON Schemas of the request and response types",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := protocol.ExportSchemas(schemaOutDir)
		if err != nil {
			return fmt.Errorf("failed to export schemas: %w", err)
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	schemaExportCmd.Flags().StringVar(&schemaOutDir, "out", "schemas", "Output directory")
	schemaCmd.AddCommand(schemaExportCmd)
	rootCmd.AddCommand(schemaCmd)
}
