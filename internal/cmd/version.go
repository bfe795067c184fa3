package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friscy/rve/internal/output"
)

func addVersionCommand(parent *cobra.Command) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the rve version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rve v%s\n", Version)
			return nil
		},
	}
	parent.AddCommand(versionCmd)
}
