package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gofhir/epadoc"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "epadoc v%s (FHIR %s, package %s)\n",
				epadoc.Version, epadoc.R4.Release(), epadoc.DefaultPackage())
			return err
		},
	}
}
