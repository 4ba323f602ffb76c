// Command epadoc builds clinical document bundles and validates them
// against the ePA medication profiles.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errInvalid signals that validation found invalid documents. It has
// already been reported.
var errInvalid = errors.New("invalid documents")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "epadoc",
		Short:         "Build and validate ePA medication documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "configuration file")

	root.AddCommand(buildCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}
