package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gofhir/epadoc/builder"
)

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "build [" + strings.Join(builder.Names(), "|") + "]",
		Short:     "Build a document bundle and print it as JSON",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: builder.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "medication"
			if len(args) == 1 {
				name = args[0]
			}
			tmpl, ok := builder.Lookup(name)
			if !ok {
				return fmt.Errorf("unknown template %q (available: %s)", name, strings.Join(builder.Names(), ", "))
			}

			profiles, _ := cmd.Flags().GetStringArray("profile")
			pretty, _ := cmd.Flags().GetBool("pretty")
			out, _ := cmd.Flags().GetString("output")

			bundle := builder.New().Build(tmpl, profiles...)
			var data []byte
			var err error
			if pretty {
				data, err = json.MarshalIndent(bundle, "", "  ")
			} else {
				data, err = json.Marshal(bundle)
			}
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644) //nolint:gosec // documents are not secret
		},
	}
	cmd.Flags().StringArray("profile", nil, "additional bundle profile URL (repeatable)")
	cmd.Flags().Bool("pretty", false, "indent the JSON")
	cmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	return cmd
}
