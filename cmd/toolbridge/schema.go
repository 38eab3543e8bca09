package main

import (
	"github.com/spf13/cobra"

	"github.com/toolzflow/toolbridge/internal/api"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the HTTP API bodies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), api.Schemas())
		},
	}
}
