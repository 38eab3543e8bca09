package main

import (
	"github.com/spf13/cobra"

	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/toolstore"
)

func newCompileCmd(c *cli) *cobra.Command {
	var toolIDs []string
	var defsOnly bool
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile stored tools into function definitions and route maps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildServices(c.cfg)
			if err != nil {
				return err
			}
			specs, err := selectSpecs(svc.catalog, toolIDs)
			if err != nil {
				return err
			}
			res, err := svc.compiler.Compile(cmd.Context(), specs)
			if err != nil {
				return err
			}
			if defsOnly {
				return printJSON(cmd.OutOrStdout(), res.Definitions())
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringSliceVar(&toolIDs, "tool", nil, "tool ID to include (repeatable, default all)")
	cmd.Flags().BoolVar(&defsOnly, "definitions", false, "print only the function definitions")
	return cmd
}

// selectSpecs returns the chosen tools, or every tool when ids is empty.
func selectSpecs(catalog *toolstore.Catalog, ids []string) ([]openapi.ToolSpec, error) {
	if len(ids) == 0 {
		return catalog.All()
	}
	return catalog.Select(ids)
}
