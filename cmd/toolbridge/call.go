package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolzflow/toolbridge/internal/toolcall"
)

func newCallCmd(c *cli) *cobra.Command {
	var (
		toolIDs []string
		args    string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "call <function>",
		Short: "Execute one function call against the selected tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
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

			intent := toolcall.NewIntent(pos[0], args)
			if dryRun {
				req, err := svc.dispatcher.Resolve(res.SchemaDetails, intent)
				if err != nil {
					return err
				}
				if req == nil {
					return fmt.Errorf("%s is a platform function, nothing to resolve", pos[0])
				}
				return printJSON(cmd.OutOrStdout(), req)
			}

			out, err := svc.dispatcher.Execute(cmd.Context(), res.SchemaDetails, intent)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringSliceVar(&toolIDs, "tool", nil, "tool ID to include (repeatable, default all)")
	cmd.Flags().StringVar(&args, "args", "{}", "call arguments as a JSON object")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the HTTP request instead of sending it")
	return cmd
}
