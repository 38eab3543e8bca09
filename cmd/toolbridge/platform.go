package main

import (
	"github.com/spf13/cobra"

	"github.com/toolzflow/toolbridge/internal/openapi"
)

type platformFunction struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  []openapi.Parameter `json:"parameters"`
}

type platformTool struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	ToolName    string             `json:"tool_name"`
	Version     string             `json:"version"`
	Description string             `json:"description"`
	Functions   []platformFunction `json:"functions"`
}

func newPlatformCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "List the platform tools built into the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildServices(c.cfg)
			if err != nil {
				return err
			}
			var out []platformTool
			for _, t := range svc.platform.Tools() {
				pt := platformTool{
					ID:          t.ID.String(),
					Name:        t.Name,
					ToolName:    t.ToolName,
					Version:     t.Version,
					Description: t.Description,
				}
				for _, fn := range t.Functions {
					pt.Functions = append(pt.Functions, platformFunction{
						Name:        fn.Name(),
						Description: fn.Description(),
						Parameters:  fn.Parameters(),
					})
				}
				out = append(out, pt)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
