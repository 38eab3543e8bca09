package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/provider"
)

func newChatCmd(c *cli) *cobra.Command {
	var (
		toolIDs  []string
		allTools bool
		system   string
	)
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Run one chat turn with the selected tools available to the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			svc, err := buildServices(c.cfg)
			if err != nil {
				return err
			}

			var specs []openapi.ToolSpec
			switch {
			case allTools:
				specs, err = svc.catalog.All()
			case len(toolIDs) > 0:
				specs, err = svc.catalog.Select(toolIDs)
			}
			if err != nil {
				return err
			}

			var messages []provider.Message
			if system != "" {
				messages = append(messages, provider.Message{Role: "system", Content: system})
			}
			messages = append(messages, provider.Message{Role: "user", Content: strings.Join(pos, " ")})

			reply, err := svc.loop.Process(cmd.Context(), messages, specs)
			if err != nil {
				_, msg := provider.UserMessage(err)
				return fmt.Errorf("%s: %w", msg, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&toolIDs, "tool", nil, "tool ID the model may use (repeatable)")
	cmd.Flags().BoolVar(&allTools, "all-tools", false, "offer every stored tool to the model")
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	return cmd
}
