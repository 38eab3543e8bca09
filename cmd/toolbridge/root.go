package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolzflow/toolbridge/internal/config"
)

const version = "0.1.0"

// cli holds the flags shared by every command.
type cli struct {
	envFile  string
	toolsDir string
	logJSON  bool
	cfg      config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "toolbridge",
		Short:         "Turn OpenAPI tools into LLM function calls and execute them",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			c.cfg = config.Load(c.envFile)
			if c.toolsDir != "" {
				c.cfg.ToolsDir = c.toolsDir
			}
			// serve logs to stdout; other commands keep stdout for their output.
			var w io.Writer = os.Stderr
			if cmd.Name() == "serve" {
				w = os.Stdout
			}
			setupLogging(w, c.cfg.LogLevel, c.logJSON)
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().StringVar(&c.toolsDir, "tools-dir", "", "tool record directory (overrides TOOLBRIDGE_TOOLS_DIR)")
	root.PersistentFlags().BoolVar(&c.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		newServeCmd(c),
		newCompileCmd(c),
		newCallCmd(c),
		newChatCmd(c),
		newPlatformCmd(c),
		newSchemaCmd(),
	)
	return root
}

func setupLogging(w io.Writer, level slog.Level, asJSON bool) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if asJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}
