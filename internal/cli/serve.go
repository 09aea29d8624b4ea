package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/agentmem"
	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/mcpserver"
	"github.com/rcliao/elara-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools over MCP on stdio",
		Long: "Run an MCP server on stdin/stdout exposing the memory operations as tools.\n" +
			"If the database cannot be opened the server keeps running without persistence.",
		Run: runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	st := store.New(cfg.DBPath)
	defer st.Close()

	mem, err := agentmem.New(ctx, st, logging.From(ctx))
	if err != nil {
		exitErr("open memory", err)
	}

	if err := mcpserver.New(mem, Version).Run(ctx); err != nil {
		exitErr("serve", err)
	}
}
