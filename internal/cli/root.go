// Package cli implements the elara-memory CLI commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/config"
	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile    string
	dbPath     string
	formatFlag string
	logLevel   string

	cfg = config.DefaultConfig()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "elara-memory",
	Short: "Long-term memory for a conversational agent",
	Long: "Tagged memory store for a conversational agent. Records conversation turns,\n" +
		"learned knowledge and preferences in SQLite, with query, pruning and JSON snapshots.",
	PersistentPreRun: setup,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./elara-memory.yaml or ~/.config/elara-memory/elara-memory.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $ELARA_MEMORY_DB_PATH or ~/.elara-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "", "Output format: json or yaml")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// setup loads the config, applies flag overrides and installs the logger.
func setup(cmd *cobra.Command, args []string) {
	c, err := config.Load(cfgFile)
	if err != nil {
		exitErr("load config", err)
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.DBPath = dbPath
	}
	if flags.Changed("format") {
		c.Output = strings.ToLower(formatFlag)
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if err := c.Validate(); err != nil {
		exitErr("config", err)
	}
	cfg = c

	logger := logging.New(c.LogLevel, cmd.ErrOrStderr())
	logging.SetDefault(logger)
	cmd.SetContext(logging.With(cmd.Context(), logger))
}

func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	return store.Open(cmd.Context(), cfg.DBPath)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// splitList parses a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
