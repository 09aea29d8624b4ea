package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/model"
	"github.com/rcliao/elara-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [description]",
		Short: "Assemble relevant memories for a task",
		Long:  "Search and score memories, then greedily pack them into a token budget.",
		Run:   runContext,
	}

	cmd.Flags().String("type", "", "Filter by type")
	cmd.Flags().StringSliceP("tags", "t", nil, "Filter by tags")
	cmd.Flags().Int("min-importance", 0, "Minimum importance (inclusive)")
	cmd.Flags().IntP("budget", "b", store.DefaultContextBudget, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	minImportance, _ := cmd.Flags().GetInt("min-importance")
	budget, _ := cmd.Flags().GetInt("budget")
	query := strings.Join(args, " ")

	var memType model.MemoryType
	if typ != "" {
		t, err := model.ParseMemoryType(typ)
		if err != nil {
			exitErr("context", err)
		}
		memType = t
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	result, err := s.Context(cmd.Context(), store.ContextParams{
		Query:         query,
		Type:          memType,
		Tags:          tags,
		MinImportance: minImportance,
		Budget:        budget,
	})
	if err != nil {
		exitErr("context", err)
	}

	printResult(cmd, result)
}
