package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/model"
	"github.com/rcliao/elara-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Query memories by type, importance and tags",
		Run:   runList,
	}

	cmd.Flags().String("type", "", "Filter by type")
	cmd.Flags().Int("min-importance", 0, "Minimum importance (inclusive)")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags, any match (comma-separated)")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	cmd.Flags().String("sort", string(store.SortByTimestamp), "Sort by: timestamp or importance")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	minImportance, _ := cmd.Flags().GetInt("min-importance")
	tagsStr, _ := cmd.Flags().GetString("tags")
	limit, _ := cmd.Flags().GetInt("limit")
	sortBy, _ := cmd.Flags().GetString("sort")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	var memType model.MemoryType
	if typ != "" {
		t, err := model.ParseMemoryType(typ)
		if err != nil {
			exitErr("list", err)
		}
		memType = t
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.Query(cmd.Context(), store.QueryParams{
		Type:          memType,
		MinImportance: minImportance,
		Tags:          splitList(tagsStr),
		Limit:         limit,
		SortBy:        store.SortKey(sortBy),
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, m := range memories {
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
		}
		return
	}

	printResult(cmd, memories)
}
