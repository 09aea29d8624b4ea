package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List memory types with entry counts",
		Run:   runTypes,
	}

	cmd.Flags().Bool("names-only", false, "Only output type names")

	RootCmd.AddCommand(cmd)
}

type typeCount struct {
	Type  model.MemoryType `json:"type"`
	Count int              `json:"count"`
}

func runTypes(cmd *cobra.Command, args []string) {
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	if namesOnly {
		for _, t := range model.MemoryTypes {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("types", err)
	}

	counts := make([]typeCount, 0, len(model.MemoryTypes))
	for _, t := range model.MemoryTypes {
		counts = append(counts, typeCount{Type: t, Count: stats.ByType[t]})
	}
	printResult(cmd, counts)
}
