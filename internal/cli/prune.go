package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old, unimportant memories",
		Long: "Delete memories older than --days whose importance is below --min-importance.\n" +
			"Defaults come from the prune section of the config.",
		Run: runPrune,
	}

	cmd.Flags().Int("days", 0, "Keep memories newer than this many days")
	cmd.Flags().Int("min-importance", 0, "Keep memories at or above this importance")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	days := cfg.Prune.Days
	minImportance := cfg.Prune.MinImportance
	if cmd.Flags().Changed("days") {
		days, _ = cmd.Flags().GetInt("days")
	}
	if cmd.Flags().Changed("min-importance") {
		minImportance, _ = cmd.Flags().GetInt("min-importance")
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.Prune(cmd.Context(), days, minImportance)
	if err != nil {
		exitErr("prune", err)
	}

	printResult(cmd, map[string]int{"deleted": n})
}
