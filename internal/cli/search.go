package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Case-insensitive substring search over content and tags",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		exitErr("search", err)
	}

	printResult(cmd, memories)
}
