package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories and profile as a JSON snapshot",
		Long:  "Export every memory (newest first) and the user profile as a versioned JSON snapshot.",
		Run:   runExport,
	}

	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snap, err := s.Export(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	if output == "" {
		if err := snap.Encode(cmd.OutOrStdout()); err != nil {
			exitErr("export", err)
		}
		return
	}

	f, err := os.Create(output)
	if err != nil {
		exitErr("create output", err)
	}
	if err := snap.Encode(f); err != nil {
		f.Close()
		exitErr("export", err)
	}
	if err := f.Close(); err != nil {
		exitErr("close output", err)
	}
	printResult(cmd, map[string]any{"exported": len(snap.Memories), "path": output})
}
