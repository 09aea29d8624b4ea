package cli

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

func init() {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory, keeping the user profile",
		Run:   runClear,
	}
	clearCmd.Flags().Bool("yes", false, "Confirm")

	wipe := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every memory and the user profile",
		Run:   runClear,
	}
	wipe.Flags().Bool("yes", false, "Confirm")

	RootCmd.AddCommand(clearCmd, wipe)
}

func runClear(cmd *cobra.Command, args []string) {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		exitErr(cmd.Name(), goerr.New("refusing to delete without --yes"))
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if cmd.Name() == "wipe" {
		err = s.WipeAll(cmd.Context())
	} else {
		err = s.ClearAll(cmd.Context())
	}
	if err != nil {
		exitErr(cmd.Name(), err)
	}

	printResult(cmd, map[string]any{"ok": true})
}
