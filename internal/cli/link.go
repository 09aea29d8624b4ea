package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	link := &cobra.Command{
		Use:   "link <id> <target-id>...",
		Short: "Add or remove related ids on a memory",
		Args:  cobra.MinimumNArgs(2),
		Run:   runLink,
	}
	link.Flags().Bool("rm", false, "Remove the links instead")

	related := &cobra.Command{
		Use:   "related <id>",
		Short: "Show a memory with the memories it references",
		Args:  cobra.ExactArgs(1),
		Run:   runRelated,
	}

	RootCmd.AddCommand(link, related)
}

func runLink(cmd *cobra.Command, args []string) {
	rm, _ := cmd.Flags().GetBool("rm")

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	edit := s.Link
	if rm {
		edit = s.Unlink
	}
	mem, err := edit(cmd.Context(), args[0], args[1:]...)
	if err != nil {
		exitErr("link", err)
	}

	printResult(cmd, mem)
}

func runRelated(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.Related(cmd.Context(), args[0])
	if err != nil {
		exitErr("related", err)
	}

	printResult(cmd, res)
}
