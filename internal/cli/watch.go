package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/agentmem"
	"github.com/rcliao/elara-memory/internal/inbox"
	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import snapshots dropped into the inbox directory",
		Long: "Watch the inbox directory and import every snapshot file matching the\n" +
			"configured pattern. Imported files move to imported/, rejected ones to failed/.",
		Run: runWatch,
	}

	cmd.Flags().String("dir", "", "Inbox directory (default from config)")
	cmd.Flags().String("pattern", "", "File name glob (default from config)")
	cmd.Flags().Duration("debounce", 0, "Quiet period before importing a file (default from config)")
	cmd.Flags().Bool("once", false, "Import waiting files and exit")

	RootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	ic := inbox.Config{
		Dir:      cfg.Inbox.Dir,
		Pattern:  cfg.Inbox.Pattern,
		Debounce: cfg.Inbox.Debounce,
	}
	if cmd.Flags().Changed("dir") {
		ic.Dir, _ = cmd.Flags().GetString("dir")
	}
	if cmd.Flags().Changed("pattern") {
		ic.Pattern, _ = cmd.Flags().GetString("pattern")
	}
	if cmd.Flags().Changed("debounce") {
		ic.Debounce, _ = cmd.Flags().GetDuration("debounce")
	}
	once, _ := cmd.Flags().GetBool("once")

	ctx := cmd.Context()
	st := store.New(cfg.DBPath)
	defer st.Close()

	mem, err := agentmem.New(ctx, st, logging.From(ctx))
	if err != nil {
		exitErr("open memory", err)
	}

	w, err := inbox.New(ic, mem)
	if err != nil {
		exitErr("inbox", err)
	}

	if once {
		if err := w.ProcessExisting(ctx); err != nil {
			exitErr("watch", err)
		}
		return
	}
	if err := w.Run(ctx); err != nil {
		exitErr("watch", err)
	}
}
