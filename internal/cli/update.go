package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/model"
	"github.com/rcliao/elara-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an existing memory",
		Long:  "Change fields of an existing memory. Only the flags given are applied.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("type", "", "New type")
	cmd.Flags().String("content", "", "New content")
	cmd.Flags().IntP("importance", "i", 0, "New importance")
	cmd.Flags().StringP("tags", "t", "", "Replace tags (comma-separated, empty clears)")
	cmd.Flags().String("source", "", "New source")
	cmd.Flags().String("related", "", "Replace related ids (comma-separated, empty clears)")
	cmd.Flags().String("timestamp", "", "New RFC3339 timestamp")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	flags := cmd.Flags()
	var p store.UpdateParams

	if flags.Changed("type") {
		v, _ := flags.GetString("type")
		t, err := model.ParseMemoryType(v)
		if err != nil {
			exitErr("update", err)
		}
		p.Type = &t
	}
	if flags.Changed("content") {
		v, _ := flags.GetString("content")
		p.Content = &v
	}
	if flags.Changed("importance") {
		v, _ := flags.GetInt("importance")
		p.Importance = &v
	}
	if flags.Changed("tags") {
		v, _ := flags.GetString("tags")
		tags := splitList(v)
		p.Tags = &tags
	}
	if flags.Changed("source") {
		v, _ := flags.GetString("source")
		p.Source = &v
	}
	if flags.Changed("related") {
		v, _ := flags.GetString("related")
		ids := splitList(v)
		p.RelatedTo = &ids
	}
	if flags.Changed("timestamp") {
		v, _ := flags.GetString("timestamp")
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			exitErr("parse timestamp", err)
		}
		p.Timestamp = &ts
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.Update(cmd.Context(), args[0], p)
	if err != nil {
		exitErr("update", err)
	}

	printResult(cmd, mem)
}
