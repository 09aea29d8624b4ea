package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/model"
	"github.com/rcliao/elara-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().String("type", string(model.TypeKnowledge), "Type: conversation, knowledge, user_preference, context, insight")
	cmd.Flags().IntP("importance", "i", 5, "Importance (higher is more important)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("source", "", "Where the memory came from")
	cmd.Flags().String("related", "", "Comma-separated ids of related memories")
	cmd.Flags().String("timestamp", "", "RFC3339 timestamp (default: now)")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	importance, _ := cmd.Flags().GetInt("importance")
	tagsStr, _ := cmd.Flags().GetString("tags")
	source, _ := cmd.Flags().GetString("source")
	related, _ := cmd.Flags().GetString("related")
	tsStr, _ := cmd.Flags().GetString("timestamp")

	content, err := readContent(cmd, args)
	if err != nil {
		exitErr("read stdin", err)
	}
	if content == "" {
		exitErr("put", goerr.New("content is required (positional arg or stdin)"))
	}

	memType, err := model.ParseMemoryType(typ)
	if err != nil {
		exitErr("put", err)
	}

	var ts time.Time
	if tsStr != "" {
		if ts, err = time.Parse(time.RFC3339, tsStr); err != nil {
			exitErr("parse timestamp", err)
		}
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.Put(cmd.Context(), store.PutParams{
		Type:       memType,
		Content:    content,
		Timestamp:  ts,
		Importance: importance,
		Tags:       splitList(tagsStr),
		Source:     source,
		RelatedTo:  splitList(related),
	})
	if err != nil {
		exitErr("put", err)
	}

	printResult(cmd, mem)
}

// readContent takes content from the positional args, falling back to piped stdin.
func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
