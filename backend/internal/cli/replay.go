package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sharednote/backend/internal/oplog"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild document content from the operation log",
	Long: `Fold every logged operation of a document over the empty string and
print the result. With --all, print the last sequence number and length of
every document in the log.`,
	Run: runReplay,
}

var (
	replayDoc string
	replayAll bool
)

func init() {
	replayCmd.Flags().StringVar(&replayDoc, "doc", "", "Document ID to replay")
	replayCmd.Flags().BoolVar(&replayAll, "all", false, "Replay every document")
}

func runReplay(cmd *cobra.Command, args []string) {
	if replayDoc == "" && !replayAll {
		exitError("either --doc or --all is required")
	}
	be, err := openBackend(loadConfig())
	if err != nil {
		exitError("%v", err)
	}
	defer be.Close()

	ctx := context.Background()
	if !replayAll {
		content, seq, err := oplog.Replay(ctx, be.log, replayDoc)
		if err != nil {
			exitError("replay %s: %v", replayDoc, err)
		}
		color.New(color.FgYellow).Printf("document %s ", replayDoc)
		fmt.Printf("@ %d\n", seq)
		fmt.Println(content)
		return
	}

	ids, err := be.documentIDs(ctx)
	if err != nil {
		exitError("%v", err)
	}
	if len(ids) == 0 {
		fmt.Println("No documents yet")
		return
	}
	yellow := color.New(color.FgYellow)
	for _, id := range ids {
		content, seq, err := oplog.Replay(ctx, be.log, id)
		if err != nil {
			exitError("replay %s: %v", id, err)
		}
		yellow.Printf("%-24s ", id)
		fmt.Printf("seq=%-6d chars=%d %s\n", seq, len([]rune(content)), preview(content))
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 40 {
		return strconv.Quote(string(r[:40])) + "..."
	}
	return strconv.Quote(s)
}
