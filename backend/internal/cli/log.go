package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sharednote/backend/internal/ot"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the operation log of a document",
	Run:   runLog,
}

var (
	logDoc   string
	logSince uint64
	logLimit int
)

func init() {
	logCmd.Flags().StringVar(&logDoc, "doc", "", "Document ID")
	logCmd.Flags().Uint64Var(&logSince, "since", 0, "Only show operations after this sequence number")
	logCmd.Flags().IntVarP(&logLimit, "n", "n", 0, "Limit the number of operations to show")
	_ = logCmd.MarkFlagRequired("doc")
}

func runLog(cmd *cobra.Command, args []string) {
	be, err := openBackend(loadConfig())
	if err != nil {
		exitError("%v", err)
	}
	defer be.Close()

	ops, err := be.log.ListSince(context.Background(), logDoc, logSince, logLimit)
	if err != nil {
		exitError("failed to read operation log: %v", err)
	}
	if len(ops) == 0 {
		fmt.Println("No operations")
		return
	}
	for _, op := range ops {
		fmt.Println(formatOp(op))
	}
}

var (
	seqColor    = color.New(color.FgYellow)
	insertColor = color.New(color.FgGreen)
	deleteColor = color.New(color.FgRed)
	retainColor = color.New(color.FgCyan)
)

func formatOp(op ot.Operation) string {
	var body string
	switch op.Type {
	case ot.Insert:
		body = insertColor.Sprintf("+%d %s", op.Position, strconv.Quote(op.Content))
	case ot.Delete:
		body = deleteColor.Sprintf("-%d..%d", op.Position, op.Position+op.Length)
	default:
		body = retainColor.Sprintf("=%d..%d", op.Position, op.Position+op.Length)
	}
	return fmt.Sprintf("%s %s author=%d %s",
		seqColor.Sprintf("#%d", op.SequenceNumber),
		op.CreatedAt.Format("2006-01-02 15:04:05"),
		op.AuthorID,
		body)
}
