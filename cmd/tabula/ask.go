package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/tabula/pkg/api"
)

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question about the dataset and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer ws.Close()

			return ws.ask(cmd.Context(), strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
}

// ask runs one turn and prints its answer. An exhausted turn prints the
// last error and fails the command.
func (w *workspace) ask(ctx context.Context, question string, out io.Writer) error {
	ans, err := w.app.Sessions.Ask(ctx, w.sessionID, question)
	if err != nil {
		return err
	}
	printAnswer(out, ans.Record, ans.ImagePath)
	if ans.Record.Status == api.TurnStatusExhausted {
		return fmt.Errorf("no working code after %d attempts", ans.Record.Attempts)
	}
	return nil
}

func printAnswer(out io.Writer, rec *api.TurnRecord, imagePath string) {
	fmt.Fprint(out, rec.Answer)
	if !strings.HasSuffix(rec.Answer, "\n") {
		fmt.Fprintln(out)
	}
	if imagePath != "" {
		fmt.Fprintf(out, "Plot saved to %s\n", imagePath)
	}
}
