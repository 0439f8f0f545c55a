package main

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/table"
)

const replHelp = `Type a question and press enter. Lines starting with ! run as code.
Commands: :vars lists variables, :quit exits.`

func newReplCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Ask questions about the dataset interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openWorkspace(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer ws.Close()

			return ws.repl(cmd, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// repl reads questions until EOF or :quit. Failed turns are printed and
// the loop continues; only context cancellation ends it early.
func (w *workspace) repl(cmd *cobra.Command, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	fmt.Fprintln(out, replHelp)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == ":quit" || line == ":q":
			return nil
		case line == ":vars":
			s, err := w.app.Sessions.Get(w.sessionID)
			if err != nil {
				return err
			}
			vars := s.Sandbox().Variables()
			for _, name := range slices.Sorted(maps.Keys(vars)) {
				fmt.Fprintf(out, "%s = %s\n", name, describeVar(vars[name]))
			}
		case strings.HasPrefix(line, "!"):
			res, err := w.app.Sessions.Execute(ctx, w.sessionID, strings.TrimPrefix(line, "!"))
			if err != nil {
				return err
			}
			if res.OK {
				fmt.Fprint(out, res.Output)
			} else {
				fmt.Fprintln(out, "Error: "+res.Error)
			}
		default:
			if err := w.ask(ctx, line, out); err != nil {
				if ctx.Err() != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
		}
	}
}

func describeVar(v any) string {
	if t, ok := v.(*table.Table); ok {
		return fmt.Sprintf("table (%d rows, %d columns)", t.Len(), t.Width())
	}
	return debug.Truncate(fmt.Sprintf("%v", v), 200)
}
