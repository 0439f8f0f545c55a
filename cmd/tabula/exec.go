package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "exec [code]",
		Short: "Run JavaScript against the dataset without asking the model",
		Long: `exec runs the given code in the same sandbox the model's code runs in,
with the dataset bound to df. Useful to try the builtins or check a result.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer ws.Close()

			res, err := ws.app.Sessions.Execute(cmd.Context(), ws.sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if !res.OK {
				return errors.New(res.Error)
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Output)
			return nil
		},
	}
}
