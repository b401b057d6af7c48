package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justinpbarnett/devcompanion/internal/logging"
)

// newExecCmd runs one command the way a remote execute_command request
// would, which makes the blocked-pattern and timeout settings easy to try.
func newExecCmd(g *globalFlags) *cobra.Command {
	var cwd string
	cmd := &cobra.Command{
		Use:   "exec [flags] -- command...",
		Short: "Run a command through the local command runner",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger, closer, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()

			runner, err := newRunner(cfg, logger)
			if err != nil {
				return err
			}
			out := runner.Run(cmd.Context(), strings.Join(args, " "), cwd)
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory (defaults to executor.work_dir)")
	return cmd
}
