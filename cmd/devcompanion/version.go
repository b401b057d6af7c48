package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justinpbarnett/devcompanion/internal/update"
)

func newVersionCmd() *cobra.Command {
	var noCheck bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and check for a newer release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "devcompanion version %s\n", update.Version)

			if noCheck {
				return nil
			}
			if update.Version == "dev" {
				fmt.Fprintln(out, "Development build, update check skipped.")
				return nil
			}

			rel, err := update.CheckForUpdate(cmd.Context(), update.Version, update.Repo)
			if err != nil {
				fmt.Fprintf(out, "Update check failed: %v\n", err)
				return nil
			}
			if rel != nil {
				fmt.Fprintf(out, "Update available: v%s. Run \"devcompanion update\" to install.\n", rel.Version)
			} else {
				fmt.Fprintln(out, "You are up to date.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCheck, "no-check", false, "skip the release check")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Replace this binary with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := update.Apply(cmd.Context(), update.Version, update.Repo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated to v%s.\n", rel.Version)
			return nil
		},
	}
}
