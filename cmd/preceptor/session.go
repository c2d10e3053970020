package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent sessions",
	Long:  `List, inspect, and remove sessions kept in the configured store, and print their artifacts.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		for _, id := range sessions {
			state, err := a.store.Load(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(out, "- %s\t%s\t%d messages\n", id, state.RawPhase(), len(state.History))
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the state of a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load session %q: %w", args[0], err)
		}
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionArtifactsCmd = &cobra.Command{
	Use:   "artifacts <session-id>",
	Short: "Print the case report and virtual patient of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		arts, err := a.artifacts.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load artifacts %q: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "## Case report\n\n%s\n\n## Virtual patient\n\n%s\n", arts.Report, arts.VirtualPatient)
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var errs []error
		for _, id := range args {
			if err := a.store.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("remove %q: %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func appFor(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, logger)
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionArtifactsCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}
