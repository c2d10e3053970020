package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/preceptor/internal/presentation/tui"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/runner"
	"github.com/aretw0/preceptor/pkg/session"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a tutoring session in the terminal",
	Long: `Starts an interactive tutoring session. The case checklist is read from a
JSON file; with --session the state is persisted in the configured store and
an interrupted session resumes where it stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		checklistPath, _ := cmd.Flags().GetString("checklist")
		sessionID, _ := cmd.Flags().GetString("session")

		checklist, err := readChecklist(checklistPath)
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []runner.Option{
			runner.WithLogger(logger),
			runner.WithStore(a.store),
			runner.WithSessionID(sessionID),
			runner.WithChecklist(checklist),
			runner.WithGenerator(finalizing{a.finalizer}),
			runner.WithSignals(true),
		}
		switch {
		case jsonMode:
			opts = append(opts,
				runner.WithHeadless(true),
				runner.WithInputHandler(runner.NewJSONHandler(os.Stdin, os.Stdout)))
		case headless:
			opts = append(opts, runner.WithHeadless(true))
		case tui.IsInteractive():
			tui.PrintBanner(os.Stdout)
			opts = append(opts, runner.WithRenderer(tui.NewRenderer()))
		}

		var initial *domain.State
		if sessionID != "" {
			initial, err = a.store.Load(cmd.Context(), sessionID)
			switch {
			case errors.Is(err, domain.ErrSessionNotFound):
				initial = nil
			case err != nil:
				return fmt.Errorf("load session %s: %w", sessionID, err)
			}
		}

		r := runner.NewRunner(opts...)
		state, err := r.Run(cmd.Context(), a.engine, initial)
		if errors.Is(err, runner.ErrInterrupted) {
			logger.Info("session interrupted", "session_id", state.SessionID, "phase", state.RawPhase())
			return nil
		}
		return err
	},
}

// finalizing lets the runner generate through the finalizer, so artifacts land
// in the configured artifact store exactly once.
type finalizing struct {
	*session.Finalizer
}

func (f finalizing) Generate(ctx context.Context, state *domain.State) (domain.Artifacts, error) {
	arts, err := f.Finalize(ctx, state)
	if errors.Is(err, domain.ErrAlreadyFinalized) {
		f.Wait()
		return f.Artifacts(ctx, state.SessionID)
	}
	return arts, err
}

func readChecklist(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist: %w", err)
	}
	var checklist map[string]any
	if err := json.Unmarshal(data, &checklist); err != nil {
		return nil, fmt.Errorf("parse checklist %s: %w", path, err)
	}
	return checklist, nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("checklist", "", "JSON file with the case checklist")
	runCmd.Flags().String("session", "", "Session ID to persist and resume")
	runCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, gateway errors are fatal)")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")

	rootCmd.RunE = runCmd.RunE
}
