package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/circletel/circletel/internal/app"
	"github.com/circletel/circletel/internal/config"
	"github.com/circletel/circletel/internal/jobs"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job [name]",
		Short: "Run one scheduled job now and print its result",
		Long:  "Runs a cron job (submit-cc-debit-orders, submit-debit-orders, payment-sync-monitor, integrations-health-check) once. Without a name, lists the registered jobs.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runJob,
	}
	cmd.Flags().String("date", "", "processing date (YYYY-MM-DD), defaults to today in SAST")
	return cmd
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath(cmd, nil, defaultConfigPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Logs go to stderr so stdout carries only the result.
	logger := newLogger(cfg.Logging, os.Stderr)

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		for _, name := range a.Jobs() {
			_, _ = fmt.Fprintln(out, name)
		}
		return nil
	}

	date, _ := cmd.Flags().GetString("date")
	result, err := a.RunJob(cmd.Context(), args[0], date)
	if errors.Is(err, jobs.ErrUnknownJob) {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(a.Jobs(), ", "))
	}
	if result != nil {
		data, merr := json.MarshalIndent(result, "", "  ")
		if merr != nil {
			return fmt.Errorf("marshal result: %w", merr)
		}
		_, _ = fmt.Fprintln(out, string(data))
	}
	return err
}
