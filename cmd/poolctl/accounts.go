package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/pool"
)

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage provider accounts",
	}

	cmd.AddCommand(
		newAccountsListCmd(a),
		newAccountsStatsCmd(a),
		newAccountsAddCmd(a),
		newAccountsUpdateCmd(a),
		newAccountsDeleteCmd(a),
		newAccountsTestCmd(a),
	)

	return cmd
}

func newAccountsListCmd(a *app) *cobra.Command {
	var provider string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with their quota and health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			summaries, err := a.pool.ListAccountsStatus(cmd.Context(), model.Provider(provider))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tSTATUS\tPRIORITY\tKEY\tUSED\tREQUESTS\tERRORS")
			for _, s := range summaries {
				used := "unlimited"
				if !s.TotalCapacity.IsZero() {
					used = fmt.Sprintf("%.1f%%", s.UsagePercentage)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%d\t%d\n",
					s.ID, s.Name, s.Provider, s.Status, s.Priority, s.MaskedCredential, used, s.TotalRequests, s.ErrorCount)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Only list accounts of this provider")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newAccountsStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-provider totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.pool.ProviderStats(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tACCOUNTS\tACTIVE\tREQUESTS\tAUDIO_SECONDS\tCHARACTERS")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t%d\n",
					s.Provider, s.TotalAccounts, s.ActiveAccounts, s.TotalRequests, s.AudioSeconds, s.Characters)
			}
			return w.Flush()
		},
	}
}

func newAccountsAddCmd(a *app) *cobra.Command {
	var (
		req          pool.AddAccountRequest
		provider     string
		plan         string
		priority     int
		rateLimit    int
		capacity     string
		trialEndsAt  string
		monthlyLimit int64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account after validating its key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Provider = model.Provider(provider)
			req.PlanType = model.PlanType(plan)
			flags := cmd.Flags()
			if flags.Changed("priority") {
				req.Priority = &priority
			}
			if flags.Changed("rate-limit") {
				req.RateLimitMax = &rateLimit
			}
			if flags.Changed("monthly-limit") {
				req.MonthlyLimit = &monthlyLimit
			}
			if flags.Changed("capacity") {
				d, err := decimal.NewFromString(capacity)
				if err != nil {
					return fmt.Errorf("invalid --capacity: %w", err)
				}
				req.TotalCapacity = &d
			}
			if flags.Changed("trial-ends") {
				t, err := time.Parse(time.DateOnly, trialEndsAt)
				if err != nil {
					return fmt.Errorf("invalid --trial-ends: %w", err)
				}
				req.TrialEndsAt = &t
			}

			account, err := a.pool.AddAccount(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s account %q (%s)\n", account.Provider, account.Name, account.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&provider, "provider", "", "Provider (assemblyai|clarifai|speechmatics|elevenlabs)")
	flags.StringVar(&req.Credential, "key", "", "API key or PAT")
	flags.StringVar(&req.Name, "name", "", "Display name")
	flags.StringVar(&plan, "plan", "", "Plan type (free|trial|paid)")
	flags.IntVar(&priority, "priority", 0, "Selection priority, higher first")
	flags.IntVar(&rateLimit, "rate-limit", 0, "Requests per rate window, 0 for none")
	flags.StringVar(&capacity, "capacity", "", "Total capacity, 0 for unlimited")
	flags.StringVar(&trialEndsAt, "trial-ends", "", "Trial end date (YYYY-MM-DD)")
	flags.Int64Var(&monthlyLimit, "monthly-limit", 0, "Requests per 30 days, 0 for none")
	flags.StringVar(&req.Settings.Language, "language", "", "Transcription language")
	flags.StringVar(&req.Settings.OperatingPoint, "operating-point", "", "Speechmatics operating point (standard|enhanced)")
	flags.StringVar(&req.Settings.VoiceID, "voice", "", "ElevenLabs voice ID")
	flags.StringVar(&req.Settings.Model, "model", "", "Model ID or URL")
	flags.StringVar(&req.Notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newAccountsUpdateCmd(a *app) *cobra.Command {
	var (
		name      string
		priority  int
		status    string
		rateLimit int
		capacity  string
		notes     string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an account; only the given flags are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch pool.AccountPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("status") {
				s := model.Status(status)
				patch.Status = &s
			}
			if flags.Changed("rate-limit") {
				patch.RateLimitMax = &rateLimit
			}
			if flags.Changed("capacity") {
				d, err := decimal.NewFromString(capacity)
				if err != nil {
					return fmt.Errorf("invalid --capacity: %w", err)
				}
				patch.TotalCapacity = &d
			}
			if flags.Changed("notes") {
				patch.Notes = &notes
			}

			account, err := a.pool.UpdateAccount(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %q: status %s, priority %d\n", account.Name, account.Status, account.Priority)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "Display name")
	flags.IntVar(&priority, "priority", 0, "Selection priority")
	flags.StringVar(&status, "status", "", "active or disabled")
	flags.IntVar(&rateLimit, "rate-limit", 0, "Requests per rate window")
	flags.StringVar(&capacity, "capacity", "", "Total capacity")
	flags.StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

func newAccountsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.pool.DeleteAccount(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newAccountsTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Re-validate an account's key against its provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := a.pool.TestAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q is healthy (status %s)\n", account.Name, account.Status)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
