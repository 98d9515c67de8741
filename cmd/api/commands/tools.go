package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eventcal/core/internal/adapters/icalendar"
	"github.com/eventcal/core/internal/application/services"
	"github.com/eventcal/core/internal/domain/caldate"
	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/domain/recurrence"
	"github.com/eventcal/core/internal/infrastructure/logger"
)

type expandOptions struct {
	date     string
	kind     string
	interval int
	until    string
	from     string
	to       string
	rrule    bool
}

// NewExpandCommand runs the expansion engine on a single rule, without storage.
func NewExpandCommand() *cobra.Command {
	var opts expandOptions

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the occurrence dates of a recurrence rule",
		Example: `  eventcal expand --date 2025-01-31 --type monthly --until 2025-06-30
  eventcal expand --date 2024-02-29 --type yearly --until 2030-12-31 --from 2026-01-01 --to 2028-12-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.date, "date", "", "base date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.kind, "type", string(entities.RepeatDaily), "repeat type (none, daily, weekly, monthly, yearly)")
	cmd.Flags().IntVar(&opts.interval, "interval", 1, "repeat interval")
	cmd.Flags().StringVar(&opts.until, "until", "", "rule end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.from, "from", "", "window start; prints occurrence ids when set with --to")
	cmd.Flags().StringVar(&opts.to, "to", "", "window end")
	cmd.Flags().BoolVar(&opts.rrule, "rrule", false, "also print the rule as an RFC 5545 RRULE")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func runExpand(w io.Writer, opts expandOptions) error {
	base, err := caldate.ParseDate(opts.date)
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}
	kind := entities.RepeatType(opts.kind)
	if !kind.IsValid() {
		return fmt.Errorf("--type: unknown repeat type %q", opts.kind)
	}

	var until caldate.Date
	if opts.until != "" {
		if until, err = caldate.ParseDate(opts.until); err != nil {
			return fmt.Errorf("--until: %w", err)
		}
	}

	event := entities.Event{
		ID:     "cli",
		Title:  "cli",
		Date:   base,
		Repeat: entities.NewRecurrenceRule(kind, opts.interval, until),
	}

	if opts.rrule {
		if rule, ok := recurrence.RRuleString(event); ok {
			fmt.Fprintln(w, "RRULE:"+rule)
		}
	}

	if opts.from == "" && opts.to == "" {
		if err := checkOccurrences(event, caldate.Date{}, caldate.Date{}); err != nil {
			return err
		}
		fmt.Fprintln(w, base.String())
		for _, d := range recurrence.GenerateRepeatingDates(event) {
			fmt.Fprintln(w, d)
		}
		return nil
	}

	from, err := caldate.ParseDate(opts.from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := caldate.ParseDate(opts.to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: --to before --from", entities.ErrInvalidRange)
	}
	if err := checkOccurrences(event, from, to); err != nil {
		return err
	}

	for _, occ := range recurrence.ExpandRepeatingEvents([]entities.Event{event}, from, to) {
		fmt.Fprintf(w, "%s\t%s\n", occ.Date, occ.ID)
	}
	return nil
}

func checkOccurrences(event entities.Event, from, to caldate.Date) error {
	if recurrence.ExceedsOccurrences(event, from, to, recurrence.DefaultMaxOccurrences) {
		return fmt.Errorf("%w: more than %d dates, narrow the window with --from and --to",
			entities.ErrTooManyOccurrences, recurrence.DefaultMaxOccurrences)
	}
	return nil
}

// NewImportCommand imports an iCalendar file into the configured storage.
func NewImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Import an iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			appLogger, err := logger.New(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer appLogger.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			items, skipped, err := icalendar.Decode(f)
			if err != nil {
				return err
			}

			rt, err := buildRuntime(cmd.Context(), cfg, appLogger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.events.Reload(cmd.Context()); err != nil {
				return err
			}
			report, err := rt.events.Import(cmd.Context(), items)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d records in %s\n", len(report.Imported), report.Duration.Round(time.Millisecond))
			for _, s := range append(skipped, report.Skipped...) {
				fmt.Fprintf(out, "Skipped %s: %s\n", s.UID, s.Reason)
			}
			return nil
		},
	}
}

// NewTokenCommand mints a bearer token for the /api routes.
func NewTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			token, err := services.NewAuthService(cfg.JWT, logger.NewNop()).IssueToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: jwt.expires_in)")
	return cmd
}

// Version is overridden at build time with -ldflags "-X ...commands.Version=...".
var Version = "dev"

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print eventcal version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eventcal %s\n", Version)
		},
	}
}
