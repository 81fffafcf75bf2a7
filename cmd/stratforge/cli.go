package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Strob0t/StratForge/internal/adapter/postgres"
	"github.com/Strob0t/StratForge/internal/config"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/service"
)

// commandFlags returns a flag set carrying the shared --config option.
func commandFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", config.DefaultConfigFile, "path to YAML config")
	fs.StringVar(path, "c", config.DefaultConfigFile, "path to YAML config (shorthand)")
	return fs, path
}

func loadCommandConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// One-shot commands exit without a flush hook.
	cfg.Logging.Async = false
	setupLogger(cfg)
	return cfg, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runMigrate handles: migrate [up|down|version] [--steps N].
func runMigrate(args []string) error {
	action := "up"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action, args = args[0], args[1:]
	}
	fs, cfgPath := commandFlags("migrate")
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadCommandConfig(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	switch action {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	case "down":
		if *steps < 1 {
			return errors.New("--steps must be >= 1")
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action: %s (want up, down or version)", action)
	}

	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("migration version: %d\n", version)
	return nil
}

// runSchema handles: schema import <file.yaml>.
func runSchema(args []string) error {
	if len(args) == 0 || args[0] != "import" {
		return errors.New("usage: stratforge schema import <file.yaml>")
	}
	fs, cfgPath := commandFlags("schema import")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: stratforge schema import <file.yaml>")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	cfg, err := loadCommandConfig(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.schema.Import(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d variables\n", n)
	return nil
}

// runUpgrade handles: upgrade --strategy ID --actor ID.
func runUpgrade(args []string) error {
	fs, cfgPath := commandFlags("upgrade")
	strategyID := fs.String("strategy", "", "strategy id (required)")
	actorID := fs.String("actor", "", "acting user id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *strategyID == "" || *actorID == "" {
		return errors.New("--strategy and --actor are required")
	}

	cfg, err := loadCommandConfig(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	res, runErr := a.upgrades.RunUpgrade(ctx, *strategyID, *actorID)
	// Score and widget recomputes were submitted in the background.
	a.dispatcher.Wait()
	if res != nil {
		if err := printUpgrade(os.Stdout, res); err != nil {
			return err
		}
	}
	return runErr
}

// runScores handles: scores --strategy ID.
func runScores(args []string) error {
	fs, cfgPath := commandFlags("scores")
	strategyID := fs.String("strategy", "", "strategy id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *strategyID == "" {
		return errors.New("--strategy is required")
	}

	cfg, err := loadCommandConfig(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.scores.RecalculateScores(ctx, *strategyID, strategy.TriggerManual)
	if err != nil {
		return err
	}
	return printScores(os.Stdout, res)
}

// isTTY reports whether w is an interactive terminal. Pipes get JSON.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUpgrade(w io.Writer, res *service.UpgradeResult) error {
	if !isTTY(w) {
		return writeJSONOut(w, res)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "RUN\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(tw, "COMPLETE\t%t\n", res.Complete)
	_, _ = fmt.Fprintf(tw, "DURATION\t%dms\n", res.DurationMs)
	_, _ = fmt.Fprintf(tw, "INTERVIEW\t%d/%d -> %d/%d\n",
		res.InterviewBefore.Filled, res.InterviewBefore.Total, res.InterviewAfter.Filled, res.InterviewAfter.Total)
	_, _ = fmt.Fprintf(tw, "ADDED\t%s\n", strings.Join(res.VariablesAdded, ", "))
	_, _ = fmt.Fprintf(tw, "UPDATED\t%s\n", strings.Join(res.VariablesUpdated, ", "))
	_, _ = fmt.Fprintf(tw, "OBSOLETE\t%s\n", strings.Join(res.VariablesObsolete, ", "))
	stages := make([]string, len(res.PillarsRegenerated))
	for i, t := range res.PillarsRegenerated {
		stages[i] = string(t)
	}
	_, _ = fmt.Fprintf(tw, "REGENERATED\t%s\n", strings.Join(stages, " "))
	for _, e := range res.Errors {
		_, _ = fmt.Fprintf(tw, "ERROR\t%s\n", e.String())
	}
	for _, warn := range res.Warnings {
		_, _ = fmt.Fprintf(tw, "WARNING\t%s\n", warn)
	}
	return tw.Flush()
}

func printScores(w io.Writer, res *service.ScoreResult) error {
	if !isTTY(w) {
		return writeJSONOut(w, res)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SCORE\tVALUE")
	_, _ = fmt.Fprintf(tw, "coherence\t%d\n", res.CoherenceScore)
	_, _ = fmt.Fprintf(tw, "risk\t%s\n", optional(res.RiskScore))
	_, _ = fmt.Fprintf(tw, "bmf\t%s\n", optional(res.BmfScore))
	return tw.Flush()
}

func optional(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
