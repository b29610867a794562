// fidcsim simulates the cash waterfall of a FIDC (receivables investment
// fund) and reports per-class KPIs.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seenimoa/fidcsim/api"
	"github.com/seenimoa/fidcsim/internal/config"
	"github.com/seenimoa/fidcsim/internal/inputs"
	"github.com/seenimoa/fidcsim/internal/logging"
	"github.com/seenimoa/fidcsim/internal/scenario"
	"github.com/seenimoa/fidcsim/internal/simulate"
	"github.com/seenimoa/fidcsim/internal/store"
	"github.com/seenimoa/fidcsim/internal/waterfall"
	"github.com/seenimoa/fidcsim/pkg/models"
	"github.com/seenimoa/fidcsim/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fidcsim",
	Short: "FIDC waterfall simulator",
	Long: `fidcsim projects the receivables of a FIDC, runs its payment waterfall
period by period over senior, mezzanine and subordinated quotas, and reports
yield, average life, duration, shortfall and subordination KPIs per class.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

// newSimulator maps the engine config section onto the simulator.
func newSimulator(c *config.Config, log *zap.Logger) (*simulate.Simulator, error) {
	wc := waterfall.Config{
		Precision:       int32(c.Engine.Precision),
		Accrual:         models.AccrualMethod(c.Engine.Accrual),
		ShortfallPolicy: models.ShortfallPolicy(c.Engine.ShortfallPolicy),
		PrincipalMode:   models.PrincipalMode(c.Engine.PrincipalMode),
	}
	return simulate.New(wc, log, simulate.WithInterpolation(models.Interpolation(c.Engine.Interpolation)))
}

func loadBundle(path string) (*inputs.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return inputs.Parse(data)
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "fidcsim %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Validate Command ---

var validateCmd = &cobra.Command{
	Use:   "validate [bundle.json]",
	Short: "Check an input bundle without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundle(args[0])
		if err != nil {
			return err
		}
		sim, err := newSimulator(cfg, logger)
		if err != nil {
			return err
		}
		plan, err := sim.Prepare(b)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: valid\n", b.Name)
		fmt.Fprintf(out, "  periods:  %d (%s to %s)\n", plan.Timeline.Len(),
			utils.FormatDate(plan.Timeline.Start()), utils.FormatDate(plan.Timeline.Maturity()))
		fmt.Fprintf(out, "  classes:  %d\n", len(b.Structure.Classes))
		fmt.Fprintf(out, "  key:      %s\n", plan.Key)
		printDiagnostics(out, plan.Projection.Diagnostics)
		return nil
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run [bundle.json]",
	Short: "Simulate a bundle and print class KPIs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundle(args[0])
		if err != nil {
			return err
		}
		sim, err := newSimulator(cfg, logger)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		rep, err := sim.Run(ctx, b)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		printReport(out, rep)
		if periods, _ := cmd.Flags().GetBool("periods"); periods {
			printPeriods(out, rep.Run)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("json", false, "print the full report as JSON")
	runCmd.Flags().Bool("periods", false, "also print the per-period results table")
}

// --- Scenarios Command ---

// overrideFile is the --file format: named partial assumption documents.
type overrideFile []struct {
	Name        string                `json:"name"`
	Assumptions inputs.AssumptionsDoc `json:"assumptions"`
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios [bundle.json]",
	Short: "Run assumption variants of a bundle in parallel and compare them",
	Long: `Run assumption variants of a bundle in parallel and compare them.

Examples:
  fidcsim scenarios fund.json --cdr 0,0.02,0.05,0.1
  fidcsim scenarios fund.json --spread 0,0.01,0.02
  fidcsim scenarios fund.json --file stress.json --parallel 4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundle(args[0])
		if err != nil {
			return err
		}
		variants, err := variantsFromFlags(cmd, b.Assumptions)
		if err != nil {
			return err
		}
		sim, err := newSimulator(cfg, logger)
		if err != nil {
			return err
		}
		limit := cfg.Scenarios.MaxParallel
		if p, _ := cmd.Flags().GetInt("parallel"); p > 0 {
			limit = p
		}
		ctx, stop := signalContext()
		defer stop()

		outcomes, err := scenario.NewRunner(sim, limit, logger).Run(ctx, b, variants)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(scenario.Compare(outcomes))
		}
		printComparison(out, outcomes)
		return nil
	},
}

func init() {
	scenariosCmd.Flags().String("cdr", "", "comma-separated annual default rates, one scenario each")
	scenariosCmd.Flags().String("spread", "", "comma-separated asset spreads, one scenario each")
	scenariosCmd.Flags().String("file", "", "JSON file of named assumption overrides")
	scenariosCmd.Flags().Int("parallel", 0, "maximum concurrent scenarios (default: scenarios.max_parallel)")
	scenariosCmd.Flags().Bool("json", false, "print the comparison rows as JSON")
}

func variantsFromFlags(cmd *cobra.Command, base models.Assumptions) ([]scenario.Variant, error) {
	cdr, _ := cmd.Flags().GetString("cdr")
	spread, _ := cmd.Flags().GetString("spread")
	file, _ := cmd.Flags().GetString("file")
	set := 0
	for _, v := range []string{cdr, spread, file} {
		if v != "" {
			set++
		}
	}
	switch {
	case set > 1:
		return nil, errors.New("use only one of --cdr, --spread or --file")
	case cdr != "":
		rates, err := parseRates(cdr)
		if err != nil {
			return nil, err
		}
		return scenario.DefaultSweep(base, rates), nil
	case spread != "":
		spreads, err := parseRates(spread)
		if err != nil {
			return nil, err
		}
		return scenario.SpreadSweep(base, spreads), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read scenarios: %w", err)
		}
		var of overrideFile
		if err := json.Unmarshal(data, &of); err != nil {
			return nil, fmt.Errorf("%w: scenarios file: %v", models.ErrInvalidInput, err)
		}
		names := make([]string, len(of))
		docs := make([]*inputs.AssumptionsDoc, len(of))
		for i := range of {
			names[i], docs[i] = of[i].Name, &of[i].Assumptions
		}
		return scenario.FromOverrides(base, names, docs)
	}
	return nil, errors.New("provide --cdr, --spread or --file")
}

func parseRates(s string) ([]float64, error) {
	var rates []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: rate %q: %v", models.ErrInvalidInput, part, err)
		}
		rates = append(rates, r)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: --cdr has no rates", models.ErrInvalidInput)
	}
	return rates, nil
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.API.Port = port
		}
		sim, err := newSimulator(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := store.Open(ctx, cfg.Store.Backend, cfg.Store.RedisURL, time.Duration(cfg.Store.TTLSeconds)*time.Second)
		cancel()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		srv, err := api.NewServer(cfg, api.Deps{
			Simulator: sim,
			Store:     st,
			Runner:    scenario.NewRunner(sim, cfg.Scenarios.MaxParallel, logger),
			Logger:    logger,
			Version:   version,
		})
		if err != nil {
			return err
		}
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		logger.Info("starting api server",
			zap.String("addr", addr),
			zap.String("store", cfg.Store.Backend),
			zap.String("version", version))
		return srv.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default: api.port)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and credential status",
	RunE: func(cmd *cobra.Command, args []string) error {
		printStatus(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to ~/.fidcsim/config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			path = config.ConfigFilePath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.SaveToFile(config.Defaults(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("path", "", "target file (default: ~/.fidcsim/config.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}
