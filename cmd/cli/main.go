// mvsim command line.
//
// Usage:
//
//	mvsim run --input inputs/ --output outputs/
//	mvsim validate --input inputs/mvs_config.json
//	mvsim sweep --input inputs/ --path economic_data.discount_factor --values 0.02,0.05,0.08
//	mvsim weights
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"mvsim/internal/config"
	"mvsim/internal/data"
	"mvsim/internal/kpi"
	"mvsim/internal/logging"
	"mvsim/internal/model"
	"mvsim/internal/simerr"
	"mvsim/internal/simulation"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitFatal         = 1
	ExitUsage         = 2
	ExitPostCondition = 3
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "mvsim",
		Usage:   "Multi-vector energy system simulator",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML runtime settings",
				EnvVars: []string{"MVSIM_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"MVSIM_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			validateCommand(),
			sweepCommand(),
			weightsCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUsage)
	}
}

func loadSettings(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("settings: %v", err), ExitUsage)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logging.Setup(cfg.Log.Level, true, os.Stderr)
	return cfg, nil
}

var inputFlag = &cli.StringFlag{
	Name:     "input",
	Aliases:  []string{"i"},
	Usage:    "Input directory (csv_elements/ or mvs_config.json) or configuration document",
	Required: true,
}

// =============================================================================
// RUN COMMAND
// =============================================================================

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Simulate an energy system and write the result document",
		Flags: []cli.Flag{
			inputFlag,
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (defaults to the settings output.dir)",
			},
		},
		Action: runSimulation,
	}
}

func runSimulation(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	if dir := c.String("output"); dir != "" {
		cfg.Output.Dir = dir
	}

	engine := simulation.New(cfg, nil)
	out, err := engine.Run(c.Context, c.String("input"))
	if err != nil {
		printReport(out.Report)
		return cli.Exit(fmt.Sprintf("simulation failed: %v", firstLine(err)), ExitFatal)
	}
	written, err := simulation.WriteOutputs(out, cfg.Output)
	if err != nil {
		return cli.Exit(fmt.Sprintf("write outputs: %v", err), ExitFatal)
	}

	printSummary(out)
	for _, p := range written {
		fmt.Printf("Wrote %s\n", p)
	}
	printReport(out.Report)
	if out.Report.Count(simerr.KindPostCondition) > 0 {
		return cli.Exit("declared constraints are not met", ExitPostCondition)
	}
	return nil
}

func printSummary(out *simulation.Outcome) {
	k := out.KPIs
	currency := out.System.Economic.Currency
	money := func(v float64) string {
		return decimal.NewFromFloat(v).StringFixed(simulation.CostPlaces) + " " + currency
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Simulation\t%s\n", out.ID)
	fmt.Fprintf(w, "Total cost (NPV)\t%s\n", money(k.Scalar(kpi.CostTotal)))
	fmt.Fprintf(w, "Annuity\t%s/year\n", money(k.Scalar(kpi.AnnuityTotal)))
	fmt.Fprintf(w, "LCOE (eleq)\t%s\n", fmtRatio(k.Scalar(kpi.LCOEquivalent), currency+"/kWh"))
	fmt.Fprintf(w, "Renewable factor\t%.4f\n", k.Scalar(kpi.RenewableFactor))
	fmt.Fprintf(w, "Degree of autonomy\t%.4f\n", k.Scalar(kpi.DegreeOfAutonomy))
	fmt.Fprintf(w, "Total emissions\t%.2f kgCO2eq\n", k.Scalar(kpi.TotalEmissions))
	for _, a := range out.System.Assets {
		if a.OptimizeCap {
			fmt.Fprintf(w, "Optimized %s\t+%.4f\n", a.Label, a.Result.OptimizedAddCap)
		}
	}
	w.Flush()
}

func fmtRatio(v float64, unit string) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(4) + " " + unit
}

// =============================================================================
// VALIDATE COMMAND
// =============================================================================

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check a configuration without solving it",
		Flags: []cli.Flag{inputFlag},
		Action: func(c *cli.Context) error {
			cfg, err := loadSettings(c)
			if err != nil {
				return err
			}
			doc, folder, err := data.Load(c.String("input"))
			if err != nil {
				return cli.Exit(err.Error(), ExitFatal)
			}
			sys, rep := simulation.New(cfg, nil).Validate(doc, folder)
			printReport(rep)
			if rep.HasFatal() {
				return cli.Exit("configuration is invalid", ExitFatal)
			}
			fmt.Printf("Configuration is valid: %d assets, %d busses, %d steps\n",
				len(sys.Assets), len(sys.Busses), sys.Periods())
			return nil
		},
	}
}

// =============================================================================
// SWEEP COMMAND
// =============================================================================

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Re-run the simulation for several values of one parameter",
		Flags: []cli.Flag{
			inputFlag,
			&cli.StringFlag{
				Name:     "path",
				Usage:    "Dotted path of the parameter, e.g. energyProduction.pv.specific_costs",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "values",
				Usage:    "Comma-separated parameter values",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "workers",
				Value: 1,
				Usage: "Parallel simulations",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadSettings(c)
			if err != nil {
				return err
			}
			values, err := parseValues(c.String("values"))
			if err != nil {
				return cli.Exit(err.Error(), ExitUsage)
			}
			doc, folder, err := data.Load(c.String("input"))
			if err != nil {
				return cli.Exit(err.Error(), ExitFatal)
			}
			path := strings.Split(c.String("path"), ".")
			points := simulation.New(cfg, nil).Sweep(c.Context, doc, folder, path, values, c.Int("workers"))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "value\t%s\t%s\t%s\tstatus\n", kpi.CostTotal, kpi.RenewableFactor, kpi.DegreeOfAutonomy)
			failed := 0
			for _, p := range points {
				if p.Err != nil {
					failed++
					fmt.Fprintf(w, "%g\t-\t-\t-\t%s\n", p.Value, firstLine(p.Err))
					continue
				}
				cost, _ := p.Scalar(kpi.CostTotal)
				rf, _ := p.Scalar(kpi.RenewableFactor)
				da, _ := p.Scalar(kpi.DegreeOfAutonomy)
				fmt.Fprintf(w, "%g\t%s\t%.4f\t%.4f\tok\n", p.Value,
					decimal.NewFromFloat(cost).StringFixed(simulation.CostPlaces), rf, da)
			}
			w.Flush()
			if failed == len(points) {
				return cli.Exit("every sweep point failed", ExitFatal)
			}
			return nil
		},
	}
}

func parseValues(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("no values given")
	}
	return out, nil
}

// =============================================================================
// WEIGHTS COMMAND
// =============================================================================

func weightsCommand() *cli.Command {
	return &cli.Command{
		Name:  "weights",
		Usage: "Print the energy carrier weights table",
		Action: func(c *cli.Context) error {
			cfg, err := loadSettings(c)
			if err != nil {
				return err
			}
			weights := cfg.Weights()
			names := make([]string, 0, len(weights))
			for v := range weights {
				names = append(names, string(v))
			}
			sort.Strings(names)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "carrier\tweight\tunit")
			for _, n := range names {
				x := weights[model.EnergyVector(n)]
				fmt.Fprintf(w, "%s\t%g\t%s\n", n, x.Value, x.Unit)
			}
			return w.Flush()
		},
	}
}

func printReport(rep *simerr.Report) {
	if rep == nil {
		return
	}
	for _, e := range rep.Errors {
		level := "ERROR"
		if e.Fatal {
			level = "FATAL"
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", level, e.Error())
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(os.Stderr, "WARN  %s: %s\n", w.Path, w.Message)
	}
}

func firstLine(err error) string {
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
