// Command simpidemic runs one epidemic simulation and prints the daily
// compartments as a table, CSV or JSON. The run can be saved as a scenario
// and exported to blob storage.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/log"

	"simpidemic/internal/adapters/report"
	"simpidemic/internal/blob"
	"simpidemic/internal/core"
	"simpidemic/internal/param"
	"simpidemic/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

// actionFlag collects repeated -action day:name=value arguments.
type actionFlag []actionSpec

type actionSpec struct {
	day   int
	name  string
	value float64
}

func (a *actionFlag) String() string {
	parts := make([]string, len(*a))
	for i, s := range *a {
		parts[i] = fmt.Sprintf("%d:%s=%g", s.day, s.name, s.value)
	}
	return strings.Join(parts, ",")
}

func (a *actionFlag) Set(v string) error {
	dayPart, rest, ok := strings.Cut(v, ":")
	if !ok {
		return fmt.Errorf("want day:name=value, got %q", v)
	}
	name, valuePart, ok := strings.Cut(rest, "=")
	if !ok || name == "" {
		return fmt.Errorf("want day:name=value, got %q", v)
	}
	day, err := strconv.Atoi(dayPart)
	if err != nil {
		return fmt.Errorf("action day %q: %w", dayPart, err)
	}
	value, err := strconv.ParseFloat(valuePart, 64)
	if err != nil {
		return fmt.Errorf("action value %q: %w", valuePart, err)
	}
	*a = append(*a, actionSpec{day: day, name: name, value: value})
	return nil
}

type options struct {
	query      string
	kernel     string
	days       int
	contacts   float64
	capacity   float64
	actions    actionFlag
	format     string
	population int64
	infected   int64
	export     string
	save       string
	dither     float64
	seed       int64
	verbose    bool
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("simpidemic", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.query, "query", "", "encoded state to start from (v=1&cpd=...)")
	fs.StringVar(&o.kernel, "kernel", "", "transmission kernel: peak|table")
	fs.IntVar(&o.days, "days", 0, "number of days to simulate")
	fs.Float64Var(&o.contacts, "contacts", 0, "contacts per day")
	fs.Float64Var(&o.capacity, "capacity", 0, "treatment capacity per 100K")
	fs.Var(&o.actions, "action", "scheduled change day:name=value (repeatable; name or code)")
	fs.StringVar(&o.format, "format", "table", "output: table|csv|json")
	fs.Int64Var(&o.population, "population", core.DefaultPopulation, "initial population")
	fs.Int64Var(&o.infected, "infected", core.DefaultInfected, "initially infected")
	fs.StringVar(&o.export, "export", "", "comma separated report formats to store (json,csv,html,png)")
	fs.StringVar(&o.save, "save", "", "save the run as a named scenario")
	fs.Float64Var(&o.dither, "dither", 0, "dithered rounding noise scale (0 disables)")
	fs.Int64Var(&o.seed, "seed", 1, "seed for dithered rounding")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	logger := log.NewWithOptions(stderr, log.Options{ReportTimestamp: true, Prefix: "simpidemic"})
	if o.verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if err := run(context.Background(), o, set, logger, stdout); err != nil {
		logger.Error("run failed", "err", err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func run(ctx context.Context, o options, set map[string]bool, logger *log.Logger, stdout io.Writer) error {
	switch o.format {
	case "table", "csv", "json":
	default:
		return usageError{fmt.Errorf("unknown format %q", o.format)}
	}
	var exportFormats []report.Format
	if o.export != "" {
		var err error
		if exportFormats, err = report.ParseFormats([]string{o.export}); err != nil {
			return usageError{err}
		}
	}
	sim, err := configure(o, set, logger)
	if err != nil {
		return err
	}
	result, err := sim.Run(ctx)
	if err != nil {
		return err
	}
	if o.save != "" {
		sc, err := saveScenario(ctx, o, sim, logger)
		if err != nil {
			return err
		}
		result.Scenario = &sc
	}
	if len(exportFormats) > 0 {
		store, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		artifacts, err := report.NewExporter(store, logger).Export(ctx, result, exportFormats)
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			logger.Info("exported", "key", a.Key, "bytes", a.Size, "url", a.URL)
		}
	}
	return write(stdout, o.format, result)
}

func configure(o options, set map[string]bool, logger *log.Logger) (*core.Simulator, error) {
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithPopulation(o.population, o.infected),
	}
	if o.dither != 0 {
		opts = append(opts, core.WithDither(o.dither, o.seed))
	}
	sim := core.NewSimulator(opts...)
	if o.query != "" {
		if errs := sim.ApplyQuery(o.query); len(errs) > 0 {
			return nil, usageError{&core.QueryError{Fields: errs}}
		}
	}
	if set["kernel"] {
		kind, err := core.ParseKernelKind(o.kernel)
		if err != nil {
			return nil, usageError{err}
		}
		if err := sim.SetKernel(kind); err != nil {
			return nil, usageError{err}
		}
	}
	err := sim.Update(func(p *param.Set) error {
		if set["days"] {
			if err := p.SetValue(core.ParamNumDays, float64(o.days)); err != nil {
				return err
			}
		}
		if set["contacts"] {
			if err := p.SetValue(core.ParamContactsPerDay, o.contacts); err != nil {
				return err
			}
		}
		if set["capacity"] {
			return p.SetValue(core.ParamTreatmentCapacityPer100K, o.capacity)
		}
		return nil
	})
	if err != nil {
		return nil, usageError{err}
	}
	for _, a := range o.actions {
		name := a.name
		if p, ok := sim.Params().ByCode(name); ok {
			name = p.Name()
		}
		if _, err := sim.AddActionValue(a.day, name, a.value, true); err != nil {
			return nil, usageError{err}
		}
	}
	return sim, nil
}

func saveScenario(ctx context.Context, o options, sim *core.Simulator, logger *log.Logger) (domain.Scenario, error) {
	store, err := core.OpenScenarioStore()
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("open scenario store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	pop := sim.Population()
	sc, err := core.NewService(store, core.WithServiceLogger(logger)).CreateScenario(ctx, domain.Scenario{
		Name:       o.save,
		Query:      sim.EncodeQuery(),
		Population: pop.Initial,
		Infected:   pop.Infected,
	})
	if err != nil {
		return domain.Scenario{}, err
	}
	return sc, nil
}

func write(w io.Writer, format string, run core.Run) error {
	switch format {
	case "csv":
		return report.WriteCSV(csv.NewWriter(w), run.Result)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "day\tsusceptible\tinfected\trecovered\tin_treatment\tdead\t")
	for d := range run.Result.Infected {
		c, _ := run.Result.Day(d)
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t\n", d, c.Susceptible, c.Infected, c.Recovered, c.InTreatment, c.Dead)
	}
	s := run.Summary
	fmt.Fprintf(tw, "\npeak infected %d on day %d, total infections %d, dead %d\n", s.PeakInfected, s.PeakDay, s.TotalInfections, s.TotalDead)
	return tw.Flush()
}
