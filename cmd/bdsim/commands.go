package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/bdsim/internal/analysis"
	"github.com/san-kum/bdsim/internal/automation"
	"github.com/san-kum/bdsim/internal/config"
	"github.com/san-kum/bdsim/internal/experiment"
	"github.com/san-kum/bdsim/internal/mcmc"
	"github.com/san-kum/bdsim/internal/observability"
	"github.com/san-kum/bdsim/internal/optim"
	"github.com/san-kum/bdsim/internal/physics"
	"github.com/san-kum/bdsim/internal/reaction"
	"github.com/san-kum/bdsim/internal/sampler"
	"github.com/san-kum/bdsim/internal/storage"
	"github.com/san-kum/bdsim/internal/tui"
)

func runChains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	recorder := observability.NewRecorder(reg)
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: observability.Handler(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server", "error", err)
			}
		}()
		defer srv.Close()
		slog.Info("serving metrics", "addr", metricsAddr)
	}

	exp, err := experiment.New(cfg, experiment.WithRecorder(recorder))
	if err != nil {
		return err
	}

	start := time.Now()
	results, runErr := exp.RunEnsemble(ctx)
	elapsed := time.Since(start)

	st, err := storage.OpenDir(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	runLabel := label
	if runLabel == "" {
		runLabel = preset
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAIN\tSEED\tITER\tACCEPT\tMEAN ENERGY")
	if err := saveChains(st, w, cfg, runLabel, exp.BaseSeed(), results); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d chain(s) in %v\n", len(results), elapsed.Round(time.Millisecond))

	return runErr
}

// saveChains stores every chain that produced samples and prints one table
// row per stored run. Chains are saved even when the ensemble was
// interrupted.
func saveChains(st *storage.Store, w io.Writer, cfg *config.Config, runLabel string, baseSeed int64, results []*mcmc.Result) error {
	cfgYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	for i, res := range results {
		if res == nil || res.Iterations == 0 {
			continue
		}
		meta, err := st.Save(context.Background(), storage.RunMetadata{
			Label:  runLabel,
			Scheme: string(cfg.Sampler.Scheme),
			Seed:   baseSeed + int64(i),
			Chain:  i,
			Config: string(cfgYAML),
		}, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.3f\t%.4f\n",
			meta.ID, i, meta.Seed, meta.Iterations, meta.AcceptanceRate, res.Metrics["mean_energy"])
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if sc.Description != "" {
		fmt.Printf("%s: %s\n\n", sc.Name, sc.Description)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAIN\tSEED\tITER\tACCEPT\tMEAN ENERGY")

	start := time.Now()
	_, err = automation.RunScenario(ctx, sc, slog.Default(), func(i int, r automation.StepResult) error {
		return saveChains(st, w, r.Config, r.Step.Label(), r.BaseSeed, r.Results)
	})
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	fmt.Printf("\n%d step(s) in %v\n", len(sc.Steps), time.Since(start).Round(time.Millisecond))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The terminal belongs to the TUI.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	chain, err := exp.BuildChain(0)
	if err != nil {
		return err
	}
	defer chain.Sampler.Cleanup()

	title := preset
	if title == "" {
		title = string(cfg.Sampler.Scheme)
	}
	return tui.Run(cmd.Context(), chain, title, cfg.Run.Iterations, cfg.Run.StepsPerIteration)
}

func openStore() (*storage.Store, error) {
	return storage.OpenDir(storeDir())
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tLABEL\tSCHEME\tSEED\tCHAIN\tITER\tACCEPT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.3f\n",
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Label,
			run.Scheme,
			run.Seed,
			run.Chain,
			run.Iterations,
			run.AcceptanceRate,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(cmd.Context(), meta.ID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scheme: %s\n", meta.Scheme)
	fmt.Printf("samples: %d\n\n", len(samples))

	energies := make([]float64, 0, len(samples))
	distances := make([]float64, 0, len(samples))
	accepted := make([]bool, len(samples))
	for i, s := range samples {
		energies = append(energies, s.Energy)
		if !math.IsNaN(s.Distance) {
			distances = append(distances, s.Distance)
		}
		accepted[i] = s.Accepted
	}

	series := []struct {
		caption string
		data    []float64
	}{
		{"potential energy", energies},
		{"distance to target", distances},
		{"running acceptance (window 50)", analysis.RunningAcceptance(accepted, 50)},
	}
	for _, s := range series {
		if len(s.data) < 2 {
			continue
		}
		fmt.Println(asciigraph.Plot(s.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(s.caption),
		))
		fmt.Println()
	}
	return nil
}

func sortedMetricNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(cmd.Context(), meta.ID)
	if err != nil {
		return err
	}
	if len(samples) < 2 {
		return fmt.Errorf("need at least 2 samples for analysis")
	}

	s := analysis.Summarize(samples)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "run\t%s\n", meta.ID)
	fmt.Fprintf(w, "scheme\t%s\n", meta.Scheme)
	fmt.Fprintf(w, "samples\t%d\n", s.Samples)
	fmt.Fprintf(w, "acceptance rate\t%.4f\n", s.AcceptanceRate)
	fmt.Fprintf(w, "mean energy\t%.6f\n", s.MeanEnergy)
	fmt.Fprintf(w, "std energy\t%.6f\n", s.StdEnergy)
	fmt.Fprintf(w, "autocorrelation time\t%.2f\n", s.AutocorrelationTime)
	fmt.Fprintf(w, "effective samples\t%.1f\n", s.EffectiveSamples)
	fmt.Fprintf(w, "mean distance\t%.6f\n", s.MeanDistance)
	for _, name := range sortedMetricNames(meta.Metrics) {
		fmt.Fprintf(w, "%s\t%.6f\n", name, meta.Metrics[name])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	energies := make([]float64, len(samples))
	for i, smp := range samples {
		energies[i] = smp.Energy
	}
	acf := analysis.Autocorrelation(energies)
	if len(acf) > 100 {
		acf = acf[:100]
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(acf,
		asciigraph.Height(8),
		asciigraph.Width(80),
		asciigraph.Caption("energy autocorrelation"),
	))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	switch format {
	case "json", "csv", "svg":
	default:
		return fmt.Errorf("unknown format %q, want json, csv or svg", format)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(cmd.Context(), meta.ID)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "json":
		err = storage.ExportJSON(out, *meta, samples)
	case "csv":
		err = storage.ExportCSV(out, samples)
	case "svg":
		err = storage.ExportSVG(out, samples)
	}
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "exported %d samples to %s\n", len(samples), outPath)
	}
	return nil
}

func deleteRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := st.Delete(cmd.Context(), meta.ID); err != nil {
		return err
	}
	fmt.Println("deleted", meta.ID)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tSCHEME\tPARTICLES\tFORCE FIELD\tREACTION")
	for _, system := range config.ListSystems() {
		for _, name := range config.ListPresets(system) {
			cfg := config.GetPreset(system, name)
			terms := make([]string, len(cfg.ForceField))
			for i, t := range cfg.ForceField {
				terms[i] = t.Kind
			}
			rc := cfg.Reaction.Kind
			if rc == "" {
				rc = "-"
			}
			fmt.Fprintf(w, "%s/%s\t%s\t%d\t%s\t%s\n",
				system, name, cfg.Sampler.Scheme, len(cfg.Particles.Masses), strings.Join(terms, ","), rc)
		}
	}
	return w.Flush()
}

func listSchemes(cmd *cobra.Command, args []string) error {
	schemes := make([]string, 0, len(sampler.Schemes()))
	for _, s := range sampler.Schemes() {
		schemes = append(schemes, string(s))
	}
	reg := experiment.NewRegistry()

	fmt.Println("schemes:            ", strings.Join(schemes, ", "))
	fmt.Println("kernels:            ", strings.Join(reg.ListKernels(), ", "))
	fmt.Println("force terms:        ", strings.Join(physics.Kinds(), ", "))
	fmt.Println("reaction coordinates:", strings.Join(reaction.Kinds(), ", "))
	fmt.Println("metrics:            ", strings.Join(reg.ListMetrics(), ", "))
	fmt.Println("tunable parameters: ", strings.Join(optim.Parameters(), ", "))
	return nil
}

func benchSchemes(cmd *cobra.Command, args []string) error {
	system, name, ok := strings.Cut(preset, "/")
	if !ok {
		return fmt.Errorf("preset must be system/name, got %q", preset)
	}
	base := config.GetPreset(system, name)
	if base == nil {
		return fmt.Errorf("unknown preset %q", preset)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	fmt.Printf("benchmarking %s, %d iterations of %d steps\n\n", preset, iterations, steps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCHEME\tKERNEL\tTIME\tSTEPS/SEC\tACCEPT")

	for _, s := range sampler.Schemes() {
		for _, k := range experiment.NewRegistry().ListKernels() {
			cfg := base.Clone()
			cfg.Sampler.Scheme = s
			cfg.Sampler.Seed = 42
			cfg.Run.AcceptanceSeed = 42
			cfg.Run.Iterations = iterations
			cfg.Run.StepsPerIteration = steps
			cfg.Kernel.Type = k

			exp, err := experiment.New(cfg)
			if err != nil {
				return err
			}
			start := time.Now()
			res, err := exp.Run(cmd.Context())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			fmt.Fprintf(w, "%s\t%s\t%v\t%.0f\t%.3f\n",
				s, k, elapsed.Round(time.Microsecond),
				float64(iterations*steps)/elapsed.Seconds(), res.AcceptanceRate)
		}
	}
	return w.Flush()
}

// parseGrid turns "name=v1,v2" flags into grid search axes.
func parseGrid(flags []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(flags))
	ranges := make([][]float64, 0, len(flags))
	for _, f := range flags {
		name, list, ok := strings.Cut(f, "=")
		if !ok {
			return nil, nil, fmt.Errorf("grid %q: want name=v1,v2,...", f)
		}
		var values []float64
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("grid %q: %w", f, err)
			}
			values = append(values, v)
		}
		names = append(names, strings.TrimSpace(name))
		ranges = append(ranges, values)
	}
	return names, ranges, nil
}

func tuneParams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(gridParams)
	if err != nil {
		return err
	}
	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	objective := optim.TargetAcceptance(targetAcceptance)
	scoreName := fmt.Sprintf("|ACCEPT-%.2f|", targetAcceptance)
	if objectiveMetric != "" {
		if _, err := experiment.NewRegistry().GetMetric(objectiveMetric); err != nil {
			return err
		}
		objective = optim.Metric(objectiveMetric)
		scoreName = strings.ToUpper(objectiveMetric)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// chains log every warning; the table is the output here
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fmt.Printf("tuning %s over %d points, %d iterations each\n\n", cfg.Sampler.Scheme, g.Size(), cfg.Run.Iterations)
	best, trials, err := g.Search(ctx, cfg, objective, experiment.WithLogger(logger))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := append(append([]string(nil), names...), scoreName)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(header, "\t")))
	for _, t := range trials {
		row := make([]string, 0, len(names)+1)
		for _, n := range names {
			row = append(row, strconv.FormatFloat(t.Params[n], 'g', -1, 64))
		}
		if t.Err != nil {
			row = append(row, "error: "+t.Err.Error())
		} else {
			row = append(row, fmt.Sprintf("%.4f", t.Score))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}

	fmt.Println()
	for _, n := range names {
		fmt.Printf("best %s = %g\n", n, best[n])
	}
	return nil
}
