package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/san-kum/bdsim/internal/config"
	"github.com/san-kum/bdsim/internal/sampler"
)

var (
	dataDir    string
	configFile string
	logLevel   string

	preset      string
	scheme      string
	temperature float64
	stepSize    float64
	lambda      float64
	gamma       float64
	period      float64
	seed        int64
	iterations  int
	steps       int
	chains      int
	kernel      string
	workers     int
	includeBias bool
	metricsAddr string
	label       string

	format  string
	outPath string

	gridParams       []string
	targetAcceptance float64
	objectiveMetric  string
)

// main registers the bdsim commands and exits with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "bdsim",
		Short:         "brownian dynamics proposals for metropolis sampling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default from config, "+config.DefaultDataDir+")")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run one or more chains and store them",
		Args:  cobra.NoArgs,
		RunE:  runChains,
	}
	addChainFlags(runCmd)
	runCmd.Flags().IntVar(&chains, "chains", 1, "number of independent chains")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	runCmd.Flags().StringVar(&label, "label", "", "label stored with the run (default: the preset name)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run one chain with live visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addChainFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot energy, distance and acceptance of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "autocorrelation and effective sample size of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json, csv or an svg plot",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, csv or svg")
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	deleteCmd := &cobra.Command{
		Use:   "delete [run_id]",
		Short: "delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset configurations",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	schemesCmd := &cobra.Command{
		Use:   "schemes",
		Short: "list sampler schemes, kernels, force terms and reaction coordinates",
		Args:  cobra.NoArgs,
		RunE:  listSchemes,
	}

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark every scheme on every kernel",
		Args:  cobra.NoArgs,
		RunE:  benchSchemes,
	}
	benchCmd.Flags().StringVar(&preset, "preset", "doublewell/unbiased", "preset as system/name")
	benchCmd.Flags().IntVar(&iterations, "iterations", 200, "iterations per measurement")
	benchCmd.Flags().IntVar(&steps, "steps", 10, "engine steps per iteration")

	tuneCmd := &cobra.Command{
		Use:     "tune",
		Short:   "grid search sampler parameters on short chains",
		Example: "  bdsim tune --preset doublewell/biased --grid dt=0.0005,0.001,0.002 --grid lambda=0,1,4",
		Args:    cobra.NoArgs,
		RunE:    tuneParams,
	}
	addChainFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&gridParams, "grid", nil, "name=v1,v2,... (repeatable), see 'bdsim schemes'")
	tuneCmd.Flags().Float64Var(&targetAcceptance, "target-acceptance", 0.5, "acceptance rate to aim for")
	tuneCmd.Flags().StringVar(&objectiveMetric, "metric", "", "minimize this metric instead of the acceptance distance")
	tuneCmd.MarkFlagRequired("grid")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run the steps of a scenario file and store every chain",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	rootCmd.AddCommand(runCmd, batchCmd, liveCmd, listCmd, plotCmd, analyzeCmd, exportCmd, deleteCmd, presetsCmd, schemesCmd, benchCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&preset, "preset", "", "preset as system/name, see 'bdsim presets'")
	f.StringVar(&scheme, "scheme", "", "random_walk, indirect_reconstruction or damped_reconstruction")
	f.Float64Var(&temperature, "temperature", config.DefaultTemperature, "temperature in K")
	f.Float64Var(&stepSize, "dt", config.DefaultStepSize, "step size in ps")
	f.Float64Var(&lambda, "lambda", 0, "bias strength")
	f.Float64Var(&gamma, "gamma", 0, "damping of the damped reconstruction")
	f.Float64Var(&period, "period", 0, "half-width of the periodic box, 0 for none")
	f.Int64Var(&seed, "seed", 0, "noise seed, 0 draws one from the clock")
	f.IntVar(&iterations, "iterations", config.DefaultIterations, "metropolis iterations")
	f.IntVar(&steps, "steps", config.DefaultStepsPerIteration, "engine steps per iteration")
	f.StringVar(&kernel, "kernel", "", "reference, cpu or auto")
	f.IntVar(&workers, "workers", 0, "cpu kernel workers, 0 for all cpus")
	f.BoolVar(&includeBias, "include-bias", false, "add the bias energy to the acceptance ratio")
}

func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

// loadConfig layers the preset, the config file, BDSIM_* variables and
// finally any flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	base := config.DefaultConfig()
	if preset != "" {
		system, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset must be system/name, got %q", preset)
		}
		base = config.GetPreset(system, name)
		if base == nil {
			return nil, fmt.Errorf("unknown preset %q", preset)
		}
	}

	cfg, err := config.LoadFrom(base, configFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("scheme") {
		cfg.Sampler.Scheme = sampler.Scheme(scheme)
	}
	if f.Changed("temperature") {
		cfg.Sampler.Temperature = temperature
	}
	if f.Changed("dt") {
		cfg.Sampler.StepSize = stepSize
	}
	if f.Changed("lambda") {
		cfg.Sampler.Lambda = lambda
	}
	if f.Changed("gamma") {
		cfg.Sampler.Gamma = gamma
	}
	if f.Changed("period") {
		cfg.Sampler.Period = period
	}
	if f.Changed("seed") {
		cfg.Sampler.Seed = seed
	}
	if f.Changed("iterations") {
		cfg.Run.Iterations = iterations
	}
	if f.Changed("steps") {
		cfg.Run.StepsPerIteration = steps
	}
	if f.Lookup("chains") != nil && f.Changed("chains") {
		cfg.Run.Chains = chains
	}
	if f.Changed("kernel") {
		cfg.Kernel.Type = kernel
	}
	if f.Changed("workers") {
		cfg.Kernel.Workers = workers
	}
	if f.Changed("include-bias") {
		cfg.Run.IncludeBias = includeBias
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storeDir is the data directory for commands that only read runs.
func storeDir() string {
	if dataDir != "" {
		return dataDir
	}
	if v := os.Getenv("BDSIM_DATA_DIR"); v != "" {
		return v
	}
	return config.DefaultDataDir
}
