package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/automation"
	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/san-kum/stochsim/internal/optim"
	"github.com/san-kum/stochsim/internal/sde"
	"github.com/san-kum/stochsim/internal/storage"
	"github.com/san-kum/stochsim/internal/telemetry"
	"github.com/san-kum/stochsim/internal/viz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	dataDir  string
	logLevel string

	configFile   string
	dt           float64
	duration     float64
	seed         int64
	noiseName    string
	lossName     string
	threshold    float64
	window       int
	historyLimit int
	metricsFile  string
	noSave       bool

	dimension  int
	crossLevel float64
	xAxis      int
	yAxis      int

	members      int
	stepsPerTick int

	paramName     string
	paramMin      float64
	paramMax      float64
	paramSteps    int
	gridParams    []string
	objectiveName string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stochsim",
		Short:         "stochastic evolution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".stochsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a simulation and store it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addEngineFlags(runCmd)
	runCmd.Flags().StringVar(&lossName, "loss", config.DefaultLoss, "convergence loss (distance, condition)")
	runCmd.Flags().Float64Var(&threshold, "threshold", 0, "convergence threshold")
	runCmd.Flags().IntVar(&window, "window", config.DefaultWindow, "statistics window")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this textfile")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&dimension, "dim", -1, "plot only this dimension (-1 plots all)")
	plotCmd.Flags().Float64Var(&crossLevel, "level", 0.5, "level to count crossings of with --dim")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "project a stored run onto two dimensions",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for y-axis")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored run to JSON on stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportRun(os.Stdout, args[0])
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [preset] [path]",
		Short: "write a preset as an editable yaml config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetPreset(args[0])
			if cfg == nil {
				return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
			}
			if err := config.Save(args[1], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[1])
			return nil
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "step a simulation in an interactive terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addEngineFlags(liveCmd)
	liveCmd.Flags().IntVar(&stepsPerTick, "steps-per-frame", 1, "engine steps per frame")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [preset]",
		Short: "run independently seeded members in parallel",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	addEngineFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&members, "members", 16, "number of members")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "sweep one drift parameter over a range",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addEngineFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&paramName, "param", "", "drift parameter to sweep (e.g. rate_0, cond_elevated)")
	sweepCmd.Flags().Float64Var(&paramMin, "min", 0, "minimum value")
	sweepCmd.Flags().Float64Var(&paramMax, "max", 1, "maximum value")
	sweepCmd.Flags().IntVar(&paramSteps, "steps", 10, "number of values")
	_ = sweepCmd.MarkFlagRequired("param")

	optimizeCmd := &cobra.Command{
		Use:   "optimize [preset]",
		Short: "grid search drift parameters against an objective",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runOptimize,
	}
	addEngineFlags(optimizeCmd)
	optimizeCmd.Flags().StringArrayVar(&gridParams, "param", nil, "grid axis as name=v1,v2,... (repeatable)")
	optimizeCmd.Flags().StringVar(&objectiveName, "objective", "mean_loss", "objective (mean_loss, divergence, metric:<name>)")
	_ = optimizeCmd.MarkFlagRequired("param")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, phaseCmd, exportJSONCmd, presetsCmd, initCmd, liveCmd, ensembleCmd,
		sweepCmd, optimizeCmd, scenarioCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().Float64Var(&dt, "dt", 0, "timestep")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&noiseName, "noise", config.DefaultNoise, "noise source (gaussian, antithetic)")
	cmd.Flags().IntVar(&historyLimit, "history-limit", 0, "keep only the newest N states (0 keeps all)")
}

// loadConfig resolves the preset argument or --config file, then applies
// explicitly set flags on top.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	case len(args) > 0:
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = &dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("noise") {
		cfg.Noise = noiseName
	}
	if flags.Changed("history-limit") {
		cfg.HistoryLimit = historyLimit
	}
	if flags.Changed("loss") {
		cfg.Convergence.Loss = lossName
	}
	if flags.Changed("threshold") {
		cfg.Convergence.Threshold = &threshold
	}
	if flags.Changed("window") {
		cfg.Convergence.Window = window
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts []sde.Option
	var reg *prometheus.Registry
	var tel *telemetry.Observer
	if metricsFile != "" {
		reg = prometheus.NewRegistry()
		tel = telemetry.New(reg, cfg.Names())
		opts = append(opts, sde.WithObserver(tel))
	}

	exp := experiment.New(cfg, experiment.NewRegistry())
	if err := exp.Setup(opts...); err != nil {
		return err
	}

	name := cfg.Name
	if name == "" {
		name = "custom"
	}
	fmt.Printf("running %s simulation...\n", name)
	last := -1
	progress := func(p sde.Progress) bool {
		pct := int(100 * p.Time / p.Horizon)
		if pct != last {
			last = pct
			fmt.Printf("\r%s %3d%%", viz.ProgressBar(p.Time/p.Horizon, 30), pct)
		}
		return true
	}

	res, runErr := exp.Run(ctx, progress)
	fmt.Println()
	if res == nil {
		return runErr
	}
	if runErr != nil {
		logrus.WithError(runErr).Warn("run stopped early, keeping partial result")
	}

	if tel != nil {
		if recs := res.Convergence; len(recs) > 0 {
			tel.ObserveLoss(recs[len(recs)-1])
		}
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return err
		}
		fmt.Printf("metrics written to %s\n", metricsFile)
	}

	fmt.Printf("completed in %v\n", res.Wall)
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(storage.MetadataFor(cfg), res)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}

	printSummary(res)
	return runErr
}

func printSummary(res *experiment.Result) {
	final := res.States[len(res.States)-1]
	fmt.Printf("steps: %d\n", res.Stats.TotalSteps)
	fmt.Printf("final regime: %s\n", viz.RegimeBadge(final.Regime))

	fmt.Println("\nfinal state:")
	for i, v := range final.State {
		fmt.Printf("  %-10s %.4f\n", res.Names[i], v)
	}

	fmt.Println("\nregimes:")
	for _, r := range dynamo.Regimes {
		fmt.Printf("  %-10s %5.1f%%  dwell %.3f\n", r, 100*res.Regimes.Occupancy[r], res.Regimes.MeanDwell[r])
	}

	fmt.Println("\nconvergence:")
	if res.Stats.Sufficient {
		fmt.Printf("  rate %.3f  mean loss %.4f  last loss %.4f\n", res.Stats.ConvergenceRate, res.Stats.MeanLoss, res.Stats.LastLoss)
	} else {
		fmt.Printf("  insufficient data (%d records, window %d)\n", res.Stats.Records, res.Stats.Window)
	}
	fmt.Printf("  ito %.4f  exact %.4f\n", res.Ito, res.ItoExact)

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(res.Metrics))
	for name := range res.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, res.Metrics[name])
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tTIME\tDURATION\tDT\tNOISE\tSTEPS\tCONVERGED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.4f\t%s\t%d\t%.2f\n",
			run.ID,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Noise,
			run.Steps,
			run.Stats.ConvergenceRate,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	states, names, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("preset: %s\n", meta.Preset)
	fmt.Printf("samples: %d\n\n", len(states))

	if dimension >= 0 {
		caption := fmt.Sprintf("%s vs time", dynamo.DimensionName(dimension))
		if dimension < len(names) {
			caption = names[dimension] + " vs time"
		}
		graph, err := viz.PlotTrajectory(states, dimension, caption, 80, 10)
		if err != nil {
			return err
		}
		fmt.Println(graph)
		if ex, ok := analysis.Excursion(states, dimension); ok {
			fmt.Printf("\nmin %.4f (t=%.2f)  max %.4f (t=%.2f)  mean %.4f  final %.4f\n",
				ex.Min, ex.TimeAtMin, ex.Max, ex.TimeAtMax, ex.Mean, ex.Final)
			fmt.Printf("crossings of %.2f: %d\n", crossLevel, len(analysis.Crossings(states, dimension, crossLevel)))
		}
		return nil
	}

	graph, err := viz.PlotAll(states, names, 80, 15)
	if err != nil {
		return err
	}
	fmt.Println(graph)

	sum := analysis.SummarizeRegimes(states)
	fmt.Println()
	for _, tc := range sum.TransitionList() {
		fmt.Printf("  %s -> %s: %d\n", tc.From, tc.To, tc.Count)
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	states, names, err := storage.New(dataDir).LoadStates(args[0])
	if err != nil {
		return err
	}
	p := analysis.Portrait(states, xAxis, yAxis)
	if p == nil {
		return fmt.Errorf("axes %d,%d outside state of %d dimensions", xAxis, yAxis, len(names))
	}
	fmt.Printf("%s (x) vs %s (y)\n", names[xAxis], names[yAxis])
	fmt.Print(p.ASCII(60, 20))
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tDIMS\tCONDITION\tDT\tDURATION\tNOISE\tLOSS")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%.1f\t%s\t%s\n",
			name,
			strings.Join(cfg.Names(), ","),
			cfg.Condition.Dimension,
			*cfg.Dt,
			cfg.Duration,
			cfg.Noise,
			cfg.Convergence.Loss,
		)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	registry := experiment.NewRegistry()
	ec, err := cfg.ToEngine()
	if err != nil {
		return err
	}
	src, err := registry.GetNoise(cfg.Noise, cfg.Seed)
	if err != nil {
		return err
	}
	opts := []sde.Option{sde.WithNoise(src)}
	for _, m := range registry.DefaultMetrics(cfg) {
		opts = append(opts, sde.WithMetric(m))
	}
	stepper, err := sde.New(ec, opts...)
	if err != nil {
		return err
	}

	title := cfg.Name
	if title == "" {
		title = "custom"
	}
	_, err = tea.NewProgram(viz.NewLiveModel(stepper, title, stepsPerTick), tea.WithAltScreen()).Run()
	return err
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ec, err := cfg.ToEngine()
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	if _, err := registry.GetNoise(cfg.Noise, 0); err != nil {
		return err
	}
	factory := func(s int64) dynamo.NoiseSource {
		src, _ := registry.GetNoise(cfg.Noise, s)
		return src
	}

	ens, err := sde.NewEnsemble(ec, members, cfg.Seed, factory)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %d members to t=%.2f...\n", members, cfg.Duration)
	results, err := ens.Run(ctx, cfg.Duration)
	if err != nil {
		return err
	}

	mean := sde.MeanFinal(results)
	fmt.Println("\nmean final state:")
	for i, v := range mean {
		fmt.Printf("  %-10s %.4f\n", ec.Names[i], v)
	}

	counts := sde.RegimeCounts(results)
	fmt.Println("\nfinal regimes:")
	for _, r := range dynamo.Regimes {
		fmt.Printf("  %-10s %d/%d\n", r, counts[r], len(results))
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("sweeping %s over [%.3f, %.3f] in %d steps...\n", paramName, paramMin, paramMax, paramSteps)
	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      cfg,
		ParamName: paramName,
		ParamMin:  paramMin,
		ParamMax:  paramMax,
		NumSteps:  paramSteps,
	}, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tREGIME\tCONVERGED\tMEAN LOSS\tCLAMP RATE\n", strings.ToUpper(paramName))
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%.4f\t-\t-\t-\t%v\n", r.ParamValue, r.Err)
			continue
		}
		fmt.Fprintf(w, "%.4f\t%s\t%.1f%%\t%.4f\t%.3f\n",
			r.ParamValue, r.FinalRegime, r.ConvergenceRate*100, r.MeanLoss, r.ClampRate)
	}
	return w.Flush()
}

// parseGridParam parses "name=v1,v2,...".
func parseGridParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("invalid --param %q, want name=v1,v2", s)
	}
	var values []float64
	for _, part := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid --param %q: %w", s, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	objective, err := optim.GetObjective(objectiveName)
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, p := range gridParams {
		name, values, err := parseGridParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("evaluating %d grid points against %s...\n", grid.Points(), objectiveName)
	best, score, evals, err := grid.Search(ctx, cfg, objective)
	if err != nil {
		return err
	}

	failed := 0
	for _, e := range evals {
		if e.Err != nil {
			failed++
		}
	}
	fmt.Printf("\nbest %s: %.6f (%d/%d points failed)\n", objectiveName, score, failed, len(evals))
	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-16s %.4f\n", k, best[k])
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("scenario %s: %d steps\n", scenario.Name, len(scenario.Steps))
	results, runErr := automation.RunScenario(ctx, scenario, nil)

	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	for _, r := range results {
		id, err := store.Save(storage.MetadataFor(r.Config), r.Result)
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s %s  final=%s\n", r.Name, id, viz.RegimeBadge(r.Result.Regimes.Final))
	}
	return runErr
}
