package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/config"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/master"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/resource"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/store"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/worker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath   string
	Workers      int
	LogPath      string
	MaxSeconds   int
	Database     string
	ClockLimit   uint32
	SpawnLimit   int
	RecoverToken bool

	// Registry allows overriding the resource namespace (for testing).
	// If nil, defaults to resource.DefaultRegistry.
	Registry *resource.Registry

	// IDGenerator allows overriding run ID generation (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator store.IDGenerator
}

// RunSummary is the machine-readable outcome of a run.
type RunSummary struct {
	RunID        string      `json:"run_id,omitempty"`
	Reason       string      `json:"reason"`
	Message      string      `json:"message"`
	TotalSpawned int         `json:"total_spawned"`
	Completions  int         `json:"completions"`
	Live         int         `json:"live"`
	FinalClock   vclock.Time `json:"final_clock"`
	ElapsedMS    int64       `json:"elapsed_ms"`
	LogPath      string      `json:"log_path"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation",
		Long: `Run the scheduler simulation until a termination condition holds.

One line per completed worker is appended to the log file. Diagnostics go to
stderr. The stop reason is printed when the run ends.

Flags given on the command line override values from --config.

Example:
  oss run
  oss run -s 10 -l run.log -t 5
  oss run --config oss.yaml --db runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "s", def.Workers, "number of workers to keep alive (must be >= 0)")
	cmd.Flags().StringVarP(&opts.LogPath, "log", "l", def.LogPath, "completion log file")
	cmd.Flags().IntVarP(&opts.MaxSeconds, "time", "t", int(def.MaxDuration/time.Second), "wall-clock limit in seconds (must be >= 0)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log (optional)")
	cmd.Flags().Uint32Var(&opts.ClockLimit, "clock-limit", def.ClockLimit, "virtual clock limit in seconds")
	cmd.Flags().IntVar(&opts.SpawnLimit, "spawn-limit", def.SpawnLimit, "stop once more than this many workers were spawned")
	cmd.Flags().BoolVar(&opts.RecoverToken, "recover-token", def.RecoverLostToken, "regenerate the token if its holder crashes")

	return cmd
}

// resolveConfig layers flags that were set explicitly over the config file
// and defaults.
func resolveConfig(opts *RunOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("log") {
		cfg.LogPath = opts.LogPath
	}
	if flags.Changed("time") {
		cfg.MaxDuration = time.Duration(opts.MaxSeconds) * time.Second
	}
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("clock-limit") {
		cfg.ClockLimit = opts.ClockLimit
	}
	if flags.Changed("spawn-limit") {
		cfg.SpawnLimit = opts.SpawnLimit
	}
	if flags.Changed("recover-token") {
		cfg.RecoverLostToken = opts.RecoverToken
	}

	return cfg, cfg.Validate()
}

func runSimulation(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return fail(formatter, CodeInvalidConfig, ExitCommandError, "invalid configuration", err)
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	fileSink, err := simlog.OpenFile(cfg.LogPath)
	if err != nil {
		return fail(formatter, CodeInvalidConfig, ExitCommandError, "failed to open log file", err)
	}
	defer func() {
		if closeErr := fileSink.Close(); closeErr != nil {
			logger.Error("error closing log file", "error", closeErr)
		}
	}()
	sinks := simlog.Multi{fileSink}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	var (
		st    *store.Store
		runID string
	)
	if cfg.Database != "" {
		st, err = store.Open(cfg.Database)
		if err != nil {
			return fail(formatter, CodeStore, ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		gen := opts.IDGenerator
		if gen == nil {
			gen = store.UUIDv7Generator{}
		}
		runID = gen.Generate()
		if err := st.BeginRun(parentCtx, store.Run{
			ID:          runID,
			StartedAt:   time.Now(),
			Workers:     cfg.Workers,
			ClockLimit:  cfg.ClockLimit,
			SpawnLimit:  cfg.SpawnLimit,
			MaxDuration: cfg.MaxDuration,
		}); err != nil {
			return fail(formatter, CodeStore, ExitCommandError, "failed to record run", err)
		}
		sinks = append(sinks, store.NewRecorder(parentCtx, st, runID))
		logger.Info("recording run", "db", cfg.Database, "run_id", runID)
	}

	registry := opts.Registry
	if registry == nil {
		registry = resource.DefaultRegistry
	}
	res, err := resource.Open(registry,
		resource.WithGrace(cfg.Grace),
		resource.WithLogger(logger),
	)
	if err != nil {
		return fail(formatter, CodeResources, ExitFailure, "failed to acquire shared resources", err)
	}

	launcher := master.NewGoroutineLauncher(res,
		master.WithBudget(worker.RandomBudget{Max: cfg.BudgetMax}),
		master.WithLauncherSink(sinks),
		master.WithLauncherLogger(logger),
		master.WithTokenRecovery(cfg.RecoverLostToken),
		master.WithPopulationLimit(2*cfg.Workers+1),
	)
	m := master.New(res, launcher,
		master.WithInitialWorkers(cfg.Workers),
		master.WithClockLimit(cfg.ClockLimit),
		master.WithSpawnLimit(cfg.SpawnLimit),
		master.WithTick(cfg.Tick),
		master.WithMaxDuration(cfg.MaxDuration),
		master.WithTimerPeriod(cfg.TimerPeriod),
		master.WithSink(sinks),
		master.WithLogger(logger),
	)

	ctx, cancel := context.WithCancelCause(parentCtx)
	defer cancel(nil)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel(master.ErrInterrupted)
		case <-ctx.Done():
		}
	}()

	result, runErr := m.Run(ctx)

	if st != nil {
		if err := st.FinishRun(context.WithoutCancel(parentCtx), runID, store.RunSummary{
			StopReason:   result.Reason.String(),
			TotalSpawned: result.TotalSpawned,
			Completions:  result.Completions,
			FinalClock:   result.FinalClock,
			FinishedAt:   time.Now(),
		}); err != nil {
			logger.Error("error finishing run record", "error", err)
		}
	}

	if runErr != nil {
		return fail(formatter, CodeSimulation, ExitFailure, "simulation failed", runErr)
	}

	summary := RunSummary{
		RunID:        runID,
		Reason:       result.Reason.String(),
		Message:      result.Reason.Message(),
		TotalSpawned: result.TotalSpawned,
		Completions:  result.Completions,
		Live:         result.Live,
		FinalClock:   result.FinalClock,
		ElapsedMS:    result.Elapsed.Milliseconds(),
		LogPath:      cfg.LogPath,
	}
	if formatter.JSON() {
		return formatter.Success(summary)
	}
	return printSummary(cmd, summary)
}

func printSummary(cmd *cobra.Command, s RunSummary) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out, s.Message); err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	_, err := p.Fprintf(out, "%d processes spawned, %d completed, %d live at %s (%d ms)\n",
		s.TotalSpawned, s.Completions, s.Live, s.FinalClock, s.ElapsedMS)
	return err
}

// fail builds the exit error. In JSON mode the error is also written as a
// response so stdout stays parseable.
func fail(f *OutputFormatter, code string, exit int, msg string, err error) error {
	exitErr := WrapExitError(exit, msg, err)
	if f.JSON() {
		_ = f.Error(code, exitErr.Error())
	}
	return exitErr
}
