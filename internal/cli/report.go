package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	RunID    string
	Events   bool
}

// Report is the JSON payload of the report command.
type Report struct {
	Run    store.Run           `json:"run"`
	Counts map[string]int      `json:"counts"`
	Events []store.EventRecord `json:"events,omitempty"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show a recorded run",
		Long: `Show a run recorded with "oss run --db".

Without --run the most recent run is shown.

Example:
  oss report --db runs.db
  oss report --db runs.db --run 0191f8a2-... --events
  oss report --db runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "list every recorded event")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	// Open would create an empty database; a missing file is a user error.
	if _, err := os.Stat(opts.Database); err != nil {
		return fail(formatter, CodeStore, ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return fail(formatter, CodeStore, ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		return fail(formatter, CodeStore, ExitCommandError, "no such run", err)
	}
	if err != nil {
		return fail(formatter, CodeStore, ExitFailure, "failed to read run", err)
	}

	events, err := st.ReadEvents(ctx, run.ID)
	if err != nil {
		return fail(formatter, CodeStore, ExitFailure, "failed to read events", err)
	}

	report := Report{Run: run, Counts: map[string]int{}}
	for _, ev := range events {
		report.Counts[string(ev.Kind)]++
	}
	if opts.Events {
		report.Events = events
	}

	if formatter.JSON() {
		return formatter.Success(report)
	}
	writeReport(cmd.OutOrStdout(), report)
	return nil
}

func writeReport(w io.Writer, r Report) {
	p := message.NewPrinter(language.English)
	run := r.Run

	p.Fprintf(w, "Run %s\n", run.ID)
	p.Fprintf(w, "  started:     %s\n", run.StartedAt.Format(time.RFC3339))
	if run.Status == store.RunFinished {
		p.Fprintf(w, "  status:      %s (%s)\n", run.Status, run.StopReason)
	} else {
		p.Fprintf(w, "  status:      %s\n", run.Status)
	}
	p.Fprintf(w, "  workers:     %d\n", run.Workers)
	p.Fprintf(w, "  limits:      clock %ds, spawn %d, wall %s\n", run.ClockLimit, run.SpawnLimit, run.MaxDuration)
	p.Fprintf(w, "  spawned:     %d\n", run.TotalSpawned)
	p.Fprintf(w, "  completed:   %d\n", run.Completions)
	p.Fprintf(w, "  final clock: %s\n", run.FinalClock)

	for _, kind := range []simlog.Kind{
		simlog.KindSpawn,
		simlog.KindCompletion,
		simlog.KindTokenReclaimed,
		simlog.KindWorkerCrashed,
	} {
		if n := r.Counts[string(kind)]; n > 0 {
			p.Fprintf(w, "  %-12s %d\n", string(kind)+":", n)
		}
	}

	if len(r.Events) == 0 {
		return
	}
	fmt.Fprintln(w, "Events:")
	for _, ev := range r.Events {
		switch ev.Kind {
		case simlog.KindCompletion:
			fmt.Fprintf(w, "  [%d] %s\n", ev.Seq, simlog.FormatCompletion(ev.Event()))
		case simlog.KindStop:
			fmt.Fprintf(w, "  [%d] stop at %s: %s\n", ev.Seq, ev.MasterClock, ev.Reason)
		default:
			fmt.Fprintf(w, "  [%d] %s worker=%d clock=%s spawned=%d live=%d\n",
				ev.Seq, ev.Kind, ev.Worker, ev.MasterClock, ev.TotalSpawned, ev.Live)
		}
	}
}
