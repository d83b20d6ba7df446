package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goaldeck/internal/config"
	"goaldeck/internal/events"
	"goaldeck/internal/feed"
	"goaldeck/internal/logging"
	"goaldeck/internal/metrics"
	"goaldeck/internal/session"
	"goaldeck/internal/store"
)

var (
	replaySessionID string
	replayStrict    bool
	replayRecord    bool
	replayMetrics   bool
	replaySearch    string
	replayFocus     string
)

// replayCmd rebuilds graph and UI state from a recorded stream
var replayCmd = &cobra.Command{
	Use:   "replay [events.jsonl]",
	Short: "Replay a recorded system event stream and print the resulting view",
	Long: `Applies every system event in the file, in order, to a fresh session and
prints the UI state, the visible goal tree and graph statistics.

With --record (or journal.enabled in config) the events are also appended to
the SQLite journal under the session id.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

// watchCmd follows a growing stream
var watchCmd = &cobra.Command{
	Use:   "watch [events.jsonl]",
	Short: "Follow a system event stream as it is written",
	Long: `Tails the file like 'tail -f', applying each event as it arrives and
printing one line per event. Stops on SIGINT/SIGTERM, the --timeout, or when
the file is removed, then prints the final view.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	for _, c := range []*cobra.Command{replayCmd, watchCmd} {
		c.Flags().StringVar(&replaySessionID, "session", "", "Session id (default: random)")
		c.Flags().BoolVar(&replayStrict, "strict", false, "Fail on malformed lines instead of skipping them")
		c.Flags().BoolVar(&replayRecord, "record", false, "Append events to the journal")
		c.Flags().BoolVar(&replayMetrics, "metrics", false, "Print session metrics after the view")
		c.Flags().StringVar(&replaySearch, "search", "", "Only show goals whose intent or category matches")
		c.Flags().StringVar(&replayFocus, "focus", "", "Select this node before printing")
	}
}

// replayRun holds what one replay or watch invocation opened.
type replayRun struct {
	session  *session.Session
	registry *prometheus.Registry
	journal  *store.Journal
}

func (r *replayRun) Close() {
	if r.journal != nil {
		if err := r.journal.Close(); err != nil && logger != nil {
			logger.Warn("Failed to close journal", zap.Error(err))
		}
	}
}

func newReplayRun(ws string, cfg *config.Config, onEvent func(events.SystemEvent, session.Outcome)) (*replayRun, error) {
	run := &replayRun{registry: prometheus.NewRegistry()}
	opts := session.Options{
		ID:            replaySessionID,
		Metrics:       metrics.New(run.registry),
		Log:           sessionLogger(logging.CategorySession),
		OnSystemEvent: onEvent,
	}
	if replayRecord || cfg.Journal.Enabled {
		j, err := store.OpenJournal(journalPath(ws, cfg))
		if err != nil {
			return nil, err
		}
		run.journal = j
		opts.Journal = j
	}
	run.session = session.New(cfg, opts)

	if replaySearch != "" {
		f := run.session.Graph().Filters()
		f.Search = replaySearch
		run.session.Graph().SetFilters(f)
	}
	return run, nil
}

// finish applies the --focus flag and prints the final view.
func (r *replayRun) finish(ctx context.Context, w io.Writer) error {
	if replayFocus != "" {
		n, ok := r.session.Graph().Node(replayFocus)
		if !ok {
			return fmt.Errorf("focus node %q not in graph", replayFocus)
		}
		if res, _ := r.session.Dispatch(ctx, events.NewSelectNode(n.NodeID(), n.Type())); res.Err != nil {
			return res.Err
		}
	}
	renderSession(w, r.session)
	if replayMetrics {
		fmt.Fprintln(w)
		return printMetrics(w, r.registry)
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ws, cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	run, err := newReplayRun(ws, cfg, nil)
	if err != nil {
		return err
	}
	defer run.Close()

	src, err := feed.Open(args[0], feed.Options{Strict: replayStrict, Log: sessionLogger(logging.CategoryFeed)})
	if err != nil {
		return err
	}
	defer src.Close()

	if err := run.session.Run(ctx, src); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	if n := src.Skipped(); n > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(fmt.Sprintf("skipped %d malformed line(s)", n)))
	}
	return run.finish(ctx, cmd.OutOrStdout())
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ws, cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	run, err := newReplayRun(ws, cfg, func(ev events.SystemEvent, o session.Outcome) {
		fmt.Fprintln(out, eventLine(ev, o))
	})
	if err != nil {
		return err
	}
	defer run.Close()

	src, err := feed.Open(args[0], feed.Options{
		Follow: true,
		Strict: replayStrict,
		Log:    sessionLogger(logging.CategoryFeed),
	})
	if err != nil {
		return err
	}
	defer src.Close()

	err = run.session.Run(ctx, src)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("watch failed: %w", err)
	}
	fmt.Fprintln(out)
	return run.finish(context.Background(), out)
}

// printMetrics writes every gathered sample as name{labels} value.
func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), v))
		}
	}
	sort.Strings(lines)
	fmt.Fprintln(w, titleStyle.Render("Metrics"))
	for _, l := range lines {
		fmt.Fprintln(w, "  "+l)
	}
	return nil
}

// nodeCount returns the total goal count and the visible node count.
func nodeCount(s *session.Session) (goals, visible int) {
	st := s.Graph().Stats()
	return st.Goals, len(s.Graph().FilteredNodes())
}
