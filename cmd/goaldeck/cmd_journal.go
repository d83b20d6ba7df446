package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"goaldeck/internal/events"
	"goaldeck/internal/feed"
	"goaldeck/internal/logging"
	"goaldeck/internal/session"
	"goaldeck/internal/store"
)

var (
	journalSessionID string
	journalOutput    string
)

// journalCmd groups the event journal subcommands
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Manage the SQLite system event journal",
}

var journalImportCmd = &cobra.Command{
	Use:   "import [events.jsonl]",
	Short: "Append a recorded stream to the journal as one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalImport,
}

var journalReplayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "Rebuild a session from its journaled events and print the view",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalReplay,
}

var journalSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List journaled sessions",
	Args:  cobra.NoArgs,
	RunE:  runJournalSessions,
}

var journalExportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Write a journaled session back out as JSON Lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalExport,
}

func init() {
	journalImportCmd.Flags().StringVar(&journalSessionID, "session", "", "Session id (default: random)")
	journalImportCmd.Flags().BoolVar(&replayStrict, "strict", false, "Fail on malformed lines instead of skipping them")
	journalExportCmd.Flags().StringVarP(&journalOutput, "output", "o", "", "Output file (default: stdout)")

	journalCmd.AddCommand(journalImportCmd)
	journalCmd.AddCommand(journalReplayCmd)
	journalCmd.AddCommand(journalSessionsCmd)
	journalCmd.AddCommand(journalExportCmd)
}

// openWorkspaceJournal opens the journal configured for the workspace.
func openWorkspaceJournal() (*store.Journal, error) {
	ws, cfg, err := loadWorkspaceConfig()
	if err != nil {
		return nil, err
	}
	return store.OpenJournal(journalPath(ws, cfg))
}

func runJournalImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	evs, err := feed.ReadAll(ctx, args[0], feed.Options{Strict: replayStrict, Log: sessionLogger(logging.CategoryFeed)})
	if err != nil {
		return err
	}
	j, err := openWorkspaceJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	id := journalSessionID
	if id == "" {
		id = uuid.NewString()
	}
	for _, ev := range evs {
		if _, err := j.Append(ctx, id, ev); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d events into session %s\n", len(evs), id)
	return nil
}

func runJournalReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ws, cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	j, err := store.OpenJournal(journalPath(ws, cfg))
	if err != nil {
		return err
	}
	defer j.Close()

	s := session.New(cfg, session.Options{ID: args[0], Log: sessionLogger(logging.CategorySession)})
	n := 0
	err = j.Replay(ctx, args[0], func(r store.Record) error {
		n++
		_, err := s.HandleSystemEvent(ctx, r.Event)
		return err
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no journaled events for session %s", args[0])
	}

	goals, visible := nodeCount(s)
	fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d events (%d goals, %d visible nodes)\n\n", n, goals, visible)
	renderSession(cmd.OutOrStdout(), s)
	return nil
}

func runJournalSessions(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	j, err := openWorkspaceJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	sessions, err := j.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No journaled sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tEVENTS\tFIRST\tLAST")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.SessionID, s.Events,
			s.FirstAt.Format("2006-01-02 15:04:05"), s.LastAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	j, err := openWorkspaceJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	var evs []events.SystemEvent
	if err := j.Replay(ctx, args[0], func(r store.Record) error {
		evs = append(evs, r.Event)
		return nil
	}); err != nil {
		return err
	}

	if journalOutput == "" {
		return feed.Write(cmd.OutOrStdout(), evs...)
	}
	return exportFile(journalOutput, evs)
}

// exportFile writes evs to path and reports a failed close.
func exportFile(path string, evs []events.SystemEvent) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return feed.Write(f, evs...)
}
