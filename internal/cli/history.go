package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/statusnotify/internal/events"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show notification history",
	Long: `Show the notification history written by 'statusnotify run --events'.

Example:
  statusnotify history --file .statusnotify/events.jsonl
  statusnotify history --type failed --since 24h
  statusnotify history --last`,
	Args: cobra.NoArgs,
	RunE: showHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	addHistoryFlags(historyCmd)
}

func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().String("file", "", "History file (default: state.events_path)")
	cmd.Flags().String("issue", "", "Only show events for this issue node ID")
	cmd.Flags().StringSlice("type", nil, "Only show these event types (sent, dry_run, skipped, failed)")
	cmd.Flags().Int("tail", 50, "Number of events to show from the end (0 for all)")
	cmd.Flags().String("since", "", "Show events since timestamp (e.g., 2024-01-01T00:00:00Z) or duration (e.g., 24h)")
	cmd.Flags().Bool("last", false, "Show the last successful notification per issue")
}

func showHistory(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = viper.GetString("state.events_path")
	}
	if path == "" {
		return fmt.Errorf("no history file: pass --file or set state.events_path")
	}

	all, err := events.ReadEvents(path)
	if err != nil {
		return err
	}

	issueID, _ := cmd.Flags().GetString("issue")
	typeNames, _ := cmd.Flags().GetStringSlice("type")
	tail, _ := cmd.Flags().GetInt("tail")
	sinceStr, _ := cmd.Flags().GetString("since")
	last, _ := cmd.Flags().GetBool("last")

	types := make([]events.EventType, 0, len(typeNames))
	for _, name := range typeNames {
		if !events.IsValidEventType(name) {
			return fmt.Errorf("invalid --type value: %s", name)
		}
		types = append(types, events.EventType(name))
	}

	since, err := parseSince(sinceStr, time.Now())
	if err != nil {
		return err
	}

	selected := events.FilterByType(events.FilterByIssue(all, issueID), types...)
	selected = filterSince(selected, since)

	out := cmd.OutOrStdout()
	if last {
		return writeLastNotified(out, events.LastNotified(selected))
	}

	if tail > 0 && len(selected) > tail {
		selected = selected[len(selected)-tail:]
	}
	if len(selected) == 0 {
		fmt.Fprintln(out, "No events")
		return nil
	}
	return writeEvents(out, selected)
}

// parseSince accepts a duration back from now or an RFC 3339 timestamp.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if dur, err := time.ParseDuration(s); err == nil {
		return now.Add(-dur), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since value: %s", s)
	}
	return t, nil
}

func filterSince(evs []events.Event, since time.Time) []events.Event {
	if since.IsZero() {
		return evs
	}
	var filtered []events.Event
	for _, ev := range evs {
		if !ev.Timestamp.Before(since) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

func writeEvents(w io.Writer, evs []events.Event) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tISSUE\tOUTCOME\tTITLE")
	for _, ev := range evs {
		ref := ev.IssueID
		if ev.Repository != "" && ev.Number > 0 {
			ref = fmt.Sprintf("%s#%d", ev.Repository, ev.Number)
		}
		outcome := ev.Outcome
		if ev.Error != "" {
			outcome = ev.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.Local().Format(time.RFC3339), ev.Type, ref, outcome, ev.Title)
	}
	return tw.Flush()
}

func writeLastNotified(w io.Writer, last map[string]time.Time) error {
	if len(last) == 0 {
		fmt.Fprintln(w, "No notifications sent")
		return nil
	}
	ids := make([]string, 0, len(last))
	for id := range last {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ISSUE\tLAST NOTIFIED")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%s\n", id, last[id].Local().Format(time.RFC3339))
	}
	return tw.Flush()
}
