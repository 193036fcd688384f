package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/loranode/loranode-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	JoinOutcomes      map[string]int
	Sessions          map[string]*SessionStats
	Backoff           struct {
		Count int
		Total time.Duration
		Max   time.Duration
	}
	Uplinks struct {
		Sent   int
		Failed int
		Bytes  int
	}
	Errors    int
	TimeRange struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single node run.
type SessionStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	DevEUI       string
	JoinAttempts int
	JoinedAt     time.Time
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := collectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		JoinOutcomes:      make(map[string]int),
		Sessions:          make(map[string]*SessionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		sess, ok := stats.Sessions[event.SessionID]
		if !ok {
			sess = &SessionStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
			}
			stats.Sessions[event.SessionID] = sess
		}
		sess.Events++
		if event.Timestamp.After(sess.LastSeen) {
			sess.LastSeen = event.Timestamp
		}
		if event.DevEUI != "" && sess.DevEUI == "" {
			sess.DevEUI = event.DevEUI
		}

		switch {
		case event.Join != nil:
			outcome := event.Join.Response
			if outcome == "" {
				outcome = "TRANSPORT_ERROR"
			}
			stats.JoinOutcomes[outcome]++
			sess.JoinAttempts++
			if event.Join.Succeeded() && sess.JoinedAt.IsZero() {
				sess.JoinedAt = event.Timestamp
			}
		case event.Backoff != nil:
			stats.Backoff.Count++
			stats.Backoff.Total += event.Backoff.Delay
			if event.Backoff.Delay > stats.Backoff.Max {
				stats.Backoff.Max = event.Backoff.Delay
			}
		case event.Uplink != nil:
			if event.Uplink.Sent {
				stats.Uplinks.Sent++
				stats.Uplinks.Bytes += event.Uplink.Size
			} else {
				stats.Uplinks.Failed++
			}
		case event.Error != nil:
			stats.Errors++
		}
	}

	return stats, nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== LoRaWAN Node Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range log.Categories() {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionUp, log.DirectionDown, log.DirectionNone} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.JoinOutcomes) > 0 {
		outcomes := make([]string, 0, len(stats.JoinOutcomes))
		for o := range stats.JoinOutcomes {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		fmt.Fprintln(w, "Join Attempts:")
		for _, o := range outcomes {
			fmt.Fprintf(w, "  %-20s %d\n", o+":", stats.JoinOutcomes[o])
		}
		fmt.Fprintln(w)
	}

	if stats.Backoff.Count > 0 {
		avg := stats.Backoff.Total / time.Duration(stats.Backoff.Count)
		fmt.Fprintf(w, "Backoff: %d waits, total %s, avg %s, max %s\n",
			stats.Backoff.Count, stats.Backoff.Total, avg.Round(time.Millisecond), stats.Backoff.Max)
		fmt.Fprintln(w)
	}

	if stats.Uplinks.Sent+stats.Uplinks.Failed > 0 {
		fmt.Fprintf(w, "Uplinks: %d sent (%d bytes), %d failed\n",
			stats.Uplinks.Sent, stats.Uplinks.Bytes, stats.Uplinks.Failed)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
			if s.stats.DevEUI != "" {
				fmt.Fprintf(w, "           DevEUI: %s\n", s.stats.DevEUI)
			}
			if s.stats.JoinAttempts > 0 {
				if s.stats.JoinedAt.IsZero() {
					fmt.Fprintf(w, "           Join: not joined after %d attempts\n", s.stats.JoinAttempts)
				} else {
					fmt.Fprintf(w, "           Join: joined after %d attempts, %s after start\n",
						s.stats.JoinAttempts, s.stats.JoinedAt.Sub(s.stats.FirstSeen).Round(time.Millisecond))
				}
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
