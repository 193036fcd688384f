// Package commands implements the lorawan-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/loranode/loranode-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Direction *log.Direction
	Category  *log.Category
}

func (f ViewFilter) matches(event log.Event) bool {
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	return true
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session] DIRECTION CATEGORY Label
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [%s] %-4s %-7s %s\n",
		ts, shortenID(event.SessionID), event.Direction.String(), event.Category.String(), eventLabel(event))

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Join != nil:
		formatJoinDetails(w, event.Join)
	case event.Backoff != nil:
		formatBackoffDetails(w, event.Backoff)
	case event.Uplink != nil:
		formatUplinkDetails(w, event.Uplink)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventLabel names the payload carried by the event.
func eventLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return mtypeName(event.Frame.MType)
	case event.Join != nil:
		if event.Join.Response == "" {
			return "TRANSPORT_ERROR"
		}
		return event.Join.Response
	case event.Backoff != nil:
		return "Wait"
	case event.Uplink != nil:
		if event.Uplink.Sent {
			return "Sent"
		}
		return "Failed"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// mtypeName returns the LoRaWAN message type name for the MType bits of an
// MHDR.
func mtypeName(mtype uint8) string {
	switch mtype >> 5 {
	case 0:
		return "JoinRequest"
	case 1:
		return "JoinAccept"
	case 2:
		return "UnconfirmedDataUp"
	case 3:
		return "UnconfirmedDataDown"
	case 4:
		return "ConfirmedDataUp"
	case 5:
		return "ConfirmedDataDown"
	default:
		return fmt.Sprintf("MType(0x%02x)", mtype)
	}
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatJoinDetails(w io.Writer, join *log.JoinEvent) {
	fmt.Fprintf(w, "  Attempt: %d  Retries: %d\n", join.Attempt, join.Retries)
	if join.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(join.Duration))
	}
	if join.Detail != "" {
		fmt.Fprintf(w, "  Detail: %s\n", join.Detail)
	}
}

func formatBackoffDetails(w io.Writer, b *log.BackoffEvent) {
	fmt.Fprintf(w, "  Retries: %d\n", b.Retries)
	fmt.Fprintf(w, "  Delay: %s (base %ds, jitter %ds)\n", formatDuration(b.Delay), b.BaseSeconds, b.JitterSeconds)
}

func formatUplinkDetails(w io.Writer, u *log.UplinkEvent) {
	kind := "unconfirmed"
	if u.Confirmed {
		kind = "confirmed"
	}
	fmt.Fprintf(w, "  Tick: %d  Port: %d  (%s)\n", u.Tick, u.Port, kind)
	fmt.Fprintf(w, "  Size: %d bytes\n", u.Size)
	if len(u.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", hex.EncodeToString(u.Payload))
	}
	if u.Detail != "" {
		fmt.Fprintf(w, "  Detail: %s\n", u.Detail)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "up":
		return log.DirectionUp, nil
	case "down":
		return log.DirectionDown, nil
	case "none":
		return log.DirectionNone, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be up, down or none)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	for _, c := range log.Categories() {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid category: %s (must be join, backoff, uplink, state, frame or error)", s)
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if !filter.matches(event) {
			continue
		}
		formatEvent(output, event)
	}

	return nil
}
