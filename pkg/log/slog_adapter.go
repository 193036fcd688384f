package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as one structured record.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("category", event.Category.String()),
	}
	if event.DevEUI != "" {
		attrs = append(attrs, slog.String("dev_eui", event.DevEUI))
	}
	if event.Direction != DirectionNone {
		attrs = append(attrs, slog.String("direction", event.Direction.String()))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Uint64("mtype", uint64(event.Frame.MType)),
			slog.Int("frame_size", event.Frame.Size),
			slog.String("frame", hex.EncodeToString(event.Frame.Data)),
		)
	case event.Join != nil:
		attrs = append(attrs,
			slog.Uint64("attempt", uint64(event.Join.Attempt)),
			slog.Uint64("retries", uint64(event.Join.Retries)),
			slog.Duration("took", event.Join.Duration),
		)
		if event.Join.Response != "" {
			attrs = append(attrs, slog.String("response", event.Join.Response))
		}
		if event.Join.Detail != "" {
			attrs = append(attrs, slog.String("detail", event.Join.Detail))
		}
	case event.Backoff != nil:
		attrs = append(attrs,
			slog.Uint64("retries", uint64(event.Backoff.Retries)),
			slog.Duration("delay", event.Backoff.Delay),
			slog.Uint64("base_s", uint64(event.Backoff.BaseSeconds)),
			slog.Uint64("jitter_s", uint64(event.Backoff.JitterSeconds)),
		)
	case event.Uplink != nil:
		attrs = append(attrs,
			slog.Uint64("tick", event.Uplink.Tick),
			slog.Uint64("port", uint64(event.Uplink.Port)),
			slog.Bool("confirmed", event.Uplink.Confirmed),
			slog.Int("size", event.Uplink.Size),
			slog.Bool("sent", event.Uplink.Sent),
		)
		if event.Uplink.Detail != "" {
			attrs = append(attrs, slog.String("detail", event.Uplink.Detail))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "node event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
