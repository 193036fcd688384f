// Package node runs a LoRaWAN end-device: join the network, then send
// uplinks at a fixed interval, on a single goroutine.
package node

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loranode/loranode-go/pkg/backoff"
	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/join"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/lorawan"
	"github.com/loranode/loranode-go/pkg/metrics"
	"github.com/loranode/loranode-go/pkg/uplink"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("node: already running")

// Phase is the node lifecycle phase.
type Phase uint8

const (
	// PhaseIdle indicates Run has not been called.
	PhaseIdle Phase = iota

	// PhaseJoining indicates the join loop is running.
	PhaseJoining

	// PhaseUplinking indicates the device has joined and is sending uplinks.
	PhaseUplinking

	// PhaseStopped indicates Run has returned.
	PhaseStopped
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseJoining:
		return "JOINING"
	case PhaseUplinking:
		return "UPLINKING"
	case PhaseStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Hooks are optional callbacks into the node's progress. They run on the
// node goroutine.
type Hooks struct {
	OnJoinAttempt func(join.Attempt)
	OnJoined      func(join.Attempt)
	OnTick        func(uplink.Result)
}

// Config configures a Node.
type Config struct {
	Credentials lorawan.Credentials
	MAC         lorawan.MAC
	Source      uplink.PayloadSource
	Uplink      uplink.Config

	Clock   clock.Clock
	Backoff *backoff.Generator
	Logger  *slog.Logger
	Events  log.Logger
	Metrics *metrics.Metrics
	Hooks   Hooks
}

// Status is a point-in-time snapshot of the node.
type Status struct {
	DevEUI      lorawan.EUI64
	Phase       Phase
	JoinState   join.State
	Attempts    uint32
	Retries     uint32
	JoinedAt    time.Time
	LastAttempt string
	StartedAt   time.Time
	Uplink      uplink.Stats
	Interval    time.Duration
}

// Node sequences join and uplink.
type Node struct {
	mu        sync.RWMutex
	phase     Phase
	startedAt time.Time

	creds       lorawan.Credentials
	clock       clock.Clock
	logger      *slog.Logger
	events      log.Logger
	metrics     *metrics.Metrics
	hooks       Hooks
	source      *swappableSource
	coordinator *join.Coordinator
	scheduler   *uplink.Scheduler
}

// New builds a Node and its join coordinator and uplink scheduler.
func New(cfg Config) (*Node, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Events == nil {
		cfg.Events = log.NoopLogger{}
	}
	if cfg.Source == nil {
		cfg.Source = uplink.StaticPayload(uplink.DefaultGreeting)
	}

	coord, err := join.New(join.Config{
		Credentials: cfg.Credentials,
		MAC:         cfg.MAC,
		Clock:       cfg.Clock,
		Backoff:     cfg.Backoff,
		Logger:      cfg.Logger.With("component", "join"),
		Events:      cfg.Events,
	})
	if err != nil {
		return nil, err
	}

	source := &swappableSource{src: cfg.Source}
	sched, err := uplink.New(cfg.MAC, source, cfg.Uplink,
		uplink.WithClock(cfg.Clock),
		uplink.WithLogger(cfg.Logger.With("component", "uplink")),
		uplink.WithEvents(cfg.Events),
	)
	if err != nil {
		return nil, err
	}

	n := &Node{
		creds:       cfg.Credentials,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		hooks:       cfg.Hooks,
		source:      source,
		coordinator: coord,
		scheduler:   sched,
	}

	coord.OnAttempt(n.handleAttempt)
	coord.OnRetry(n.metrics.ObserveBackoff)
	sched.OnTick(n.handleTick)
	n.metrics.SetJoined(false)

	return n, nil
}

// Run joins the network and then sends uplinks until ctx is cancelled.
// It returns ctx.Err().
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.phase != PhaseIdle {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	n.startedAt = n.clock.Now()
	n.phase = PhaseJoining
	n.mu.Unlock()

	n.logger.Info("Starting LoRaWAN node", "dev_eui", n.creds.DevEUI, "join_eui", n.creds.JoinEUI)
	n.logPhase(PhaseIdle, PhaseJoining, "start")

	if err := n.coordinator.Run(ctx); err != nil {
		n.setPhase(PhaseStopped, err.Error())
		return err
	}

	last, _ := n.coordinator.LastAttempt()
	n.metrics.SetJoined(true)
	if n.hooks.OnJoined != nil {
		n.hooks.OnJoined(last)
	}

	n.setPhase(PhaseUplinking, "joined")
	err := n.scheduler.Run(ctx)
	n.setPhase(PhaseStopped, err.Error())
	return err
}

// Status returns a snapshot of the node.
func (n *Node) Status() Status {
	n.mu.RLock()
	phase, startedAt := n.phase, n.startedAt
	n.mu.RUnlock()

	st := Status{
		DevEUI:    n.creds.DevEUI,
		Phase:     phase,
		JoinState: n.coordinator.State(),
		Attempts:  n.coordinator.Attempts(),
		Retries:   n.coordinator.Retries(),
		JoinedAt:  n.coordinator.JoinedAt(),
		StartedAt: startedAt,
		Uplink:    n.scheduler.Stats(),
		Interval:  n.scheduler.Config().Interval,
	}
	if a, ok := n.coordinator.LastAttempt(); ok {
		st.LastAttempt = a.Outcome()
	}
	return st
}

// Phase returns the current lifecycle phase.
func (n *Node) Phase() Phase {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.phase
}

// SetPayloadSource replaces the uplink payload source from the next tick on.
func (n *Node) SetPayloadSource(src uplink.PayloadSource) {
	n.source.set(src)
}

func (n *Node) setPhase(p Phase, reason string) {
	n.mu.Lock()
	old := n.phase
	n.phase = p
	n.mu.Unlock()

	if old != p {
		n.logPhase(old, p, reason)
	}
}

func (n *Node) logPhase(old, p Phase, reason string) {
	n.logger.Debug("Node phase changed", "from", old, "to", p, "reason", reason)
	n.events.Log(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityNode,
			OldState: old.String(),
			NewState: p.String(),
			Reason:   reason,
		},
	})
}

func (n *Node) handleAttempt(a join.Attempt) {
	n.metrics.ObserveJoinAttempt(a.Outcome(), a.Retries, a.Duration)
	if n.hooks.OnJoinAttempt != nil {
		n.hooks.OnJoinAttempt(a)
	}
}

func (n *Node) handleTick(r uplink.Result) {
	result := metrics.ResultSent
	switch {
	case r.Dropped:
		result = metrics.ResultDropped
	case !r.Sent:
		result = metrics.ResultFailed
	}
	n.metrics.ObserveUplink(result, len(r.Message.Payload), r.At)
	if n.hooks.OnTick != nil {
		n.hooks.OnTick(r)
	}
}

// swappableSource lets the payload source change while the scheduler runs.
type swappableSource struct {
	mu  sync.RWMutex
	src uplink.PayloadSource
}

func (s *swappableSource) Payload(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	src := s.src
	s.mu.RUnlock()
	return src.Payload(ctx)
}

func (s *swappableSource) set(src uplink.PayloadSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = src
}
