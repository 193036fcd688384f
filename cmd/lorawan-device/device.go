package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loranode/loranode-go/pkg/backoff"
	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/config"
	"github.com/loranode/loranode-go/pkg/join"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/metrics"
	"github.com/loranode/loranode-go/pkg/node"
	"github.com/loranode/loranode-go/pkg/persistence"
	"github.com/loranode/loranode-go/pkg/sim"
	"github.com/loranode/loranode-go/pkg/telemetry"
	"github.com/loranode/loranode-go/pkg/uplink"
	"github.com/loranode/loranode-go/pkg/version"
)

// dutyCycleWindow is the averaging window of the duty-cycle limiter.
const dutyCycleWindow = time.Hour

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// device is a fully wired node with its simulated network and outputs.
type device struct {
	cfg     *config.Config
	logger  *slog.Logger
	clock   clock.Clock
	profile *version.Profile

	network *sim.Network
	mac     *sim.MAC
	node    *node.Node
	sensor  *telemetry.SimulatedSensor
	store   *persistence.DeviceStateStore

	fileLog *log.FileLogger
	session *log.Session
	metrics *metrics.Metrics
	server  *metrics.Server
	radio   *radioMeter
}

// buildDevice assembles the node from cfg. A nil clk uses the wall clock.
func buildDevice(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*device, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	profile, err := version.LoadProfile(cfg.Device.MACVersion)
	if err != nil {
		return nil, err
	}

	d := &device{
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		profile: profile,
		metrics: metrics.New(true),
	}

	// Event sinks: the CBOR file when configured, and debug-level slog.
	sinks := []log.Logger{log.NewSlogAdapter(logger.With("component", "events"))}
	if cfg.Storage.ProtocolLog != "" {
		d.fileLog, err = log.NewFileLogger(cfg.Storage.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create protocol logger: %w", err)
		}
		sinks = append(sinks, d.fileLog)
	}
	d.session = log.NewSession(log.NewMultiLogger(sinks...), creds.DevEUI.String())

	state, err := d.loadState(creds.DevEUI.String())
	if err != nil {
		d.close()
		return nil, err
	}

	netID, err := cfg.Sim.NetIDBytes()
	if err != nil {
		d.close()
		return nil, err
	}
	d.network = sim.NewNetwork(sim.NetworkConfig{
		NetID:               netID,
		RejectProbability:   cfg.Sim.RejectProbability,
		NoAcceptProbability: cfg.Sim.NoAcceptProbability,
		Seed:                cfg.Sim.Seed,
	})
	d.network.Provision(creds, profile.DevNonce == version.DevNonceCounter)

	d.mac, err = sim.NewMAC(sim.MACConfig{
		Network:              d.network,
		Profile:              profile,
		State:                state,
		Store:                d.store,
		Clock:                clk,
		DutyCycle:            sim.NewDutyCycle(cfg.Sim.DutyCycle, dutyCycleWindow, clk),
		SpreadingFactor:      cfg.Sim.SpreadingFactor,
		TxFailureProbability: cfg.Sim.TxFailureProbability,
		Seed:                 cfg.Sim.Seed,
		Logger:               logger.With("component", "mac"),
		Events:               d.session,
	})
	if err != nil {
		d.close()
		return nil, err
	}
	d.radio = &radioMeter{mac: d.mac, metrics: d.metrics}

	source, err := d.payloadSource()
	if err != nil {
		d.close()
		return nil, err
	}

	var gen *backoff.Generator
	if cfg.Sim.Seed != 0 {
		gen = backoff.NewGenerator(backoff.NewSource(cfg.Sim.Seed))
	}

	d.node, err = node.New(node.Config{
		Credentials: creds,
		MAC:         d.mac,
		Source:      source,
		Uplink:      cfg.UplinkConfig(),
		Clock:       clk,
		Backoff:     gen,
		Logger:      logger,
		Events:      d.session,
		Metrics:     d.metrics,
		Hooks: node.Hooks{
			OnJoinAttempt: func(join.Attempt) { d.radio.sample() },
			OnJoined:      d.recordJoin,
			OnTick:        func(uplink.Result) { d.radio.sample() },
		},
	})
	if err != nil {
		d.close()
		return nil, err
	}

	if cfg.Metrics.Listen != "" {
		d.server = metrics.NewServer(cfg.Metrics.Listen, d.metrics, logger.With("component", "metrics"))
	}
	return d, nil
}

// loadState restores the DevNonce and frame counters. Sessions never
// survive a restart; the previous one is only reported.
func (d *device) loadState(devEUI string) (*persistence.DeviceState, error) {
	if d.cfg.Storage.StateFile == "" {
		return &persistence.DeviceState{Version: persistence.StateVersion, DevEUI: devEUI}, nil
	}
	d.store = persistence.NewDeviceStateStore(d.cfg.Storage.StateFile)
	state, err := d.store.LoadFor(devEUI)
	if err != nil {
		return nil, err
	}
	if s := state.Session; s != nil {
		d.logger.Info("Previous session found",
			"joined_at", s.JoinedAt,
			"attempts", s.Attempts,
			"dev_addr", s.DevAddr)
		state.Session = nil
	}
	if state.DevNonceUsed {
		d.logger.Info("Restored device state",
			"path", d.store.Path(),
			"dev_nonce", state.DevNonce,
			"fcnt_up", state.FCntUp)
	}
	return state, nil
}

func (d *device) payloadSource() (uplink.PayloadSource, error) {
	switch d.cfg.Uplink.Source {
	case config.SourceTelemetry:
		d.sensor = telemetry.NewSimulatedSensor(21, 45, d.cfg.Sim.Seed)
		return telemetry.NewSource(d.sensor)
	default:
		return uplink.StaticPayload(d.cfg.Uplink.Payload), nil
	}
}

// recordJoin stores how the join went alongside the session.
func (d *device) recordJoin(a join.Attempt) {
	d.radio.sample()
	d.mac.UpdateState(func(s *persistence.DeviceState) {
		if s.Session == nil {
			return
		}
		s.Session.Attempts = a.Number
		s.Session.RetriesAtJoin = a.Retries
	})
}

// run starts the metrics server and the node and blocks until ctx is done
// or the node fails.
func (d *device) run(ctx context.Context) error {
	if d.server != nil {
		if err := d.server.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := d.node.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if d.server != nil {
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return d.server.Stop(stopCtx)
		})
	}
	return g.Wait()
}

// close flushes and closes the event log.
func (d *device) close() {
	if d.fileLog != nil {
		if err := d.fileLog.Close(); err != nil {
			d.logger.Warn("Failed to close protocol log", "error", err)
		}
	}
}

// radioMeter feeds MAC counter deltas into the metrics.
type radioMeter struct {
	mu      sync.Mutex
	mac     *sim.MAC
	metrics *metrics.Metrics
	last    sim.MACStats
}

func (r *radioMeter) sample() {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.mac.Stats()
	r.metrics.AddRadio(s.Airtime-r.last.Airtime, s.DutyCycleWait-r.last.DutyCycleWait)
	r.last = s
}
