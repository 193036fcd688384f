package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/lorawan"
	"github.com/loranode/loranode-go/pkg/persistence"
	"github.com/loranode/loranode-go/pkg/version"
)

// MAC errors.
var (
	ErrNoNetwork = errors.New("sim: network is required")
	ErrNotJoined = errors.New("sim: not joined")
	ErrNoAck     = errors.New("sim: confirmed uplink not acknowledged")
)

// DefaultSpreadingFactor is used when MACConfig.SpreadingFactor is zero.
const DefaultSpreadingFactor = 7

// maxFrameLogBytes bounds the frame bytes copied into events.
const maxFrameLogBytes = 64

// MACConfig configures a simulated MAC.
type MACConfig struct {
	// Network answers join requests and uplinks. Required.
	Network *Network

	// Profile selects DevNonce handling and receive window delays.
	// Defaults to the current MAC version profile.
	Profile *version.Profile

	// State holds the DevNonce and frame counters. Defaults to a fresh state.
	State *persistence.DeviceState

	// Store persists State after every change when set.
	Store *persistence.DeviceStateStore

	// Clock is used for receive windows and duty-cycle waits.
	Clock clock.Clock

	// DutyCycle limits transmissions when set.
	DutyCycle *DutyCycle

	// SpreadingFactor is used for airtime calculation (7..12).
	SpreadingFactor int

	// TxFailureProbability is the chance the radio fails to transmit.
	TxFailureProbability float64

	// Seed seeds failure draws and random DevNonces. Zero uses the time.
	Seed uint64

	// Logger receives diagnostics.
	Logger *slog.Logger

	// Events receives raw frame events.
	Events log.Logger
}

// MACStats are cumulative radio counters.
type MACStats struct {
	JoinRequests  uint64
	Uplinks       uint64
	TxFailures    uint64
	DutyCycleWait time.Duration
	Airtime       time.Duration
}

type macSession struct {
	devAddr uint32
	keys    SessionKeys
}

// MAC is a lorawan.MAC backed by a simulated Network.
// Join and Send are serialized; the accessors never wait on the radio.
type MAC struct {
	opMu sync.Mutex

	mu      sync.Mutex
	config  MACConfig
	rng     *rand.Rand
	state   *persistence.DeviceState
	session *macSession
	stats   MACStats
	logger  *slog.Logger
	events  log.Logger
}

// NewMAC creates a simulated MAC.
func NewMAC(config MACConfig) (*MAC, error) {
	if config.Network == nil {
		return nil, ErrNoNetwork
	}
	if config.Profile == nil {
		p, err := version.LoadCurrentProfile()
		if err != nil {
			return nil, err
		}
		config.Profile = p
	}
	if config.State == nil {
		config.State = &persistence.DeviceState{Version: persistence.StateVersion}
	}
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}
	if config.DutyCycle == nil {
		config.DutyCycle = NewDutyCycle(0, 0, config.Clock)
	}
	if config.SpreadingFactor == 0 {
		config.SpreadingFactor = DefaultSpreadingFactor
	}
	if config.SpreadingFactor < 7 || config.SpreadingFactor > 12 {
		return nil, fmt.Errorf("sim: spreading factor %d outside 7..12", config.SpreadingFactor)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Events == nil {
		config.Events = log.NoopLogger{}
	}

	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	config.State.MACVersion = config.Profile.Version

	return &MAC{
		config: config,
		rng:    rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)),
		state:  config.State,
		logger: config.Logger,
		events: config.Events,
	}, nil
}

// Join sends one JoinRequest and waits through the receive windows.
func (m *MAC) Join(ctx context.Context, creds lorawan.Credentials) (lorawan.JoinResponse, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.txFails() {
		return lorawan.NoJoinAccept, fmt.Errorf("%w: radio failed to transmit join request", lorawan.ErrTransport)
	}

	devNonce, err := m.nextDevNonce()
	if err != nil {
		return lorawan.NoJoinAccept, fmt.Errorf("%w: %w", lorawan.ErrTransport, err)
	}

	frame := MarshalJoinRequest(JoinRequest{
		JoinEUI:  creds.JoinEUI,
		DevEUI:   creds.DevEUI,
		DevNonce: devNonce,
	}, creds.AppKey)

	if err := m.transmit(ctx, frame); err != nil {
		return lorawan.NoJoinAccept, err
	}
	m.mu.Lock()
	m.stats.JoinRequests++
	m.mu.Unlock()

	res, err := m.config.Network.HandleJoinRequest(frame)
	if err != nil {
		return lorawan.NoJoinAccept, fmt.Errorf("%w: %w", lorawan.ErrTransport, err)
	}

	rx := m.config.Profile.JoinAccept
	switch res.Response {
	case lorawan.JoinSuccess:
		if err := m.config.Clock.Sleep(ctx, rx.Delay1()); err != nil {
			return lorawan.NoJoinAccept, err
		}
		m.logFrame(log.DirectionDown, res.Frame)

		ja, err := ParseJoinAccept(res.Frame, creds.AppKey)
		if err != nil {
			m.logger.Warn("Discarding invalid join accept", "error", err)
			return lorawan.NoJoinAccept, nil
		}

		m.mu.Lock()
		m.session = &macSession{
			devAddr: ja.DevAddr,
			keys:    deriveSessionKeys(creds.AppKey, ja.AppNonce, ja.NetID, devNonce),
		}
		m.state.FCntUp = 0
		m.state.Session = &persistence.SessionState{
			JoinedAt: m.config.Clock.Now(),
			DevAddr:  fmt.Sprintf("%08X", ja.DevAddr),
		}
		m.persist()
		m.mu.Unlock()

		m.logger.Debug("Join accept received", "dev_addr", fmt.Sprintf("%08X", ja.DevAddr), "dev_nonce", devNonce)
		return lorawan.JoinSuccess, nil

	case lorawan.JoinRejected:
		m.logger.Debug("Join request rejected", "dev_nonce", devNonce, "reason", res.Reason)
		if err := m.config.Clock.Sleep(ctx, rx.Delay1()); err != nil {
			return lorawan.NoJoinAccept, err
		}
		return lorawan.JoinRejected, nil

	default:
		// Nothing arrives in either window.
		if err := m.config.Clock.Sleep(ctx, rx.Delay2()); err != nil {
			return lorawan.NoJoinAccept, err
		}
		return lorawan.NoJoinAccept, nil
	}
}

// Send transmits one uplink. Unconfirmed uplinks report success once on the
// air; confirmed uplinks fail with ErrNoAck if the network does not accept
// the frame.
func (m *MAC) Send(ctx context.Context, payload []byte, port uint8, confirmed bool) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return ErrNotJoined
	}
	if m.txFails() {
		return fmt.Errorf("%w: radio failed to transmit uplink", lorawan.ErrTransport)
	}

	m.mu.Lock()
	fcnt := m.state.NextFCntUp()
	m.persist()
	m.mu.Unlock()

	frame := MarshalDataUp(DataUp{
		DevAddr:   session.devAddr,
		FCnt:      fcnt,
		Port:      port,
		Confirmed: confirmed,
		Payload:   payload,
	}, session.keys)

	if err := m.transmit(ctx, frame); err != nil {
		return err
	}
	m.mu.Lock()
	m.stats.Uplinks++
	m.mu.Unlock()

	if _, err := m.config.Network.HandleUplink(frame); err != nil {
		m.logger.Debug("Network dropped uplink", "fcnt", fcnt, "error", err)
		if confirmed {
			return fmt.Errorf("%w: %w", ErrNoAck, err)
		}
	}
	return nil
}

// Stats returns a snapshot of the radio counters.
func (m *MAC) Stats() MACStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// DevAddr returns the current device address, if joined.
func (m *MAC) DevAddr() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return 0, false
	}
	return m.session.devAddr, true
}

// UpdateState applies fn to the device state under the MAC lock and
// persists the result.
func (m *MAC) UpdateState(fn func(*persistence.DeviceState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
	m.persist()
}

func (m *MAC) nextDevNonce() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Profile.DevNonce == version.DevNonceRandom {
		return uint16(m.rng.Uint32()), nil
	}

	nonce, err := m.state.NextDevNonce()
	if err != nil {
		return 0, err
	}
	// A counter DevNonce must be on disk before it goes on the air.
	if m.config.Store != nil {
		if err := m.config.Store.Save(m.state); err != nil {
			return 0, fmt.Errorf("persist DevNonce: %w", err)
		}
	}
	return nonce, nil
}

func (m *MAC) transmit(ctx context.Context, frame []byte) error {
	airtime := Airtime(m.config.SpreadingFactor, len(frame))
	waited, err := m.config.DutyCycle.Wait(ctx, airtime)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", lorawan.ErrTransport, err)
	}
	if waited > 0 {
		m.logger.Debug("Duty cycle wait", "waited", waited, "airtime", airtime)
	}

	m.mu.Lock()
	m.stats.DutyCycleWait += waited
	m.stats.Airtime += airtime
	m.mu.Unlock()

	m.logFrame(log.DirectionUp, frame)
	return nil
}

func (m *MAC) txFails() bool {
	if m.config.TxFailureProbability <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng.Float64() < m.config.TxFailureProbability {
		m.stats.TxFailures++
		return true
	}
	return false
}

// persist saves the state. Callers hold mu.
func (m *MAC) persist() {
	if m.config.Store == nil {
		return
	}
	if err := m.config.Store.Save(m.state); err != nil {
		m.logger.Warn("Failed to save device state", "path", m.config.Store.Path(), "error", err)
	}
}

func (m *MAC) logFrame(dir log.Direction, frame []byte) {
	data := frame
	truncated := false
	if len(data) > maxFrameLogBytes {
		data = data[:maxFrameLogBytes]
		truncated = true
	}
	m.events.Log(log.Event{
		Direction: dir,
		Category:  log.CategoryFrame,
		Frame: &log.FrameEvent{
			MType:     MType(frame),
			Size:      len(frame),
			Data:      append([]byte(nil), data...),
			Truncated: truncated,
		},
	})
}

// Compile-time interface satisfaction check.
var _ lorawan.MAC = (*MAC)(nil)
