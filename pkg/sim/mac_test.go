package sim

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/lorawan"
	"github.com/loranode/loranode-go/pkg/persistence"
	"github.com/loranode/loranode-go/pkg/version"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []*log.FrameEvent
	dirs   []log.Direction
}

func (r *frameRecorder) Log(e log.Event) {
	if e.Frame == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, e.Frame)
	r.dirs = append(r.dirs, e.Direction)
}

func newTestMAC(t *testing.T, net *Network, modify func(*MACConfig)) (*MAC, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := MACConfig{Network: net, Clock: clk, Seed: 3}
	if modify != nil {
		modify(&cfg)
	}
	mac, err := NewMAC(cfg)
	require.NoError(t, err)
	return mac, clk
}

func TestNewMACValidation(t *testing.T) {
	_, err := NewMAC(MACConfig{})
	assert.ErrorIs(t, err, ErrNoNetwork)

	_, err = NewMAC(MACConfig{Network: NewNetwork(NetworkConfig{}), SpreadingFactor: 13})
	assert.Error(t, err)
}

func TestMACJoinAndSend(t *testing.T) {
	net := NewNetwork(NetworkConfig{NetID: [3]byte{0x13}, Seed: 1})
	net.Provision(testCreds, true)

	rec := &frameRecorder{}
	mac, clk := newTestMAC(t, net, func(c *MACConfig) { c.Events = rec })

	err := mac.Send(context.Background(), []byte("early"), 1, false)
	assert.ErrorIs(t, err, ErrNotJoined)

	resp, err := mac.Join(context.Background(), testCreds)
	require.NoError(t, err)
	require.Equal(t, lorawan.JoinSuccess, resp)
	assert.Equal(t, []time.Duration{5 * time.Second}, clk.Sleeps())

	devAddr, ok := mac.DevAddr()
	require.True(t, ok)
	netAddr, _, _ := net.Session(testDevEUI)
	assert.Equal(t, netAddr, devAddr)

	for i := 0; i < 3; i++ {
		require.NoError(t, mac.Send(context.Background(), []byte("Hello from nRF52840!"), 1, false))
	}

	ups := net.Uplinks(testDevEUI)
	require.Len(t, ups, 3)
	for i, up := range ups {
		assert.Equal(t, uint32(i), up.FCnt)
		assert.Equal(t, []byte("Hello from nRF52840!"), up.Payload)
		assert.Equal(t, uint8(1), up.Port)
		assert.False(t, up.Confirmed)
	}

	stats := mac.Stats()
	assert.Equal(t, uint64(1), stats.JoinRequests)
	assert.Equal(t, uint64(3), stats.Uplinks)
	assert.Positive(t, stats.Airtime)

	// JoinRequest up, JoinAccept down, three uplinks.
	require.Len(t, rec.frames, 5)
	assert.Equal(t, MTypeJoinRequest, rec.frames[0].MType)
	assert.Equal(t, log.DirectionUp, rec.dirs[0])
	assert.Equal(t, MTypeJoinAccept, rec.frames[1].MType)
	assert.Equal(t, log.DirectionDown, rec.dirs[1])
	assert.Equal(t, MTypeUnconfirmedUp, rec.frames[2].MType)
	assert.Equal(t, JoinRequestSize, rec.frames[0].Size)
}

func TestMACJoinOutcomes(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		net := NewNetwork(NetworkConfig{RejectProbability: 1, Seed: 1})
		net.Provision(testCreds, true)
		mac, clk := newTestMAC(t, net, nil)

		resp, err := mac.Join(context.Background(), testCreds)
		require.NoError(t, err)
		assert.Equal(t, lorawan.JoinRejected, resp)
		assert.Equal(t, []time.Duration{5 * time.Second}, clk.Sleeps())
		_, ok := mac.DevAddr()
		assert.False(t, ok)
	})

	t.Run("no accept waits both windows", func(t *testing.T) {
		net := NewNetwork(NetworkConfig{NoAcceptProbability: 1, Seed: 1})
		net.Provision(testCreds, true)
		mac, clk := newTestMAC(t, net, nil)

		resp, err := mac.Join(context.Background(), testCreds)
		require.NoError(t, err)
		assert.Equal(t, lorawan.NoJoinAccept, resp)
		assert.Equal(t, []time.Duration{6 * time.Second}, clk.Sleeps())
	})

	t.Run("transport failure", func(t *testing.T) {
		net := NewNetwork(NetworkConfig{Seed: 1})
		net.Provision(testCreds, true)
		mac, clk := newTestMAC(t, net, func(c *MACConfig) { c.TxFailureProbability = 1 })

		_, err := mac.Join(context.Background(), testCreds)
		assert.ErrorIs(t, err, lorawan.ErrTransport)
		assert.Empty(t, clk.Sleeps())
		assert.Equal(t, uint64(1), mac.Stats().TxFailures)
		assert.Zero(t, mac.Stats().JoinRequests)
	})

	t.Run("cancelled in receive window", func(t *testing.T) {
		net := NewNetwork(NetworkConfig{Seed: 1})
		net.Provision(testCreds, true)
		mac, clk := newTestMAC(t, net, nil)

		ctx, cancel := context.WithCancel(context.Background())
		clk.OnSleep(func(time.Duration) { cancel() })

		_, err := mac.Join(ctx, testCreds)
		assert.ErrorIs(t, err, context.Canceled)
		_, ok := mac.DevAddr()
		assert.False(t, ok)
	})
}

func TestMACCounterDevNoncePersisted(t *testing.T) {
	net := NewNetwork(NetworkConfig{Seed: 1})
	net.Provision(testCreds, true)

	store := persistence.NewDeviceStateStore(filepath.Join(t.TempDir(), "state.json"))

	for run := 0; run < 3; run++ {
		state, err := store.LoadFor(testDevEUI.String())
		require.NoError(t, err)

		mac, _ := newTestMAC(t, net, func(c *MACConfig) {
			c.State = state
			c.Store = store
		})

		resp, err := mac.Join(context.Background(), testCreds)
		require.NoError(t, err)
		assert.Equal(t, lorawan.JoinSuccess, resp, "run %d", run)
		require.NoError(t, mac.Send(context.Background(), []byte{byte(run)}, 1, true))
	}

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), saved.DevNonce)
	assert.Equal(t, version.Current, saved.MACVersion)
	assert.True(t, saved.Joined())
	assert.Equal(t, uint32(1), saved.FCntUp)
}

func TestMACLostStateReusesNonce(t *testing.T) {
	net := NewNetwork(NetworkConfig{Seed: 1})
	net.Provision(testCreds, true)

	first, _ := newTestMAC(t, net, nil)
	resp, err := first.Join(context.Background(), testCreds)
	require.NoError(t, err)
	require.Equal(t, lorawan.JoinSuccess, resp)

	// A fresh state restarts the counter at zero, which the network refuses.
	second, _ := newTestMAC(t, net, nil)
	resp, err = second.Join(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, lorawan.JoinRejected, resp)
}

func TestMACRandomDevNonce(t *testing.T) {
	profile, err := version.LoadProfile("1.0.3")
	require.NoError(t, err)

	net := NewNetwork(NetworkConfig{Seed: 1})
	net.Provision(testCreds, false)

	mac, _ := newTestMAC(t, net, func(c *MACConfig) { c.Profile = profile })
	for i := 0; i < 5; i++ {
		resp, err := mac.Join(context.Background(), testCreds)
		require.NoError(t, err)
		assert.Equal(t, lorawan.JoinSuccess, resp)
	}
}

func TestMACConfirmedUplinkNotAcked(t *testing.T) {
	net := NewNetwork(NetworkConfig{Seed: 1})
	net.Provision(testCreds, true)
	mac, _ := newTestMAC(t, net, nil)

	_, err := mac.Join(context.Background(), testCreds)
	require.NoError(t, err)

	// A rejoin on the network side invalidates the device's session.
	_, err = net.HandleJoinRequest(joinFrame(100))
	require.NoError(t, err)

	err = mac.Send(context.Background(), []byte("x"), 1, true)
	assert.ErrorIs(t, err, ErrNoAck)

	// Unconfirmed uplinks do not learn about the loss.
	assert.NoError(t, mac.Send(context.Background(), []byte("x"), 1, false))
}

func TestMACDutyCycle(t *testing.T) {
	net := NewNetwork(NetworkConfig{Seed: 1})
	net.Provision(testCreds, true)

	clk := clock.NewFake(time.Unix(0, 0))
	mac, err := NewMAC(MACConfig{
		Network:   net,
		Clock:     clk,
		DutyCycle: NewDutyCycle(0.01, 10*time.Second, clk),
		Seed:      3,
	})
	require.NoError(t, err)

	_, err = mac.Join(context.Background(), testCreds)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, mac.Send(context.Background(), make([]byte, 20), 1, false))
	}
	assert.Positive(t, mac.Stats().DutyCycleWait)
}

func TestMACUpdateState(t *testing.T) {
	store := persistence.NewDeviceStateStore(filepath.Join(t.TempDir(), "state.json"))
	net := NewNetwork(NetworkConfig{Seed: 1})
	mac, _ := newTestMAC(t, net, func(c *MACConfig) {
		c.Store = store
		c.State = &persistence.DeviceState{DevEUI: testDevEUI.String()}
	})

	mac.UpdateState(func(s *persistence.DeviceState) {
		s.Session = &persistence.SessionState{Attempts: 3}
	})

	saved, err := store.Load()
	require.NoError(t, err)
	require.True(t, saved.Joined())
	assert.Equal(t, uint32(3), saved.Session.Attempts)
}
