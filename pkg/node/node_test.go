package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/loranode/loranode-go/pkg/backoff"
	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/join"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/lorawan"
	"github.com/loranode/loranode-go/pkg/lorawan/mocks"
	"github.com/loranode/loranode-go/pkg/metrics"
	"github.com/loranode/loranode-go/pkg/sim"
	"github.com/loranode/loranode-go/pkg/uplink"
)

type zeroSource struct{}

func (zeroSource) IntN(int) int { return 0 }

type eventRecorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *eventRecorder) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) nodePhases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.StateChange != nil && e.StateChange.Entity == log.StateEntityNode {
			out = append(out, e.StateChange.NewState)
		}
	}
	return out
}

var testCreds = lorawan.Credentials{
	DevEUI:  lorawan.EUI64{0x70, 0xB3, 0xD5, 0x7E, 0xD0, 0x00, 0x00, 0x01},
	JoinEUI: lorawan.EUI64{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
	AppKey:  lorawan.AES128Key{0x2B, 0x7E, 0x15, 0x16, 0x28, 0xAE, 0xD2, 0xA6, 0xAB, 0xF7, 0x15, 0x88, 0x09, 0xCF, 0x4F, 0x3C},
}

func gaugeValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func counterSum(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() == name {
			for _, metric := range f.GetMetric() {
				sum += metric.GetCounter().GetValue()
			}
		}
	}
	return sum
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "IDLE", PhaseIdle.String())
	assert.Equal(t, "JOINING", PhaseJoining.String())
	assert.Equal(t, "UPLINKING", PhaseUplinking.String())
	assert.Equal(t, "STOPPED", PhaseStopped.String())
	assert.Equal(t, "UNKNOWN", Phase(9).String())
}

func TestNewRequiresMAC(t *testing.T) {
	_, err := New(Config{Credentials: testCreds})
	assert.ErrorIs(t, err, join.ErrNoMAC)
}

func TestNewRejectsBadUplinkConfig(t *testing.T) {
	_, err := New(Config{
		Credentials: testCreds,
		MAC:         mocks.NewMockMAC(t),
		Uplink:      uplink.Config{Port: 250},
	})
	assert.ErrorIs(t, err, lorawan.ErrInvalidPort)
}

func TestRunJoinsThenSends(t *testing.T) {
	const ticks = 3

	mac := mocks.NewMockMAC(t)
	mac.EXPECT().Join(mock.Anything, testCreds).Return(lorawan.JoinRejected, nil).Once()
	mac.EXPECT().Join(mock.Anything, testCreds).Return(lorawan.JoinSuccess, nil).Once()
	mac.EXPECT().Send(mock.Anything, []byte(uplink.DefaultGreeting), uint8(1), false).Return(nil).Times(ticks)

	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := &eventRecorder{}
	m := metrics.New(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var joined []join.Attempt
	var results []uplink.Result
	n, err := New(Config{
		Credentials: testCreds,
		MAC:         mac,
		Uplink:      uplink.Config{Interval: time.Minute},
		Clock:       clk,
		Backoff:     backoff.NewGenerator(zeroSource{}),
		Events:      rec,
		Metrics:     m,
		Hooks: Hooks{
			OnJoined: func(a join.Attempt) { joined = append(joined, a) },
			OnTick: func(r uplink.Result) {
				results = append(results, r)
				if len(results) == ticks {
					cancel()
				}
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, n.Phase())
	assert.Equal(t, 0.0, gaugeValue(t, m, "lorawan_node_join_joined"))

	err = n.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// One backoff wait, then two interval waits between three ticks.
	assert.Equal(t, []time.Duration{10 * time.Second, time.Minute, time.Minute}, clk.Sleeps())

	require.Len(t, joined, 1)
	assert.Equal(t, uint32(2), joined[0].Number)
	require.Len(t, results, ticks)
	for _, r := range results {
		assert.True(t, r.Sent)
	}

	st := n.Status()
	assert.Equal(t, PhaseStopped, st.Phase)
	assert.Equal(t, join.StateJoined, st.JoinState)
	assert.Equal(t, uint32(2), st.Attempts)
	assert.Equal(t, uint32(1), st.Retries)
	assert.Equal(t, "JOIN_SUCCESS", st.LastAttempt)
	assert.Equal(t, uint64(ticks), st.Uplink.Sent)
	assert.Equal(t, time.Minute, st.Interval)
	assert.Equal(t, testCreds.DevEUI, st.DevEUI)
	assert.False(t, st.StartedAt.IsZero())

	assert.Equal(t, []string{"JOINING", "UPLINKING", "STOPPED"}, rec.nodePhases())

	assert.Equal(t, 1.0, gaugeValue(t, m, "lorawan_node_join_joined"))
	assert.Equal(t, 2.0, counterSum(t, m, "lorawan_node_join_attempts_total"))
	assert.Equal(t, float64(ticks), counterSum(t, m, "lorawan_node_uplink_total"))

	assert.ErrorIs(t, n.Run(context.Background()), ErrAlreadyRunning)
}

func TestRunCancelledWhileJoining(t *testing.T) {
	mac := mocks.NewMockMAC(t)
	mac.EXPECT().Join(mock.Anything, testCreds).Return(lorawan.NoJoinAccept, nil)

	clk := clock.NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.OnSleep(func(time.Duration) { cancel() })

	n, err := New(Config{Credentials: testCreds, MAC: mac, Clock: clk, Backoff: backoff.NewGenerator(zeroSource{})})
	require.NoError(t, err)

	assert.ErrorIs(t, n.Run(ctx), context.Canceled)
	st := n.Status()
	assert.Equal(t, PhaseStopped, st.Phase)
	assert.Equal(t, join.StateNotJoined, st.JoinState)
	mac.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendFailuresKeepSchedule(t *testing.T) {
	const ticks = 4

	mac := mocks.NewMockMAC(t)
	mac.EXPECT().Join(mock.Anything, testCreds).Return(lorawan.JoinSuccess, nil).Once()
	mac.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(lorawan.ErrTransport).Times(ticks)

	clk := clock.NewFake(time.Unix(0, 0))
	m := metrics.New(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := 0
	n, err := New(Config{
		Credentials: testCreds,
		MAC:         mac,
		Clock:       clk,
		Metrics:     m,
		Hooks: Hooks{OnTick: func(uplink.Result) {
			count++
			if count == ticks {
				cancel()
			}
		}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, n.Run(ctx), context.Canceled)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute}, clk.Sleeps())
	assert.Equal(t, uint64(ticks), n.Status().Uplink.Failed)
	assert.Equal(t, float64(ticks), counterSum(t, m, "lorawan_node_uplink_total"))
}

func TestSetPayloadSource(t *testing.T) {
	mac := mocks.NewMockMAC(t)
	mac.EXPECT().Join(mock.Anything, testCreds).Return(lorawan.JoinSuccess, nil).Once()

	var sent [][]byte
	mac.EXPECT().Send(mock.Anything, mock.Anything, uint8(1), false).
		RunAndReturn(func(_ context.Context, p []byte, _ uint8, _ bool) error {
			sent = append(sent, p)
			return nil
		}).Times(2)

	clk := clock.NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n *Node
	n, err := New(Config{
		Credentials: testCreds,
		MAC:         mac,
		Source:      uplink.StaticPayload("first"),
		Clock:       clk,
		Hooks: Hooks{OnTick: func(r uplink.Result) {
			if r.Tick == 1 {
				n.SetPayloadSource(uplink.StaticPayload("second"))
				return
			}
			cancel()
		}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, n.Run(ctx), context.Canceled)
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, sent)
}

func TestRunAgainstSimulatedNetwork(t *testing.T) {
	net := sim.NewNetwork(sim.NetworkConfig{NetID: [3]byte{0x13}, NoAcceptProbability: 0.5, Seed: 11})
	net.Provision(testCreds, true)

	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	mac, err := sim.NewMAC(sim.MACConfig{Network: net, Clock: clk, Seed: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const ticks = 5
	n, err := New(Config{
		Credentials: testCreds,
		MAC:         mac,
		Uplink:      uplink.Config{Interval: 30 * time.Second},
		Clock:       clk,
		Backoff:     backoff.NewGenerator(backoff.NewSource(1)),
		Hooks: Hooks{OnTick: func(r uplink.Result) {
			if r.Tick == ticks {
				cancel()
			}
		}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, n.Run(ctx), context.Canceled)

	ups := net.Uplinks(testCreds.DevEUI)
	require.Len(t, ups, ticks)
	for i, up := range ups {
		assert.Equal(t, uint32(i), up.FCnt)
		assert.Equal(t, []byte(uplink.DefaultGreeting), up.Payload)
	}
	assert.Equal(t, join.StateJoined, n.Status().JoinState)
}
