package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loranode/loranode-go/pkg/clock"
	"github.com/loranode/loranode-go/pkg/config"
	"github.com/loranode/loranode-go/pkg/join"
	"github.com/loranode/loranode-go/pkg/log"
	"github.com/loranode/loranode-go/pkg/lorawan"
	"github.com/loranode/loranode-go/pkg/metrics"
	"github.com/loranode/loranode-go/pkg/node"
	"github.com/loranode/loranode-go/pkg/persistence"
)

const testConfig = `
device:
  dev_eui: 70B3D57ED0000001
  join_eui: "0000000000000001"
  app_key: 2B7E151628AED2A6ABF7158809CF4F3C
uplink:
  interval: 5m
  payload: ping
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func parseFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f.loadConfig(fs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, testConfig)

	cfg, err := parseFlags(t, "-config", path, "-interval", "10s", "-source", "telemetry", "-port", "7", "-sim-sf", "9")
	require.NoError(t, err)

	assert.Equal(t, "70B3D57ED0000001", cfg.Device.DevEUI)
	assert.Equal(t, 10*time.Second, cfg.Uplink.Interval)
	assert.Equal(t, config.SourceTelemetry, cfg.Uplink.Source)
	assert.Equal(t, uint8(7), cfg.Uplink.Port)
	assert.Equal(t, 9, cfg.Sim.SpreadingFactor)
	assert.Equal(t, "ping", cfg.Uplink.Payload)
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	path := writeConfig(t, testConfig)

	cfg, err := parseFlags(t, "-config", path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Uplink.Interval)
	assert.Equal(t, uint8(1), cfg.Uplink.Port)
	assert.Equal(t, 0.3, cfg.Sim.NoAcceptProbability)
}

func TestFlagsWithoutConfigFile(t *testing.T) {
	cfg, err := parseFlags(t,
		"-dev-eui", "70B3D57ED0000002",
		"-join-eui", "0000000000000001",
		"-app-key", "2B7E151628AED2A6ABF7158809CF4F3C")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Uplink.Interval)
	assert.Equal(t, "Hello from nRF52840!", cfg.Uplink.Payload)
}

func TestFlagsRejectInvalid(t *testing.T) {
	path := writeConfig(t, testConfig)

	_, err := parseFlags(t, "-config", path, "-port", "300")
	assert.Error(t, err)

	_, err = parseFlags(t, "-config", path, "-interval", "0s")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = parseFlags(t, "-interval", "1m")
	assert.ErrorIs(t, err, config.ErrInvalidConfig, "credentials are required")
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogging(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func metricValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.Counter != nil {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}

func testDeviceConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Device.DevEUI = "70B3D57ED0000001"
	cfg.Device.JoinEUI = "0000000000000001"
	cfg.Device.AppKey = "2B7E151628AED2A6ABF7158809CF4F3C"
	cfg.Storage.StateFile = filepath.Join(dir, "state.json")
	cfg.Storage.ProtocolLog = filepath.Join(dir, "node.llog")
	cfg.Sim.NoAcceptProbability = 0
	cfg.Sim.Seed = 42
	require.NoError(t, cfg.Validate())
	return cfg
}

// runUntilTicks runs d on a fake clock until the scheduler has slept
// through the given number of intervals.
func runUntilTicks(t *testing.T, cfg *config.Config, ticks int) *device {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	d, err := buildDevice(cfg, discardLogger(), clk)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := 0
	clk.OnSleep(func(dur time.Duration) {
		if dur == cfg.Uplink.Interval {
			seen++
			if seen == ticks {
				cancel()
			}
		}
	})

	require.NoError(t, d.run(ctx))
	d.close()
	return d
}

func TestDeviceJoinsAndSendsUplinks(t *testing.T) {
	cfg := testDeviceConfig(t)
	cfg.Metrics.Listen = "127.0.0.1:0"

	d := runUntilTicks(t, cfg, 3)

	st := d.node.Status()
	assert.Equal(t, node.PhaseStopped, st.Phase)
	assert.Equal(t, join.StateJoined, st.JoinState)
	assert.Equal(t, uint32(1), st.Attempts)
	assert.Equal(t, uint64(3), st.Uplink.Sent)
	assert.NotNil(t, d.server.Addr())

	eui, err := lorawan.ParseEUI64(cfg.Device.DevEUI)
	require.NoError(t, err)
	received := d.network.Uplinks(eui)
	require.Len(t, received, 3)
	for i, up := range received {
		assert.Equal(t, uint32(i), up.FCnt)
		assert.Equal(t, []byte(cfg.Uplink.Payload), up.Payload)
	}

	assert.Equal(t, 3.0, metricValue(t, d.metrics.UplinksTotal.WithLabelValues(metrics.ResultSent)))
	assert.Equal(t, 1.0, metricValue(t, d.metrics.Joined))
	assert.Greater(t, metricValue(t, d.metrics.RadioAirtimeSeconds), 0.0)
}

func TestDevicePersistsState(t *testing.T) {
	cfg := testDeviceConfig(t)
	runUntilTicks(t, cfg, 2)

	store := persistence.NewDeviceStateStore(cfg.Storage.StateFile)
	state, err := store.LoadFor(cfg.Device.DevEUI)
	require.NoError(t, err)
	require.NotNil(t, state.Session)
	assert.Equal(t, uint32(1), state.Session.Attempts)
	assert.Equal(t, uint32(0), state.Session.RetriesAtJoin)
	assert.True(t, state.DevNonceUsed)
	assert.Equal(t, uint16(0), state.DevNonce)
	assert.Equal(t, uint32(2), state.FCntUp)

	// A restart joins again with the next DevNonce.
	runUntilTicks(t, cfg, 1)
	state, err = store.LoadFor(cfg.Device.DevEUI)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), state.DevNonce)
	assert.Equal(t, uint32(1), state.FCntUp)
}

func TestDeviceWritesProtocolLog(t *testing.T) {
	cfg := testDeviceConfig(t)
	d := runUntilTicks(t, cfg, 2)

	r, err := log.NewReader(cfg.Storage.ProtocolLog)
	require.NoError(t, err)
	defer r.Close()

	counts := map[log.Category]int{}
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, d.session.ID(), e.SessionID)
		assert.Equal(t, cfg.Device.DevEUI, e.DevEUI)
		counts[e.Category]++
	}
	assert.Equal(t, 1, counts[log.CategoryJoin])
	assert.Equal(t, 2, counts[log.CategoryUplink])
	assert.Equal(t, 0, counts[log.CategoryBackoff])
	// JoinRequest, JoinAccept and two data frames.
	assert.Equal(t, 4, counts[log.CategoryFrame])
}

func TestDeviceRejectsForeignState(t *testing.T) {
	cfg := testDeviceConfig(t)
	runUntilTicks(t, cfg, 1)

	cfg.Device.DevEUI = "70B3D57ED00000FF"
	_, err := buildDevice(cfg, discardLogger(), clock.NewFake(time.Now()))
	assert.ErrorIs(t, err, persistence.ErrDevEUIMismatch)
}

func TestDeviceTelemetrySource(t *testing.T) {
	cfg := testDeviceConfig(t)
	cfg.Uplink.Source = config.SourceTelemetry

	d := runUntilTicks(t, cfg, 1)
	require.NotNil(t, d.sensor)

	eui, err := lorawan.ParseEUI64(cfg.Device.DevEUI)
	require.NoError(t, err)
	received := d.network.Uplinks(eui)
	require.Len(t, received, 1)
	assert.NotEqual(t, []byte(cfg.Uplink.Payload), received[0].Payload)
}
