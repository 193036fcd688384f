// Command lorawan-device runs a simulated LoRaWAN Class A end-device.
//
// The device joins the network over OTAA, retrying with a jittered backoff
// until a JoinAccept arrives, and then sends an uplink at a fixed interval
// until it is stopped. The network and radio are simulated in-process.
//
// Usage:
//
//	lorawan-device [flags]
//
// Flags:
//
//	-config string          Configuration file path (YAML)
//	-dev-eui string         DevEUI (16 hex digits)
//	-join-eui string        JoinEUI/AppEUI (16 hex digits)
//	-app-key string         AppKey (32 hex digits)
//	-interval duration      Uplink interval (default 1m)
//	-source string          Payload source: static, telemetry
//	-state-file string      File for persisting DevNonce and frame counters
//	-protocol-log string    File path for event logging (CBOR format)
//	-metrics-listen string  Address for the Prometheus /metrics endpoint
//	-interactive            Start an interactive shell
//
// Examples:
//
//	# Join and send the default greeting every minute
//	lorawan-device -dev-eui 70B3D57ED0000001 -join-eui 0000000000000001 \
//	    -app-key 2B7E151628AED2A6ABF7158809CF4F3C
//
//	# Run from a config file, logging events for lorawan-log
//	lorawan-device -config device.yaml -protocol-log node.llog
//
//	# Telemetry uplinks every 10s with an interactive shell
//	lorawan-device -config device.yaml -source telemetry -interval 10s -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loranode/loranode-go/cmd/lorawan-device/interactive"
	"github.com/loranode/loranode-go/pkg/telemetry"
)

func main() {
	fs := flag.NewFlagSet("lorawan-device", flag.ExitOnError)
	flags := registerFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	cfg, err := flags.loadConfig(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		shell  *interactive.Device
		output io.Writer = os.Stderr
	)
	if flags.interactive {
		shell, err = interactive.New(interactive.Options{MaxPayload: cfg.Uplink.MaxPayloadBytes})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		output = shell.Stderr()
	}

	logger := setupLogging(output, cfg.Logging.Level, cfg.Logging.Format)

	dev, err := buildDevice(cfg, logger, nil)
	if err != nil {
		logger.Error("Failed to create device", "error", err)
		os.Exit(1)
	}
	defer dev.close()

	logger.Info("LoRaWAN device starting",
		"dev_eui", cfg.Device.DevEUI,
		"join_eui", cfg.Device.JoinEUI,
		"mac_version", dev.profile.Version,
		"interval", cfg.Uplink.Interval,
		"source", cfg.Uplink.Source,
		"session", dev.session.ID())

	if shell != nil {
		var sensor telemetry.Sensor
		if dev.sensor != nil {
			sensor = dev.sensor
		}
		shell.Attach(dev.node, dev.mac, cfg.Uplink.Source, sensor)
		go shell.Run(ctx, cancel)
	}

	if err := dev.run(ctx); err != nil {
		logger.Error("Device stopped with error", "error", err)
		dev.close()
		os.Exit(1)
	}

	st := dev.node.Status()
	logger.Info("Device stopped",
		"join_attempts", st.Attempts,
		"uplinks_sent", st.Uplink.Sent,
		"uplinks_failed", st.Uplink.Failed)
}

// setupLogging builds the process logger.
func setupLogging(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
