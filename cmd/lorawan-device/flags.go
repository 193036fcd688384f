package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/loranode/loranode-go/pkg/config"
)

// cliFlags holds the command-line flags. Flags that are set override the
// configuration file; unset flags leave it alone.
type cliFlags struct {
	configFile  string
	interactive bool

	devEUI     string
	joinEUI    string
	appKey     string
	macVersion string

	interval   time.Duration
	port       uint
	confirmed  bool
	payload    string
	source     string
	maxPayload int

	stateFile   string
	protocolLog string

	logLevel  string
	logFormat string

	metricsListen string

	seed         uint64
	rejectProb   float64
	noAcceptProb float64
	txFailProb   float64
	dutyCycle    float64
	sf           int
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configFile, "config", "", "Configuration file path (YAML)")
	fs.BoolVar(&f.interactive, "interactive", false, "Start an interactive shell")

	fs.StringVar(&f.devEUI, "dev-eui", "", "DevEUI (16 hex digits)")
	fs.StringVar(&f.joinEUI, "join-eui", "", "JoinEUI/AppEUI (16 hex digits)")
	fs.StringVar(&f.appKey, "app-key", "", "AppKey (32 hex digits)")
	fs.StringVar(&f.macVersion, "mac-version", "", "LoRaWAN MAC version (1.0.2, 1.0.3, 1.0.4, 1.1)")

	fs.DurationVar(&f.interval, "interval", 0, "Uplink interval (default 1m)")
	fs.UintVar(&f.port, "port", 0, "Uplink FPort 1-223 (default 1)")
	fs.BoolVar(&f.confirmed, "confirmed", false, "Send confirmed uplinks")
	fs.StringVar(&f.payload, "payload", "", "Static uplink payload text")
	fs.StringVar(&f.source, "source", "", "Payload source: static, telemetry")
	fs.IntVar(&f.maxPayload, "max-payload", 0, "Maximum payload size in bytes")

	fs.StringVar(&f.stateFile, "state-file", "", "File for persisting DevNonce and frame counters")
	fs.StringVar(&f.protocolLog, "protocol-log", "", "File path for event logging (CBOR format)")

	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text, json")

	fs.StringVar(&f.metricsListen, "metrics-listen", "", "Address for the Prometheus /metrics endpoint (e.g. :9100)")

	fs.Uint64Var(&f.seed, "seed", 0, "Seed for the simulated network and radio (0 = time based)")
	fs.Float64Var(&f.rejectProb, "sim-reject", 0, "Probability the network rejects a join")
	fs.Float64Var(&f.noAcceptProb, "sim-no-accept", 0, "Probability a JoinAccept is lost")
	fs.Float64Var(&f.txFailProb, "sim-tx-fail", 0, "Probability a transmission fails")
	fs.Float64Var(&f.dutyCycle, "sim-duty-cycle", 0, "Duty-cycle limit (0 disables)")
	fs.IntVar(&f.sf, "sim-sf", 0, "Spreading factor 7-12")
	return f
}

// apply copies the flags that were set on fs into cfg.
func (f *cliFlags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "dev-eui":
			cfg.Device.DevEUI = f.devEUI
		case "join-eui":
			cfg.Device.JoinEUI = f.joinEUI
		case "app-key":
			cfg.Device.AppKey = f.appKey
		case "mac-version":
			cfg.Device.MACVersion = f.macVersion
		case "interval":
			cfg.Uplink.Interval = f.interval
		case "port":
			if f.port > 255 {
				err = fmt.Errorf("port %d out of range", f.port)
				return
			}
			cfg.Uplink.Port = uint8(f.port)
		case "confirmed":
			cfg.Uplink.Confirmed = f.confirmed
		case "payload":
			cfg.Uplink.Payload = f.payload
		case "source":
			cfg.Uplink.Source = f.source
		case "max-payload":
			cfg.Uplink.MaxPayloadBytes = f.maxPayload
		case "state-file":
			cfg.Storage.StateFile = f.stateFile
		case "protocol-log":
			cfg.Storage.ProtocolLog = f.protocolLog
		case "log-level":
			cfg.Logging.Level = f.logLevel
		case "log-format":
			cfg.Logging.Format = f.logFormat
		case "metrics-listen":
			cfg.Metrics.Listen = f.metricsListen
		case "seed":
			cfg.Sim.Seed = f.seed
		case "sim-reject":
			cfg.Sim.RejectProbability = f.rejectProb
		case "sim-no-accept":
			cfg.Sim.NoAcceptProbability = f.noAcceptProb
		case "sim-tx-fail":
			cfg.Sim.TxFailureProbability = f.txFailProb
		case "sim-duty-cycle":
			cfg.Sim.DutyCycle = f.dutyCycle
		case "sim-sf":
			cfg.Sim.SpreadingFactor = f.sf
		}
	})
	return err
}

// loadConfig reads the configuration file, if any, and applies the flags.
func (f *cliFlags) loadConfig(fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		cfg, err = config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
	}
	if err := f.apply(fs, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
