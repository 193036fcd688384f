// Package interactive provides the interactive command-line interface
// for the LoRaWAN device.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/loranode/loranode-go/pkg/node"
	"github.com/loranode/loranode-go/pkg/sim"
	"github.com/loranode/loranode-go/pkg/telemetry"
	"github.com/loranode/loranode-go/pkg/uplink"
)

// Node is the part of *node.Node the shell drives.
type Node interface {
	Status() node.Status
	SetPayloadSource(src uplink.PayloadSource)
}

// Radio exposes the simulated radio counters.
type Radio interface {
	Stats() sim.MACStats
	DevAddr() (uint32, bool)
}

// Options configures the shell.
type Options struct {
	// MaxPayload bounds payloads set with the payload command. Zero means
	// no limit.
	MaxPayload int

	// Sensor backs the telemetry command. A simulated sensor is created
	// when nil.
	Sensor telemetry.Sensor
}

// Device handles interactive mode for lorawan-device.
type Device struct {
	node   Node
	radio  Radio
	opts   Options
	rl     *readline.Instance
	out    io.Writer
	source string
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("status"),
	readline.PcItem("radio"),
	readline.PcItem("payload"),
	readline.PcItem("telemetry"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// New creates a new interactive device handler. Attach must be called
// before Run.
func New(opts Options) (*Device, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "device> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	d := newDevice(nil, nil, opts, rl.Stdout())
	d.rl = rl
	return d, nil
}

func newDevice(n Node, radio Radio, opts Options, out io.Writer) *Device {
	return &Device{
		node:   n,
		radio:  radio,
		opts:   opts,
		out:    out,
		source: "static",
	}
}

// Attach binds the shell to a node and its radio. source names the payload
// source the node starts with; sensor, when not nil, backs that source.
func (d *Device) Attach(n Node, radio Radio, source string, sensor telemetry.Sensor) {
	d.node = n
	d.radio = radio
	if source != "" {
		d.source = source
	}
	if sensor != nil {
		d.opts.Sensor = sensor
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (d *Device) Stdout() io.Writer {
	return d.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (d *Device) Stderr() io.Writer {
	return d.rl.Stderr()
}

// Run starts the interactive command loop. It calls cancel when the user
// quits or closes the input.
func (d *Device) Run(ctx context.Context, cancel context.CancelFunc) {
	defer d.rl.Close()

	d.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := d.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(d.out, "Exiting...")
			cancel()
			return
		}

		if quit := d.execute(line); quit {
			fmt.Fprintln(d.out, "Exiting...")
			cancel()
			return
		}
	}
}

// execute runs one command line and reports whether the user asked to quit.
func (d *Device) execute(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "help", "?":
		d.printHelp()
	case "status", "s":
		d.cmdStatus()
	case "radio":
		d.cmdRadio()
	case "payload", "p":
		d.cmdPayload(rest)
	case "telemetry", "t":
		d.cmdTelemetry()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(d.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (d *Device) printHelp() {
	fmt.Fprintln(d.out, `
LoRaWAN Device Commands:
  status             - Show join and uplink status
  radio              - Show radio counters
  payload <text>     - Send <text> as the uplink payload
  telemetry          - Send temperature/humidity readings as the payload
  help               - Show this help
  quit               - Exit device`)
}

func (d *Device) cmdStatus() {
	st := d.node.Status()

	fmt.Fprintln(d.out, "\nDevice Status")
	fmt.Fprintln(d.out, "-------------------------------------------")
	fmt.Fprintf(d.out, "  DevEUI:         %s\n", st.DevEUI)
	fmt.Fprintf(d.out, "  Phase:          %s\n", st.Phase)
	fmt.Fprintf(d.out, "  Join state:     %s\n", st.JoinState)
	fmt.Fprintf(d.out, "  Join attempts:  %d (retries %d)\n", st.Attempts, st.Retries)
	if st.LastAttempt != "" {
		fmt.Fprintf(d.out, "  Last attempt:   %s\n", st.LastAttempt)
	}
	if !st.JoinedAt.IsZero() {
		fmt.Fprintf(d.out, "  Joined at:      %s\n", st.JoinedAt.Format(time.RFC3339))
	}
	if d.radio != nil {
		if addr, ok := d.radio.DevAddr(); ok {
			fmt.Fprintf(d.out, "  DevAddr:        %08X\n", addr)
		}
	}
	fmt.Fprintf(d.out, "  Interval:       %s\n", st.Interval)
	fmt.Fprintf(d.out, "  Payload source: %s\n", d.source)
	fmt.Fprintf(d.out, "  Uplinks:        %d ticks, %d sent, %d failed, %d dropped\n",
		st.Uplink.Ticks, st.Uplink.Sent, st.Uplink.Failed, st.Uplink.Dropped)
	if st.Uplink.LastError != "" {
		fmt.Fprintf(d.out, "  Last error:     %s\n", st.Uplink.LastError)
	}
}

func (d *Device) cmdRadio() {
	if d.radio == nil {
		fmt.Fprintln(d.out, "No radio")
		return
	}
	s := d.radio.Stats()
	fmt.Fprintln(d.out, "\nRadio")
	fmt.Fprintln(d.out, "-------------------------------------------")
	fmt.Fprintf(d.out, "  Join requests:  %d\n", s.JoinRequests)
	fmt.Fprintf(d.out, "  Uplinks:        %d\n", s.Uplinks)
	fmt.Fprintf(d.out, "  TX failures:    %d\n", s.TxFailures)
	fmt.Fprintf(d.out, "  Airtime:        %s\n", s.Airtime)
	fmt.Fprintf(d.out, "  Duty-cycle wait: %s\n", s.DutyCycleWait)
}

func (d *Device) cmdPayload(text string) {
	if text == "" {
		fmt.Fprintln(d.out, "Usage: payload <text>")
		return
	}
	if d.opts.MaxPayload > 0 && len(text) > d.opts.MaxPayload {
		fmt.Fprintf(d.out, "Payload is %d bytes, limit is %d\n", len(text), d.opts.MaxPayload)
		return
	}
	d.node.SetPayloadSource(uplink.StaticPayload(text))
	d.source = "static"
	fmt.Fprintf(d.out, "Payload set to %q (%d bytes)\n", text, len(text))
}

func (d *Device) cmdTelemetry() {
	sensor := d.opts.Sensor
	if sensor == nil {
		sensor = telemetry.NewSimulatedSensor(21, 45, 0)
		d.opts.Sensor = sensor
	}
	src, err := telemetry.NewSource(sensor)
	if err != nil {
		fmt.Fprintf(d.out, "Error: %v\n", err)
		return
	}
	d.node.SetPayloadSource(src)
	d.source = "telemetry"
	fmt.Fprintln(d.out, "Payload source set to telemetry")
}
