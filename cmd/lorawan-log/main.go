// Command lorawan-log is a tool for viewing and analyzing LoRaWAN node event logs.
//
// Log files are written by lorawan-device when run with the -protocol-log flag.
//
// Usage:
//
//	lorawan-log <command> [flags] <file.llog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show join, backoff and uplink statistics
//
// Examples:
//
//	# View all events
//	lorawan-log view node.llog
//
//	# View only join attempts
//	lorawan-log view --category join node.llog
//
//	# View only downlink frames
//	lorawan-log view --direction down node.llog
//
//	# Export to CSV
//	lorawan-log export --format csv -o node.csv node.llog
//
//	# Keep one session's events
//	lorawan-log filter --session 5f2b7c1e-... -o run.llog node.llog
//
//	# Show statistics
//	lorawan-log stats node.llog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/loranode/loranode-go/cmd/lorawan-log/commands"
)

const usage = `lorawan-log - LoRaWAN Node Log Analyzer

Usage:
  lorawan-log <command> [flags] <file.llog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show join, backoff and uplink statistics

Use "lorawan-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// logPath returns the single positional argument or exits with usage.
func logPath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `lorawan-log view - View log file in human-readable format

Usage:
  lorawan-log view [flags] <file.llog>

Flags:
`)
		fs.PrintDefaults()
	}

	direction := fs.String("direction", "", "Filter by direction (up, down, none)")
	category := fs.String("category", "", "Filter by category (join, backoff, uplink, state, frame, error)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	var filter commands.ViewFilter

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `lorawan-log export - Export log file to JSON or CSV format

Usage:
  lorawan-log export [flags] <file.llog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `lorawan-log filter - Filter log file and write to new file

Usage:
  lorawan-log filter [flags] <file.llog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	session := fs.String("session", "", "Filter by session ID")
	devEUI := fs.String("dev-eui", "", "Filter by DevEUI (hex)")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	direction := fs.String("direction", "", "Filter by direction (up, down, none)")
	category := fs.String("category", "", "Filter by category (join, backoff, uplink, state, frame, error)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:    *output,
		SessionID: *session,
		DevEUI:    *devEUI,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Direction: *direction,
		Category:  *category,
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `lorawan-log stats - Show join, backoff and uplink statistics

Usage:
  lorawan-log stats <file.llog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
