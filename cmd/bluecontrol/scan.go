package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bluecontrol/internal/config"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/devicefactory"
	"github.com/srg/bluecontrol/internal/groutine"
	"github.com/srg/bluecontrol/internal/lifecycle"
	"github.com/srg/bluecontrol/scanner"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for controllable BLE devices",
	Long: `Scan for Bluetooth Low Energy peripherals advertising the control service.

Each device is listed once, keyed by address; repeated advertisements update
its name, RSSI and last-seen time.

Examples:
  # Scan for 10 seconds and print a table
  bluecontrol scan

  # Scan for 3 seconds and print JSON
  bluecontrol scan -d 3s -f json

  # Keep scanning and redraw the list until Ctrl+C
  bluecontrol scan --watch`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanMode     string
	scanWatch    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config; 0 with --watch scans until Ctrl+C)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringVar(&scanMode, "mode", "", "Scan mode (low_power, balanced, low_latency)")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and redraw results")

	_ = scanCmd.RegisterFlagCompletionFunc("mode", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return scanModeNames(), cobra.ShellCompDirectiveNoFileComp
	})
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if scanFormat != "" {
		cfg.OutputFormat = scanFormat
	}
	if scanMode != "" {
		cfg.Scan.Mode = scanMode
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	duration := cfg.Scan.Duration
	switch {
	case cmd.Flags().Changed("duration"):
		duration = scanDuration
	case scanWatch:
		duration = 0
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, release, err := devicefactory.NewAdapter(logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}
	defer release()

	settings := cfg.ScanSettings()
	s, err := scanner.NewScanner(adapter, &settings, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	session := &scanSession{
		scanner:  s,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		format:   cfg.OutputFormat,
		watch:    scanWatch,
		duration: duration,
		logger:   logger,
	}
	return session.run(ctx)
}

type scanSession struct {
	scanner  *scanner.Scanner
	out      io.Writer
	errOut   io.Writer
	format   string
	watch    bool
	duration time.Duration
	logger   *logrus.Logger
}

// run shows the devices screen until ctx is done, then prints the result
func (ss *scanSession) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := ss.scanner.Subscribe()
	defer ss.scanner.Unsubscribe(sub)
	failures := ss.scanner.Failures()

	events := make(chan lifecycle.Event, 1)
	events <- lifecycle.Visible
	screen := lifecycle.NewDevicesScreen(ss.scanner, ss.logger)

	runErr := make(chan error, 1)
	groutine.Go(ctx, "devices-screen", func(ctx context.Context) {
		runErr <- lifecycle.Run(ctx, screen, events, ss.logger)
	})

	var progress *ProgressPrinter
	if !ss.watch && ss.format == "table" {
		progress = NewProgressPrinter(ss.errOut, "Scanning for BLE devices", "scanning", ss.duration)
		progress.Start()
		defer progress.Stop()
	}

	view := newWatchView()
	for {
		select {
		case err := <-runErr:
			if progress != nil {
				progress.Stop()
			}
			if err != nil {
				return err
			}
			if ss.watch {
				view.update(ss.scanner.Devices())
				return ss.redraw(view)
			}
			return renderDevices(ss.out, ss.format, ss.scanner.Devices())

		case set, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			if ss.watch {
				view.update(set)
				if err := ss.redraw(view); err != nil {
					return err
				}
			}

		case sfe, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			cancel()
			<-runErr
			return sfe
		}
	}
}

func (ss *scanSession) redraw(view *watchView) error {
	if ss.format == "table" {
		fmt.Fprint(ss.out, "\033[2J\033[H")
	}
	return renderDevices(ss.out, ss.format, view.devices())
}

// watchView keeps devices in first-seen order across published sets
type watchView struct {
	entries *orderedmap.OrderedMap[string, scanner.DiscoveredDevice]
}

func newWatchView() *watchView {
	return &watchView{entries: orderedmap.New[string, scanner.DiscoveredDevice]()}
}

func (v *watchView) update(set scanner.DeviceSet) {
	for _, d := range set {
		v.entries.Set(d.Address, d)
	}
}

func (v *watchView) devices() scanner.DeviceSet {
	out := make(scanner.DeviceSet, 0, v.entries.Len())
	for pair := v.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func renderDevices(w io.Writer, format string, devices scanner.DeviceSet) error {
	switch format {
	case "json":
		return displayDevicesJSON(w, devices)
	default:
		return displayDevicesTable(w, devices)
	}
}

func displayDevicesTable(w io.Writer, devices scanner.DeviceSet) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tLAST SEEN")
	fmt.Fprintln(tw, strings.Repeat("-", 60))

	for _, d := range devices {
		name := truncateName(d.DisplayName("(unknown)"), 20)
		lastSeen := time.Since(d.LastSeen).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s ago\n", name, d.Address, rssiString(d.RSSI), lastSeen)
	}

	return tw.Flush()
}

// truncateName shortens name to limit runes, ending in "..." when cut
func truncateName(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	return string(runes[:limit-3]) + "..."
}

func displayDevicesJSON(w io.Writer, devices scanner.DeviceSet) error {
	if devices == nil {
		devices = scanner.DeviceSet{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

// rssiString colors signal strength: green is strong, red is weak
func rssiString(rssi int) string {
	text := fmt.Sprintf("%d dBm", rssi)
	switch {
	case rssi >= -60:
		return color.GreenString(text)
	case rssi >= -80:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

func scanModeNames() []string {
	return []string{
		device.ScanModeLowPower.String(),
		device.ScanModeBalanced.String(),
		device.ScanModeLowLatency.String(),
	}
}
