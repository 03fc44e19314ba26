package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/bluecontrol/connection"
	"github.com/srg/bluecontrol/internal/config"
	"github.com/srg/bluecontrol/internal/devicefactory"
	"github.com/srg/bluecontrol/internal/lifecycle"
)

const exampleDeviceAddress = "AA:BB:CC:DD:EE:FF"

// controlCmd represents the control command
var controlCmd = &cobra.Command{
	Use:   "control <device-address>",
	Short: "Connect to a device and read or write the control characteristic",
	Long: fmt.Sprintf(`Connects to a peripheral exposing the control service, then reads and/or
writes the control characteristic as raw bytes.

The connection is retried twice, 100ms apart, before giving up. Without
--write the characteristic is read.

Examples:
  # Read the current value
  bluecontrol control %s

  # Write hex bytes, then read back
  bluecontrol control %s --write "01 5A" --hex --read

  # Stay connected and report link loss until Ctrl+C
  bluecontrol control %s --hold`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress),
	Args: cobra.ExactArgs(1),
	RunE: runControl,
}

var (
	controlRead       bool
	controlWrite      string
	controlHex        bool
	controlNoResponse bool
	controlTimeout    time.Duration
	controlHold       bool
	controlFormat     string
)

func init() {
	controlCmd.Flags().BoolVar(&controlRead, "read", false, "Read the control characteristic (default when --write is not given)")
	controlCmd.Flags().StringVar(&controlWrite, "write", "", "Data to write to the control characteristic")
	controlCmd.Flags().BoolVar(&controlHex, "hex", false, "Parse --write data as hex (e.g., 'FF01'); raw bytes by default")
	controlCmd.Flags().BoolVar(&controlNoResponse, "without-response", false, "Write without response (no ACK)")
	controlCmd.Flags().DurationVar(&controlTimeout, "timeout", 30*time.Second, "Connect and I/O timeout")
	controlCmd.Flags().BoolVar(&controlHold, "hold", false, "Stay connected until Ctrl+C; fail if the link drops")
	controlCmd.Flags().StringVarP(&controlFormat, "format", "f", "", "Output format (table, json)")
}

// controlResult is the outcome of one control command
type controlResult struct {
	Address string `json:"address"`
	Written int    `json:"written,omitempty"`
	Value   string `json:"value,omitempty"` // hex
	read    bool
}

func runControl(cmd *cobra.Command, args []string) error {
	var data []byte
	writeSet := cmd.Flags().Changed("write")
	if writeSet {
		var err error
		if data, err = parseWriteData(controlWrite, controlHex); err != nil {
			return fmt.Errorf("failed to parse data: %w", err)
		}
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if controlFormat != "" {
		cfg.OutputFormat = controlFormat
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, release, err := devicefactory.NewAdapter(logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}
	defer release()

	manager, err := connection.NewManager(adapter, cfg.ConnectionOptions(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()
	manager.AddObserver(connection.NewLoggingObserver(logger))

	errOut := &syncWriter{w: cmd.ErrOrStderr()}
	states := newStatePrinter(errOut, cfg.OutputFormat == "table")

	screen, err := lifecycle.NewControlScreen(manager, args[0], logger, states)
	if err != nil {
		return err
	}
	screen.SetConnectTimeout(controlTimeout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress *ProgressPrinter
	if cfg.OutputFormat == "table" {
		progress = NewProgressPrinter(errOut, fmt.Sprintf("Connecting to %s", screen.Address()), "connecting", 0)
		progress.Start()
	}

	if err := screen.Handle(lifecycle.Visible); err != nil {
		return err
	}
	defer func() {
		_ = screen.Handle(lifecycle.Hidden)
		if req := screen.Disconnection(); req != nil {
			_ = req.Wait(context.Background())
		}
	}()

	err = screen.Connection().Wait(ctx)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return err
	}

	result := &controlResult{Address: screen.Address()}
	if err := performControl(ctx, manager, result, data, writeSet); err != nil {
		return err
	}
	if err := renderControlResult(cmd.OutOrStdout(), cfg.OutputFormat, result); err != nil {
		return err
	}

	if !controlHold {
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case <-states.lost:
		return ErrConnectionLost
	}
}

// performControl writes, then reads, the control characteristic
func performControl(ctx context.Context, manager *connection.Manager, result *controlResult, data []byte, writeSet bool) error {
	ioCtx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	if writeSet {
		if err := manager.Write(ioCtx, data, !controlNoResponse); err != nil {
			return err
		}
		result.Written = len(data)
	}

	if controlRead || (!writeSet && !controlHold) {
		value, err := manager.Read(ioCtx)
		if err != nil {
			return err
		}
		result.Value = hex.EncodeToString(value)
		result.read = true
	}
	return nil
}

func renderControlResult(w io.Writer, format string, result *controlResult) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if result.Written > 0 {
		fmt.Fprintf(w, "Wrote %d bytes to %s\n", result.Written, result.Address)
	}
	if result.read {
		if result.Value == "" {
			fmt.Fprintln(w, "Value: (empty)")
		} else {
			raw, _ := hex.DecodeString(result.Value)
			fmt.Fprintf(w, "Value: % X\n", raw)
		}
	}
	return nil
}

// parseWriteData converts input string to bytes
func parseWriteData(dataStr string, asHex bool) ([]byte, error) {
	if !asHex {
		return []byte(dataStr), nil
	}

	// Remove spaces and common separators
	cleaned := strings.ReplaceAll(dataStr, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "0x", "")

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// statePrinter reports connection state changes on one line each and
// closes lost on link loss
type statePrinter struct {
	w       io.Writer
	enabled bool

	lost     chan struct{}
	lostOnce sync.Once
}

func newStatePrinter(w io.Writer, enabled bool) *statePrinter {
	return &statePrinter{w: w, enabled: enabled, lost: make(chan struct{})}
}

func (p *statePrinter) print(c *color.Color, state, address, detail string) {
	if !p.enabled {
		return
	}
	line := fmt.Sprintf("%s %s", c.Sprint(state), address)
	if detail != "" {
		line += " (" + detail + ")"
	}
	fmt.Fprintf(p.w, "%s%s\n", clearLineSequence, line)
}

func (p *statePrinter) OnDeviceConnecting(address string) {
	p.print(color.New(color.FgCyan), "connecting", address, "")
}

func (p *statePrinter) OnDeviceConnected(address string) {
	p.print(color.New(color.FgCyan), "connected", address, "")
}

func (p *statePrinter) OnDeviceFailedToConnect(address string, reason connection.Reason) {
	p.print(color.New(color.FgRed), "failed to connect", address, reason.String())
}

func (p *statePrinter) OnDeviceReady(address string) {
	p.print(color.New(color.FgGreen, color.Bold), "ready", address, "")
}

func (p *statePrinter) OnDeviceDisconnecting(address string) {
	p.print(color.New(color.FgYellow), "disconnecting", address, "")
}

func (p *statePrinter) OnDeviceDisconnected(address string, reason connection.Reason) {
	p.print(color.New(color.FgYellow), "disconnected", address, reason.String())
	if reason == connection.ReasonLinkLoss {
		p.lostOnce.Do(func() { close(p.lost) })
	}
}

// syncWriter serializes writes from the progress and state printers
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
