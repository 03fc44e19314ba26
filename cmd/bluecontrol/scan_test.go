//go:build test

package main

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/testutils"
	"github.com/srg/bluecontrol/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	CommandTestSuite
}

// advertise pushes advertisements into the running scan
func (s *ScanTestSuite) advertise(advs ...device.Advertisement) {
	r := s.NextReceiver()
	for _, adv := range advs {
		r.HandleResult(adv)
	}
}

func (s *ScanTestSuite) TestScanJSON() {
	// GOAL: Verify scan prints the deduplicated device set as JSON
	//
	// TEST SCENARIO: two devices advertise, one twice → JSON lists each once, sorted by address

	run := s.StartCommand("scan", "--duration", "300ms", "--format", "json")

	s.advertise(
		testutils.NewAdvertisementBuilder().WithAddress(TestDeviceAddress2).WithRSSI(-70).Build(),
		testutils.NewAdvertisementBuilder().WithAddress(TestDeviceAddress1).WithName("Servo").WithRSSI(-40).Build(),
		testutils.NewAdvertisementBuilder().WithAddress(TestDeviceAddress2).WithName("Arm").WithRSSI(-65).Build(),
	)

	s.Require().NoError(run.Wait())

	testutils.NewJSONAsserter(s.T()).Assert(run.Stdout.String(), `[
		{"address": "00:00:00:00:00:01", "name": "Servo", "rssi": -40, "last_seen": "<<PRESENCE>>"},
		{"address": "00:00:00:00:00:02", "name": "Arm", "rssi": -65, "last_seen": "<<PRESENCE>>"}
	]`)
	s.Equal(0, s.Adapter.ActiveScans(), "scan MUST be stopped when the command returns")
}

func (s *ScanTestSuite) TestScanTable() {
	// GOAL: Verify the table view shows names, addresses and RSSI
	//
	// TEST SCENARIO: named and unnamed devices advertise → table lists both, unnamed as (unknown)

	run := s.StartCommand("scan", "-d", "300ms")

	s.advertise(
		testutils.NewAdvertisementBuilder().WithAddress(TestDeviceAddress1).WithName("Servo").WithRSSI(-40).Build(),
		testutils.NewAdvertisementBuilder().WithAddress(TestDeviceAddress2).WithRSSI(-90).Build(),
	)

	s.Require().NoError(run.Wait())

	out := run.Stdout.String()
	s.Contains(out, "NAME")
	s.Contains(out, "Servo")
	s.Contains(out, "(unknown)")
	s.Contains(out, "-40 dBm")
	s.Contains(out, "-90 dBm")
	s.Contains(run.Stderr.String(), "Scanning for BLE devices", "progress MUST go to stderr")
}

func (s *ScanTestSuite) TestScanNoDevices() {
	out, err := s.ExecuteCommand("scan", "-d", "50ms")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, "No devices discovered")
}

func (s *ScanTestSuite) TestScanEmptyJSON() {
	out, err := s.ExecuteCommand("scan", "-d", "50ms", "-f", "json")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[]`)
}

func (s *ScanTestSuite) TestScanUsesFilterAndMode() {
	// GOAL: Verify the scan is filtered by the control service and honours --mode
	//
	// TEST SCENARIO: scan with --mode low_latency → adapter receives filter and mode

	_, err := s.ExecuteCommand("scan", "-d", "50ms", "--mode", "low_latency")
	s.Require().NoError(err)

	settings := s.Adapter.LastSettings()
	s.Equal([]string{device.NormalizeUUID(device.ControlServiceUUID)}, settings.ServiceUUIDs)
	s.Equal(device.ScanModeLowLatency, settings.Mode)
}

func (s *ScanTestSuite) TestScanFailure() {
	// GOAL: Verify a scan failure ends the command with a classified error
	//
	// TEST SCENARIO: adapter fails immediately with bluetooth off → registration_failed error

	s.Adapter.FailNextScan(device.ErrBluetoothOff)

	_, err := s.ExecuteCommand("scan", "-d", "2s")

	var sfe *device.ScanFailedError
	s.Require().ErrorAs(err, &sfe)
	s.Equal(device.ScanFailedRegistrationFailed, sfe.Code)
	s.Equal("Bluetooth is turned off; enable it and try again", FormatUserError(err))
}

func (s *ScanTestSuite) TestScanRejectsInvalidOptions() {
	tests := []struct {
		name string
		args []string
	}{
		{name: "format", args: []string{"scan", "-f", "csv"}},
		{name: "mode", args: []string{"scan", "--mode", "turbo"}},
		{name: "log level", args: []string{"scan", "--log-level", "loud"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resetFlags(rootCmd)
			_, err := s.ExecuteCommand(tt.args...)
			s.Error(err)
			s.Equal(0, s.Adapter.ScanCalls(), "invalid options MUST NOT start a scan")
		})
	}
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}

func TestWatchViewKeepsFirstSeenOrder(t *testing.T) {
	view := newWatchView()

	view.update(scanner.DeviceSet{{Address: "BB", RSSI: -50}})
	view.update(scanner.DeviceSet{{Address: "AA", RSSI: -60}, {Address: "BB", RSSI: -40}})

	devices := view.devices()
	if len(devices) != 2 {
		t.Fatalf("view MUST hold 2 devices, got %d", len(devices))
	}
	if devices[0].Address != "BB" || devices[1].Address != "AA" {
		t.Errorf("view MUST keep first-seen order, got %v", devices.Addresses())
	}
	if devices[0].RSSI != -40 {
		t.Errorf("view MUST keep the latest record, got RSSI %d", devices[0].RSSI)
	}
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "Servo", truncateName("Servo", 20))
	assert.Equal(t, "Servo Controller 01!", truncateName("Servo Controller 01!", 20), "names at the limit MUST be kept")
	assert.Equal(t, "Servo Controller ...", truncateName("Servo Controller 0123", 20))

	cut := truncateName("Сервопривод-кухня-второй", 20)
	assert.True(t, utf8.ValidString(cut), "multibyte names MUST be cut on rune boundaries")
	assert.Equal(t, "Сервопривод-кухня...", cut)
}

func TestDisplayDevicesTableKeepsUTF8(t *testing.T) {
	var buf bytes.Buffer
	err := displayDevicesTable(&buf, scanner.DeviceSet{
		{Address: "AA:AA", Name: "温度センサー・リビングルーム・一階の部屋です", RSSI: -55},
	})
	require.NoError(t, err)
	assert.True(t, utf8.Valid(buf.Bytes()), "table output MUST stay valid UTF-8")
	assert.Contains(t, buf.String(), "温度センサー・リビングルーム・一階...")
}
