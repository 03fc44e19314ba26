//go:build test

package main

import (
	"strings"
	"testing"

	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ControlTestSuite struct {
	CommandTestSuite
}

func (s *ControlTestSuite) controlChar(p *testutils.FakePeripheral) *testutils.FakeCharacteristic {
	c := p.Characteristic(device.ControlServiceUUID, device.ControlCharacteristicUUID)
	s.Require().NotNil(c)
	return c
}

func (s *ControlTestSuite) TestReadByDefault() {
	// GOAL: Verify control without --write reads the control characteristic
	//
	// TEST SCENARIO: peripheral holds 01 5A → control <addr> → value printed as hex bytes

	s.WithPeripheral(TestDeviceAddress1, []byte{0x01, 0x5A})

	out, err := s.ExecuteCommand("control", TestDeviceAddress1)

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, "Value: 01 5A")
}

func (s *ControlTestSuite) TestWriteHexThenRead() {
	// GOAL: Verify hex data is written before the read-back
	//
	// TEST SCENARIO: --write "0x0A:0B" --hex --read → one write of 0A 0B → value reads back

	p := s.WithPeripheral(TestDeviceAddress1, []byte{0x00})

	out, err := s.ExecuteCommand("control", TestDeviceAddress1, "--write", "0x0A:0B", "--hex", "--read")

	s.Require().NoError(err)
	s.Equal([][]byte{{0x0A, 0x0B}}, s.controlChar(p).Writes())
	testutils.NewTextAsserter(s.T()).Assert(out, `
Wrote 2 bytes to 00:00:00:00:00:01
Value: 0A 0B`)
}

func (s *ControlTestSuite) TestWriteOnly() {
	p := s.WithPeripheral(TestDeviceAddress1, nil)

	out, err := s.ExecuteCommand("control", TestDeviceAddress1, "--write", "hi")

	s.Require().NoError(err)
	s.Equal([][]byte{[]byte("hi")}, s.controlChar(p).Writes())
	s.NotContains(out, "Value", "write without --read MUST NOT read")
}

func (s *ControlTestSuite) TestJSONOutput() {
	s.WithPeripheral(TestDeviceAddress1, nil)

	out, err := s.ExecuteCommand("control", strings.ToLower(TestDeviceAddress1), "--write", "ff01", "--hex", "--read", "-f", "json")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).
		WithOptions(testutils.WithIgnoreExtraKeys(false)).
		Assert(out, `{"address": "00:00:00:00:00:01", "written": 2, "value": "ff01"}`)
}

func (s *ControlTestSuite) TestStateChangesGoToStderr() {
	s.WithPeripheral(TestDeviceAddress1, []byte{0x01})

	run := s.StartCommand("control", TestDeviceAddress1)
	s.Require().NoError(run.Wait())

	errOut := run.Stderr.String()
	for _, state := range []string{"connecting", "connected", "ready", "disconnecting", "disconnected"} {
		s.Contains(errOut, state+" "+TestDeviceAddress1)
	}
	s.NotContains(run.Stdout.String(), "ready")
}

func (s *ControlTestSuite) TestUnreachableDeviceGivesUp() {
	// GOAL: Verify the connect is retried twice before the command fails
	//
	// TEST SCENARIO: unknown address → 3 dial attempts → error names the attempt count

	_, err := s.ExecuteCommand("control", TestDeviceAddress2, "--timeout", "2s")

	s.Require().Error(err)
	s.Contains(err.Error(), "after 3 attempts")
}

func (s *ControlTestSuite) TestMissingControlService() {
	p := testutils.NewPeripheralBuilder(TestDeviceAddress1).
		WithService("180F").WithCharacteristic("2A19", []byte{100}).
		Build()
	s.Adapter.AddPeripheral(p)

	_, err := s.ExecuteCommand("control", TestDeviceAddress1)

	s.Require().ErrorIs(err, device.ErrServiceNotSupported)
	s.Contains(FormatUserError(err), "device does not expose the control service")
	s.True(p.Client().Closed(), "link MUST be cancelled when the service is missing")
}

func (s *ControlTestSuite) TestInvalidHexIsRejectedBeforeConnecting() {
	p := s.WithPeripheral(TestDeviceAddress1, nil)

	_, err := s.ExecuteCommand("control", TestDeviceAddress1, "--write", "ZZ", "--hex")

	s.Require().ErrorContains(err, "invalid hex data")
	s.Equal(0, p.Dials())
}

func (s *ControlTestSuite) TestHoldReportsLinkLoss() {
	// GOAL: Verify --hold keeps the link and fails with connection lost when it drops
	//
	// TEST SCENARIO: --hold → ready → peripheral drops link → ErrConnectionLost

	p := s.WithPeripheral(TestDeviceAddress1, []byte{0x01})

	run := s.StartCommand("control", TestDeviceAddress1, "--hold")
	s.WaitFor(func() bool {
		return strings.Contains(run.Stderr.String(), "ready "+TestDeviceAddress1)
	}, "device MUST become ready")

	p.DropLink()

	s.Require().ErrorIs(run.Wait(), ErrConnectionLost)
	s.Contains(run.Stderr.String(), "disconnected "+TestDeviceAddress1+" (link_loss)")
}

func TestControlTestSuite(t *testing.T) {
	suite.Run(t, new(ControlTestSuite))
}

func TestParseWriteData(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hex      bool
		expected []byte
		wantErr  bool
	}{
		{name: "raw string", input: "high", expected: []byte("high")},
		{name: "hex no separators", input: "0102FF", hex: true, expected: []byte{0x01, 0x02, 0xFF}},
		{name: "hex with spaces", input: "01 02 FF", hex: true, expected: []byte{0x01, 0x02, 0xFF}},
		{name: "mixed separators", input: "0x01:02-03 04", hex: true, expected: []byte{0x01, 0x02, 0x03, 0x04}},
		{name: "odd length", input: "ABC", hex: true, wantErr: true},
		{name: "non-hex characters", input: "ZZ", hex: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := parseWriteData(tt.input, tt.hex)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("MUST reject %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("MUST parse %q: %v", tt.input, err)
			}
			if string(data) != string(tt.expected) {
				t.Errorf("decoded bytes MUST match: got %X, want %X", data, tt.expected)
			}
		})
	}
}
