//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/stretchr/testify/suite"
)

// MockAdapterSuite provides a reusable test suite backed by a FakeAdapter.
//
// Usage:
//
//	type ControlSuite struct {
//	    testutils.MockAdapterSuite
//	}
//
//	func (s *ControlSuite) SetupTest() {
//	    s.MockAdapterSuite.SetupTest()
//	    s.Adapter.AddPeripheral(testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:FF").
//	        WithControlProfile([]byte{0x01}).
//	        Build())
//	}
type MockAdapterSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	Adapter     *FakeAdapter
	TestTimeout time.Duration
}

// SetupTest creates a fresh adapter and logger for every test
func (s *MockAdapterSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Adapter = NewFakeAdapter()
	if s.TestTimeout == 0 {
		s.TestTimeout = 2 * time.Second
	}
}

// WithPeripheral registers a peripheral with the control profile at address
func (s *MockAdapterSuite) WithPeripheral(address string, value []byte) *FakePeripheral {
	p := NewPeripheralBuilder(address).WithControlProfile(value).Build()
	s.Adapter.AddPeripheral(p)
	return p
}

// NextReceiver waits for the adapter to start a scan, failing the test on timeout
func (s *MockAdapterSuite) NextReceiver() device.ScanReceiver {
	r, err := s.Adapter.NextReceiver(s.TestTimeout)
	s.Require().NoError(err, "scan MUST start on the adapter")
	return r
}

// WaitFor polls cond, failing the test with msg on timeout
func (s *MockAdapterSuite) WaitFor(cond func() bool, msg string) {
	s.Require().True(s.Helper.Eventually(cond, s.TestTimeout), msg)
}
