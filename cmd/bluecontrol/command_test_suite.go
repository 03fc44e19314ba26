//go:build test

package main

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/devicefactory"
	"github.com/srg/bluecontrol/internal/testutils"
)

// Test device addresses for consistent fake peripheral identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// CommandTestSuite extends MockAdapterSuite with command testing utilities.
// All cmd/bluecontrol test suites should embed this instead of MockAdapterSuite.
type CommandTestSuite struct {
	testutils.MockAdapterSuite

	originalFactory func(*logrus.Logger) (device.Adapter, error)
}

// SetupTest routes the commands to the fake adapter and resets every flag
func (s *CommandTestSuite) SetupTest() {
	s.MockAdapterSuite.SetupTest()

	s.originalFactory = devicefactory.AdapterFactory
	devicefactory.AdapterFactory = func(*logrus.Logger) (device.Adapter, error) {
		return s.Adapter, nil
	}

	resetFlags(rootCmd)
}

// TearDownTest restores the platform adapter factory
func (s *CommandTestSuite) TearDownTest() {
	devicefactory.AdapterFactory = s.originalFactory
}

// CommandRun is a command started with StartCommand
type CommandRun struct {
	Stdout *lockedBuffer
	Stderr *lockedBuffer
	done   chan error
}

// Wait blocks until the command returns
func (r *CommandRun) Wait() error {
	return <-r.done
}

// ExecuteCommand runs the root command with args, returns stdout and error
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	run := s.StartCommand(args...)
	err := run.Wait()
	return run.Stdout.String(), err
}

// StartCommand runs the root command with args in the background
func (s *CommandTestSuite) StartCommand(args ...string) *CommandRun {
	run := &CommandRun{
		Stdout: &lockedBuffer{},
		Stderr: &lockedBuffer{},
		done:   make(chan error, 1),
	}
	rootCmd.SetOut(run.Stdout)
	rootCmd.SetErr(run.Stderr)
	rootCmd.SetArgs(args)
	go func() {
		run.done <- rootCmd.Execute()
	}()
	return run
}

// resetFlags restores every flag of cmd and its subcommands to its default
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers and readers
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
