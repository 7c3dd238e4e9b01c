package main

import (
	"bytes"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/devicefactory"
	"github.com/srg/blepwn/internal/testutils"
)

// CommandTestSuite extends FakeTransportSuite with command testing utilities.
// Every command runs against the suite's FakeTransport.
type CommandTestSuite struct {
	testutils.FakeTransportSuite
	originalFactory func(*logrus.Logger, time.Duration) (devicefactory.Transport, error)
}

func (s *CommandTestSuite) SetupSuite() {
	s.FakeTransportSuite.SetupSuite()
	s.originalFactory = devicefactory.TransportFactory
	devicefactory.TransportFactory = func(*logrus.Logger, time.Duration) (devicefactory.Transport, error) {
		return s.Transport, nil
	}
}

func (s *CommandTestSuite) TearDownSuite() {
	devicefactory.TransportFactory = s.originalFactory
}

// SetupTest restores every command flag to its default.
func (s *CommandTestSuite) SetupTest() {
	s.FakeTransportSuite.SetupTest()

	runCmd.ResetFlags()
	initRunFlags()
	scanCmd.ResetFlags()
	initScanFlags()
	s.Require().NoError(rootCmd.PersistentFlags().Set("log-level", ""))
	s.Require().NoError(rootCmd.PersistentFlags().Set("config", ""))
}

// ExecuteCommand runs the root command with args and returns its output.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}
