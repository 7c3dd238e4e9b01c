package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/stretchr/testify/suite"
)

// FakeTransportSuite provides a testify suite with a scripted BLE transport.
//
// Basic usage (powered-on adapter, default target peripheral advertising):
//
//	type SessionSuite struct {
//	    testutils.FakeTransportSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
// Custom GATT layout:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180F").
//	        WithCharacteristic("2A19", "read")
//
//	    s.FakeTransportSuite.SetupTest() // Call parent last to apply configuration
//	}
type FakeTransportSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// TestTimeout bounds every Eventually-style wait.
	TestTimeout time.Duration

	// InitialState is the adapter state the transport starts in.
	InitialState device.AdapterState

	PeripheralBuilder *PeripheralBuilder
	Advertisements    []device.Advertisement

	Transport *FakeTransport
}

// SetupSuite is called once before all tests in the suite.
func (s *FakeTransportSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second
	s.Logger.Debug("Suite setup completed")
}

// SetupTest builds a fresh transport before each test.
func (s *FakeTransportSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = DefaultTargetPeripheral()
	}
	if s.InitialState == device.AdapterUnknown {
		s.InitialState = device.AdapterPoweredOn
	}
	if s.Advertisements == nil {
		s.Advertisements = []device.Advertisement{
			CreateMockAdvertisement(TargetName, TargetAddress, -40).WithServices(TargetServiceUUID).Build(),
		}
	}

	s.Transport = NewFakeTransport(s.InitialState, s.PeripheralBuilder.Build(), s.Logger).
		WithAdvertisements(s.Advertisements...)

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the configuration after each test.
func (s *FakeTransportSuite) TearDownTest() {
	s.PeripheralBuilder = nil
	s.Advertisements = nil
	s.InitialState = device.AdapterUnknown
	s.Transport = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *FakeTransportSuite) WithPeripheral() *PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralBuilder()
	}
	return s.PeripheralBuilder
}

// WaitFor waits up to TestTimeout for cond.
func (s *FakeTransportSuite) WaitFor(cond func() bool, msgAndArgs ...interface{}) {
	s.Require().Eventually(cond, s.TestTimeout, 5*time.Millisecond, msgAndArgs...)
}
