package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/notify"
	"github.com/srg/blepwn/internal/session"
	"github.com/srg/blepwn/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var (
	payload1 = []byte{0x01, 0x02, 0x03}
	payload2 = []byte{0xCA, 0xFE}
)

type ControllerTestSuite struct {
	testutils.FakeTransportSuite

	opts       session.Options
	recorder   *notify.Recorder
	controller *session.Controller
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) SetupTest() {
	s.FakeTransportSuite.SetupTest()

	s.opts = session.DefaultOptions()
	s.opts.TargetName = testutils.TargetName
	s.opts.ServiceUUID = testutils.TargetServiceUUID
	s.opts.CharacteristicUUID = testutils.TargetCharacteristicUUID
	s.opts.ConnectTimeout = 300 * time.Millisecond
	s.opts.DiscoverTimeout = 300 * time.Millisecond
	s.opts.WriteTimeout = 300 * time.Millisecond

	s.recorder = notify.NewRecorder(0)
	s.controller = nil
}

func (s *ControllerTestSuite) TearDownTest() {
	if s.controller != nil {
		s.controller.Deactivate()
	}
	s.FakeTransportSuite.TearDownTest()
}

// start creates and activates a controller with the current options.
func (s *ControllerTestSuite) start() *session.Controller {
	c, err := session.New(s.Transport, s.recorder, s.opts, s.Logger)
	s.Require().NoError(err, "MUST create controller")
	s.controller = c
	s.Require().NoError(c.Activate(), "MUST activate")
	return c
}

func (s *ControllerTestSuite) waitPhase(phase session.Phase) (session.State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	defer cancel()
	return s.controller.Wait(ctx, phase)
}

// waitFault waits for the session to fault and returns the halting error.
func (s *ControllerTestSuite) waitFault() (session.State, error) {
	// Deactivated is never reached on its own, so Wait only returns on a fault.
	return s.waitPhase(session.Deactivated)
}

func (s *ControllerTestSuite) requirePhase(phase session.Phase) session.State {
	st, err := s.waitPhase(phase)
	s.Require().NoError(err, "MUST reach %s", phase)
	return st
}

// startReady activates and waits until writes are accepted.
func (s *ControllerTestSuite) startReady() *testutils.FakeLink {
	c := s.start()
	s.requirePhase(session.Ready)
	s.WaitFor(c.Ready, "controller MUST accept writes")
	link := s.Transport.LastLink()
	s.Require().NotNil(link)
	return link
}

func (s *ControllerTestSuite) failures() []notify.Event {
	var out []notify.Event
	for _, e := range s.recorder.Drain() {
		if e.Type == notify.OperationFailed {
			out = append(out, e)
		}
	}
	return out
}

func (s *ControllerTestSuite) TestRoundTripToReady() {
	// GOAL: Verify the pipeline walks adapter → scan → connect → discovery → Ready
	//
	// TEST SCENARIO: Powered adapter, target advertising → Ready with target
	// characteristic → exactly one CharacteristicReady preceded by the link status

	s.startReady()

	st := s.controller.State()
	s.Equal(session.Ready, st.Phase)
	s.Equal(testutils.TargetAddress, st.Peripheral)
	s.Equal(device.NormalizeUUID(testutils.TargetServiceUUID), device.NormalizeUUID(st.Service))
	s.Equal(device.NormalizeUUID(testutils.TargetCharacteristicUUID), device.NormalizeUUID(st.Characteristic))

	events := s.recorder.Drain()
	s.Require().Len(events, 3, "MUST emit Connecting, Connected, CharacteristicReady: %v", events)
	s.Equal(notify.StatusChanged, events[0].Type)
	s.Equal(device.Connecting, events[0].Status)
	s.Equal(notify.StatusChanged, events[1].Type)
	s.Equal(device.Connected, events[1].Status)
	s.Equal(notify.CharacteristicReady, events[2].Type)

	s.Equal(1, s.Transport.ScanCount())
	s.Equal(1, s.Transport.DialCount())
	s.False(s.Transport.Scanning(), "scan MUST stop once the target is found")
}

func (s *ControllerTestSuite) TestNameMismatch() {
	s.Advertisements = []device.Advertisement{
		testutils.CreateMockAdvertisement("Nest Cam", "11:22:33:44:55:66", -30).Build(),
	}
	s.FakeTransportSuite.SetupTest()

	// GOAL: Verify advertisements of other devices are discarded silently
	//
	// TEST SCENARIO: Only foreign names advertised → no dial, no event → target
	// appears → session proceeds to Ready

	c := s.start()
	s.requirePhase(session.Scanning)
	s.WaitFor(s.Transport.Scanning, "scan MUST be running")

	for i := 0; i < 5; i++ {
		s.Transport.Advertise(testutils.CreateMockAdvertisement("dropcam", "11:22:33:44:55:77", -30).Build())
		s.Transport.Advertise(testutils.CreateMockAdvertisement("", "11:22:33:44:55:88", -30).Build())
	}
	time.Sleep(50 * time.Millisecond)

	s.Equal(session.Scanning, c.State().Phase)
	s.Equal(0, s.Transport.DialCount(), "foreign advertisements MUST NOT be dialed")
	s.Equal(0, s.recorder.Total(), "a name mismatch MUST NOT be reported")

	s.Require().True(s.Transport.Advertise(
		testutils.CreateMockAdvertisement(testutils.TargetName, testutils.TargetAddress, -45).Build()))
	s.requirePhase(session.Ready)
}

func (s *ControllerTestSuite) TestSingleConnectOutstanding() {
	// GOAL: Verify repeated advertisements never start a second connect
	//
	// TEST SCENARIO: First dial blocks → target keeps advertising → one dial
	// attempted → release → Ready

	release := make(chan struct{})
	profile := testutils.DefaultTargetPeripheral().Build()
	s.Transport.QueueDial(func(ctx context.Context, address string) (device.Link, error) {
		select {
		case <-release:
			return testutils.NewFakeLink(address, profile), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	s.opts.ConnectTimeout = s.TestTimeout

	c := s.start()
	s.requirePhase(session.Connecting)

	target := testutils.CreateMockAdvertisement(testutils.TargetName, testutils.TargetAddress, -40).Build()
	for i := 0; i < 10; i++ {
		s.Transport.Advertise(target)
	}
	time.Sleep(50 * time.Millisecond)

	s.Equal(1, s.Transport.DialCount(), "only one connect MUST be outstanding")
	s.Equal(session.Connecting, c.State().Phase)

	close(release)
	s.requirePhase(session.Ready)
	s.Equal(1, s.Transport.DialCount())
}

func (s *ControllerTestSuite) TestSendPayloads() {
	s.Run("writes both payloads in order", func() {
		// GOAL: Verify payload2 follows an acknowledged payload1 and success is announced
		//
		// TEST SCENARIO: Ready → SendPayloads → two acknowledged writes → PwnSuccess → Ready

		link := s.startReady()
		s.recorder.Drain()

		err := s.controller.SendPayloads(context.Background(), payload1, payload2, 0)
		s.Require().NoError(err)

		writes := link.Writes()
		s.Require().Len(writes, 2)
		s.Equal(payload1, writes[0].Data)
		s.Equal(payload2, writes[1].Data)
		s.True(writes[0].WithResponse, "writes MUST request acknowledgement")
		s.Equal(device.NormalizeUUID(testutils.TargetCharacteristicUUID), writes[0].Characteristic)

		s.Equal(1, s.recorder.Count(notify.PwnSuccess))
		s.Equal(session.Ready, s.controller.State().Phase)
		s.Equal(0, s.controller.PendingWrites())
	})

	s.Run("payload2 is never sent after payload1 fails", func() {
		// GOAL: Verify a failed first write stops the sequence and is reported
		//
		// TEST SCENARIO: Writes fail → SendPayloads returns WriteFailed → one write
		// attempted → session stays Ready with writes enabled

		s.TearDownTest()
		s.SetupTest()
		link := s.startReady()
		s.recorder.Drain()
		s.Transport.SetWriteBehavior(testutils.WriteFail(errors.New("att: insufficient authentication")))

		err := s.controller.SendPayloads(context.Background(), payload1, payload2, 0)
		s.Require().Error(err)
		s.ErrorIs(err, session.ErrorOf(session.WriteFailed))

		s.Len(link.Writes(), 1, "payload2 MUST NOT be sent")
		s.Equal(0, s.recorder.Count(notify.PwnSuccess))

		failures := s.failures()
		s.Require().Len(failures, 1)
		s.Equal(session.WriteFailed.String(), failures[0].Kind)

		s.Equal(session.Ready, s.controller.State().Phase)
		s.True(s.controller.Ready(), "a write failure MUST NOT revoke writes")
	})

	s.Run("write timeout", func() {
		// GOAL: Verify an unacknowledged write fails with WriteTimeout
		//
		// TEST SCENARIO: Writes hang → SendPayloads with 100ms timeout → WriteTimeout

		s.TearDownTest()
		s.SetupTest()
		link := s.startReady()
		s.Transport.SetWriteBehavior(testutils.WriteHang)

		start := time.Now()
		err := s.controller.SendPayloads(context.Background(), payload1, payload2, 100*time.Millisecond)
		s.ErrorIs(err, session.ErrorOf(session.WriteTimeout))
		s.Less(time.Since(start), s.TestTimeout)
		s.Len(link.Writes(), 1)
		s.Equal(session.Ready, s.controller.State().Phase)
	})

	s.Run("caller cancellation is not reported", func() {
		// GOAL: Verify a caller giving up gets its context error and no failure event
		//
		// TEST SCENARIO: Writes hang → caller ctx cancelled → context.Canceled → Ready

		s.TearDownTest()
		s.SetupTest()
		s.startReady()
		s.recorder.Drain()
		s.Transport.SetWriteBehavior(testutils.WriteHang)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		err := s.controller.SendPayloads(ctx, payload1, payload2, s.TestTimeout)
		s.ErrorIs(err, context.Canceled)
		s.Empty(s.failures())
		s.requirePhase(session.Ready)
	})

	s.Run("rejected outside Ready", func() {
		// GOAL: Verify writes are refused until the characteristic is ready
		//
		// TEST SCENARIO: Inactive controller → ErrNotReady; scanning controller → ErrNotReady

		s.TearDownTest()
		s.Advertisements = []device.Advertisement{}
		s.SetupTest()

		c, err := session.New(s.Transport, s.recorder, s.opts, s.Logger)
		s.Require().NoError(err)
		s.controller = c
		s.ErrorIs(c.SendPayloads(context.Background(), payload1, payload2, 0), session.ErrNotReady)

		s.Require().NoError(c.Activate())
		s.requirePhase(session.Scanning)
		s.ErrorIs(c.SendPayloads(context.Background(), payload1, payload2, 0), session.ErrNotReady)
		s.Equal(session.Scanning, c.State().Phase)
	})

	s.Run("pending write fails on deactivate", func() {
		// GOAL: Verify Deactivate answers an in-flight SendPayloads with ErrDeactivated
		//
		// TEST SCENARIO: Writes hang → SendPayloads pending → Deactivate → ErrDeactivated

		s.TearDownTest()
		s.SetupTest()
		s.startReady()
		s.recorder.Drain()
		s.Transport.SetWriteBehavior(testutils.WriteHang)

		result := make(chan error, 1)
		go func() {
			result <- s.controller.SendPayloads(context.Background(), payload1, payload2, s.TestTimeout)
		}()
		s.WaitFor(func() bool { return s.controller.PendingWrites() == 1 }, "write MUST be in flight")

		s.controller.Deactivate()

		select {
		case err := <-result:
			s.ErrorIs(err, session.ErrDeactivated)
		case <-time.After(s.TestTimeout):
			s.Fail("SendPayloads MUST return after Deactivate")
		}
		s.Empty(s.failures(), "deactivation MUST NOT be reported as a failure")
	})
}

func (s *ControllerTestSuite) TestAdapterResetDuringDiscovery() {
	// GOAL: Verify a reset mid-discovery discards the peripheral and restarts from scan
	//
	// TEST SCENARIO: Discovery stalls → adapter Resetting → AdapterResetting reported,
	// reset requested, WaitingForAdapter → PoweredOn → fresh scan → Ready

	s.Transport.SetDiscoverBehavior(testutils.DiscoverHang)
	s.opts.DiscoverTimeout = s.TestTimeout

	c := s.start()
	s.requirePhase(session.DiscoveringServices)
	first := s.Transport.LastLink()
	s.Require().NotNil(first)

	s.Transport.SetDiscoverBehavior(nil)
	s.Transport.SetState(device.AdapterResetting)

	s.requirePhase(session.WaitingForAdapter)
	s.WaitFor(first.Closed, "stale peripheral MUST be released")
	s.WaitFor(func() bool { return s.Transport.ResetCount() == 1 }, "adapter reset MUST be requested")
	last, ok := s.recorder.Last(notify.StatusChanged)
	s.Require().True(ok)
	s.Equal(device.Disconnected, last.Status, "released peripheral MUST be announced as Disconnected")

	failures := s.failures()
	s.Require().Len(failures, 1)
	s.Equal(session.AdapterResetting.String(), failures[0].Kind)

	s.Transport.SetState(device.AdapterPoweredOn)
	s.requirePhase(session.Ready)
	s.Equal(2, s.Transport.ScanCount(), "recovery MUST rescan")
	s.Len(s.Transport.Links(), 2)
	s.True(c.Ready())
	s.Transport.AssertCalled(s.T(), "Reset", mock.Anything)
	// Connecting, Connected, Disconnected, then Connecting, Connected on the new link.
	s.Equal(5, s.recorder.Count(notify.StatusChanged), "statuses MUST follow the link across the reset")
	last, ok = s.recorder.Last(notify.StatusChanged)
	s.Require().True(ok)
	s.Equal(device.Connected, last.Status)
}

func (s *ControllerTestSuite) TestAdapterStates() {
	s.Run("powered off while ready", func() {
		// GOAL: Verify power loss revokes writes and recovery starts over on power-on
		//
		// TEST SCENARIO: Ready → PoweredOff → WaitingForAdapter, CharacteristicUnavailable,
		// Disconnected and AdapterPoweredOff reported once → PoweredOn → Ready again

		link := s.startReady()
		s.recorder.Drain()
		statuses := s.recorder.Count(notify.StatusChanged)

		s.Transport.SetState(device.AdapterPoweredOff)
		s.requirePhase(session.WaitingForAdapter)
		s.WaitFor(link.Closed)
		s.False(s.controller.Ready())
		s.Equal(1, s.recorder.Count(notify.CharacteristicUnavailable))
		last, ok := s.recorder.Last(notify.StatusChanged)
		s.Require().True(ok, "power loss MUST announce the link status")
		s.Equal(device.Disconnected, last.Status)
		s.Equal(statuses+1, s.recorder.Count(notify.StatusChanged), "Disconnected MUST be announced once")

		failures := s.failures()
		s.Require().Len(failures, 1)
		s.Equal(session.AdapterPoweredOff.String(), failures[0].Kind)

		s.Transport.SetState(device.AdapterPoweredOn)
		s.requirePhase(session.Ready)
		s.WaitFor(s.controller.Ready)
		s.Equal(2, s.recorder.Count(notify.CharacteristicReady))
	})

	s.Run("unknown revokes writes until powered on", func() {
		// GOAL: Verify an Unknown adapter state suspends writes on the same connection
		//
		// TEST SCENARIO: Ready → Unknown → reported once, writes revoked, still Ready →
		// PoweredOn → rediscovery → writes enabled again without a new dial

		s.TearDownTest()
		s.SetupTest()
		s.startReady()
		s.recorder.Drain()

		s.Transport.SetState(device.AdapterUnknown)
		s.WaitFor(func() bool { return !s.controller.Ready() }, "writes MUST be revoked")
		s.Equal(session.Ready, s.controller.State().Phase)
		s.ErrorIs(s.controller.SendPayloads(context.Background(), payload1, payload2, 0), session.ErrNotReady)

		failures := s.failures()
		s.Require().Len(failures, 1)
		s.Equal(session.AdapterUnknown.String(), failures[0].Kind)

		s.Transport.SetState(device.AdapterPoweredOn)
		s.WaitFor(s.controller.Ready, "writes MUST be restored")
		s.Equal(1, s.Transport.DialCount(), "recovery MUST reuse the connection")
	})

	s.Run("unauthorized halts", func() {
		// GOAL: Verify an unauthorized adapter faults the session
		//
		// TEST SCENARIO: Adapter Unauthorized from the start → Faulted with AdapterUnauthorized

		s.TearDownTest()
		s.InitialState = device.AdapterUnauthorized
		s.SetupTest()
		s.start()

		st, err := s.waitFault()
		s.Require().Error(err)
		s.ErrorIs(err, session.ErrorOf(session.AdapterUnauthorized))
		s.Equal(session.Faulted, st.Phase)
		s.Equal(session.AdapterUnauthorized, st.Fault)
		s.Equal(0, s.Transport.ScanCount())
	})
}

func (s *ControllerTestSuite) TestDiscoveryFailures() {
	s.Run("service missing", func() {
		// GOAL: Verify a peripheral without the target service faults the session
		//
		// TEST SCENARIO: Profile lacks the service → Faulted ServiceNotFound → link released

		s.PeripheralBuilder = testutils.NewPeripheralBuilder().WithService("180F").WithCharacteristic("2A19", "read")
		s.FakeTransportSuite.SetupTest()
		s.start()

		st, err := s.waitFault()
		s.ErrorIs(err, session.ErrorOf(session.ServiceNotFound))
		s.Equal(session.ServiceNotFound, st.Fault)
		s.WaitFor(s.Transport.LastLink().Closed, "link MUST be released on fault")

		failures := s.failures()
		s.Require().Len(failures, 1)
		s.Equal(session.ServiceNotFound.String(), failures[0].Kind)
	})

	s.Run("characteristic missing", func() {
		// GOAL: Verify a service without the target characteristic faults the session
		//
		// TEST SCENARIO: Service present, characteristic absent → Faulted CharacteristicNotFound

		s.TearDownTest()
		s.SetupTest()
		s.PeripheralBuilder = testutils.CreateMockPeripheralFromJSON(`{
			"services": [
				{"uuid": %q, "characteristics": [{"uuid": "2A39", "properties": "write"}]}
			]
		}`, testutils.TargetServiceUUID)
		s.FakeTransportSuite.SetupTest()
		s.start()

		_, err := s.waitPhase(session.Ready)
		s.ErrorIs(err, session.ErrorOf(session.CharacteristicNotFound))
		s.Equal(0, s.recorder.Count(notify.CharacteristicReady))
	})

	s.Run("characteristic not writable", func() {
		// GOAL: Verify a matching characteristic without write support never reaches Ready
		//
		// TEST SCENARIO: Target characteristic is read/notify only → Faulted
		// CharacteristicNotFound → no CharacteristicReady, link released

		s.TearDownTest()
		s.SetupTest()
		s.PeripheralBuilder = testutils.CreateMockPeripheralFromJSON(`{
			"services": [
				{"uuid": %q, "characteristics": [{"uuid": %q, "properties": "read,notify"}]}
			]
		}`, testutils.TargetServiceUUID, testutils.TargetCharacteristicUUID)
		s.FakeTransportSuite.SetupTest()
		s.start()

		st, err := s.waitFault()
		s.ErrorIs(err, session.ErrorOf(session.CharacteristicNotFound))
		s.ErrorContains(err, "does not accept writes")
		s.Equal(session.Faulted, st.Phase)
		s.Equal(0, s.recorder.Count(notify.CharacteristicReady))
		s.False(s.controller.Ready())
		s.WaitFor(s.Transport.LastLink().Closed, "faulted session MUST release the link")
	})

	s.Run("connect timeout", func() {
		// GOAL: Verify a dial that never completes faults with ConnectTimeout
		//
		// TEST SCENARIO: Dial hangs → ConnectTimeout after the configured timeout

		s.TearDownTest()
		s.SetupTest()
		s.Transport.QueueDial(testutils.DialHang)
		s.opts.ConnectTimeout = 100 * time.Millisecond
		s.start()

		st, err := s.waitPhase(session.Ready)
		s.ErrorIs(err, session.ErrorOf(session.ConnectTimeout))
		s.Equal(session.Faulted, st.Phase)
	})
}

func (s *ControllerTestSuite) TestDisconnects() {
	s.Run("reconnects once after a drop", func() {
		// GOAL: Verify an unsolicited drop at Ready triggers one transparent reconnect
		//
		// TEST SCENARIO: Ready → link drops → CharacteristicUnavailable → reconnect →
		// Ready with a second CharacteristicReady and no failure report

		first := s.startReady()
		s.recorder.Drain()

		first.Drop(device.ErrPeripheralDisconnected)

		s.WaitFor(func() bool { return len(s.Transport.Links()) == 2 }, "MUST redial")
		s.requirePhase(session.Ready)
		s.WaitFor(s.controller.Ready)

		s.Equal(1, s.recorder.Count(notify.CharacteristicUnavailable))
		s.Equal(2, s.recorder.Count(notify.CharacteristicReady))
		s.Empty(s.failures(), "a recovered drop MUST NOT be reported")
		s.Equal(1, s.Transport.ScanCount(), "reconnect MUST NOT rescan")
	})

	s.Run("second failure halts as service not found", func() {
		// GOAL: Verify a failed reconnect ends the session
		//
		// TEST SCENARIO: Ready → drop → reconnect dial hangs → ServiceNotFound reported,
		// writes revoked, Faulted

		s.TearDownTest()
		s.SetupTest()
		s.opts.ConnectTimeout = 100 * time.Millisecond
		first := s.startReady()
		s.recorder.Drain()

		s.Transport.QueueDial(testutils.DialHang)
		first.Drop(device.ErrPeripheralDisconnected)

		st, err := s.waitFault()
		s.ErrorIs(err, session.ErrorOf(session.ServiceNotFound))
		s.Equal(session.ServiceNotFound, st.Fault)
		s.Equal(2, s.Transport.DialCount(), "exactly one reconnect MUST be attempted")
		s.False(s.controller.Ready())

		failures := s.failures()
		s.Require().Len(failures, 1)
		s.Equal(session.ServiceNotFound.String(), failures[0].Kind)
		s.Equal(1, s.recorder.Count(notify.CharacteristicUnavailable))
	})

	s.Run("forced disconnect halts", func() {
		// GOAL: Verify a transport-forced disconnect is not retried
		//
		// TEST SCENARIO: Ready → link force-dropped → Faulted PeripheralForcedDisconnect

		s.TearDownTest()
		s.SetupTest()
		link := s.startReady()

		link.Drop(device.ErrForcedDisconnect)

		_, err := s.waitFault()
		s.ErrorIs(err, session.ErrorOf(session.PeripheralForcedDisconnect))
		s.Equal(1, s.Transport.DialCount())
	})
}

func (s *ControllerTestSuite) TestLifecycle() {
	s.Run("deactivate while connecting", func() {
		// GOAL: Verify Deactivate cancels an in-flight connect without reporting it
		//
		// TEST SCENARIO: Dial hangs → Deactivate → Deactivated, no OperationFailed

		s.Transport.QueueDial(testutils.DialHang)
		s.opts.ConnectTimeout = s.TestTimeout
		c := s.start()
		s.requirePhase(session.Connecting)

		c.Deactivate()

		s.Equal(session.Deactivated, c.State().Phase)
		s.Equal(0, s.recorder.Count(notify.OperationFailed))
		_, err := s.waitPhase(session.Ready)
		s.ErrorIs(err, session.ErrDeactivated)
	})

	s.Run("reactivation starts a fresh session", func() {
		// GOAL: Verify a second activation reconnects with a fresh link
		//
		// TEST SCENARIO: Ready → Deactivate → link closed, Disconnected announced →
		// Activate → Ready on a new link

		s.TearDownTest()
		s.SetupTest()
		first := s.startReady()

		s.controller.Deactivate()
		s.True(first.Closed(), "deactivate MUST release the link")
		s.Equal(1, s.recorder.Count(notify.CharacteristicUnavailable))
		last, ok := s.recorder.Last(notify.StatusChanged)
		s.Require().True(ok)
		s.Equal(device.Disconnected, last.Status)

		s.Require().NoError(s.controller.Activate())
		s.requirePhase(session.Ready)
		s.Require().Len(s.Transport.Links(), 2)
		s.NotSame(first, s.Transport.LastLink())
		s.Equal(2, s.recorder.Count(notify.CharacteristicReady))
	})

	s.Run("activate is idempotent", func() {
		// GOAL: Verify Activate on a live session does not restart it
		//
		// TEST SCENARIO: Ready → Activate again → same link, one scan

		s.TearDownTest()
		s.SetupTest()
		s.startReady()

		s.Require().NoError(s.controller.Activate())
		s.Equal(session.Ready, s.controller.State().Phase)
		s.Equal(1, s.Transport.ScanCount())
		s.Equal(1, s.Transport.DialCount())
	})

	s.Run("activate after fault restarts", func() {
		// GOAL: Verify a faulted session can be activated again
		//
		// TEST SCENARIO: Connect times out → Faulted → Activate → Ready

		s.TearDownTest()
		s.SetupTest()
		s.Transport.QueueDial(testutils.DialHang)
		s.opts.ConnectTimeout = 100 * time.Millisecond
		c := s.start()
		_, err := s.waitPhase(session.Ready)
		s.Require().Error(err)

		s.Require().NoError(c.Activate())
		s.requirePhase(session.Ready)
	})
}
