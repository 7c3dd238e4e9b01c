package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/notify"
)

var (
	errAdapterFeedClosed = errors.New("adapter state subscription ended")
	errScanEnded         = errors.New("scan ended before the target was found")
	errPeripheralLost    = errors.New("active peripheral vanished")
	errNotWritable       = errors.New("characteristic does not accept writes")
)

func (r *run) onAdapter(s device.AdapterState) {
	prev := r.adapter
	r.adapter = s
	r.c.logger.WithFields(logrus.Fields{
		"from":  prev.String(),
		"to":    s.String(),
		"phase": r.phase().String(),
	}).Info("Adapter state changed")

	kind, failed := adapterKind(s)
	if failed {
		r.fail(&Error{Kind: kind, Op: "adapter", Err: fmt.Errorf("adapter is %s", s)})
		return
	}

	r.reported = Unexpected
	switch {
	case r.phase() == WaitingForAdapter:
		r.startScan()
	case r.phase() == Ready && !r.writeEnabled.Load() && r.peripheral != nil:
		// Writes were revoked by a transient adapter fault; earn them back
		// with a fresh discovery cycle on the same connection.
		r.startDiscoverServices()
	}
}

func (r *run) startScan() {
	r.releasePeripheral()
	r.setPhase(Scanning)

	opts := device.ScanOptions{
		AllowDuplicates: r.c.opts.AllowDuplicates,
		ServiceUUIDs:    r.c.opts.ScanServiceUUIDs,
	}
	target := r.c.opts.TargetName
	logger := r.c.logger

	logger.WithFields(logrus.Fields{
		"target":           target,
		"allow_duplicates": opts.AllowDuplicates,
	}).Info("Scanning for target peripheral...")

	r.startStage("session-scan", func(ctx context.Context, token uint64) {
		err := r.c.transport.Scan(ctx, opts, func(adv device.Advertisement) {
			if adv.LocalName() != target {
				return
			}
			r.post(advEvent{token: token, adv: adv})
		})
		r.post(scanEnded{token: token, err: err})
	})
}

func (r *run) onAdvertisement(ev advEvent) {
	if !r.current(ev.token) || r.phase() != Scanning {
		return
	}
	if ev.adv.LocalName() != r.c.opts.TargetName {
		return
	}

	r.c.logger.WithFields(logrus.Fields{
		"address": ev.adv.Addr(),
		"name":    ev.adv.LocalName(),
		"rssi":    ev.adv.RSSI(),
	}).Info("Target peripheral found")

	p := device.NewPeripheral(ev.adv, r.c.transport, r.c.logger)
	p.SetObserver(func(state device.ConnectionState, cause error) {
		r.post(linkEvent{peripheral: p, state: state, cause: cause})
	})
	r.peripheral = p
	r.lastStatus = device.Disconnected
	r.reconnect = 1
	r.startConnect(false)
}

func (r *run) onScanEnded(ev scanEnded) {
	if !r.current(ev.token) || r.phase() != Scanning {
		return
	}
	if ev.err == nil {
		r.fail(&Error{Kind: Unexpected, Op: "scan", Err: errScanEnded})
		return
	}
	if isCancellation(ev.err) {
		return
	}
	r.fail(classify("scan", ev.err))
}

func (r *run) startConnect(reconnect bool) {
	p := r.peripheral
	r.service = nil
	r.char = nil
	r.setPhase(Connecting)

	timeout := r.c.opts.ConnectTimeout
	r.startStage("session-connect", func(ctx context.Context, token uint64) {
		var err error
		if reconnect {
			err = p.Reconnect(ctx, timeout)
		} else {
			err = p.Connect(ctx, timeout)
		}
		r.post(connectDone{token: token, reconnect: reconnect, err: err})
	})
}

func (r *run) onConnected(ev connectDone) {
	if !r.current(ev.token) {
		return
	}
	r.abortStage()

	switch {
	case ev.err == nil:
		r.startDiscoverServices()
	case isCancellation(ev.err):
	case ev.reconnect:
		r.fail(&Error{Kind: ServiceNotFound, Op: "reconnect", Err: ev.err})
	default:
		r.fail(classify("connect", ev.err))
	}
}

func (r *run) startDiscoverServices() {
	p := r.peripheral
	if p == nil {
		r.fail(&Error{Kind: Unexpected, Op: "discover services", Err: errPeripheralLost})
		return
	}
	r.service = nil
	r.char = nil
	r.setPhase(DiscoveringServices)

	uuid := r.c.opts.ServiceUUID
	timeout := r.c.opts.DiscoverTimeout
	r.startStage("session-discover-services", func(ctx context.Context, token uint64) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		services, err := p.DiscoverServices(ctx, uuid)
		ev := servicesDone{token: token, err: err}
		if err == nil {
			ev.service = services[0]
		} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			ev.err = &Error{Kind: ServiceNotFound, Op: "discover services", Err: err}
		}
		r.post(ev)
	})
}

func (r *run) onServices(ev servicesDone) {
	if !r.current(ev.token) || r.phase() != DiscoveringServices {
		return
	}
	r.abortStage()

	if ev.err != nil {
		if !isCancellation(ev.err) {
			r.fail(classify("discover services", ev.err))
		}
		return
	}

	r.c.logger.WithField("service_uuid", ev.service.UUID()).Info("Target service discovered")
	r.service = ev.service
	r.startDiscoverCharacteristics()
}

func (r *run) startDiscoverCharacteristics() {
	p := r.peripheral
	if p == nil || r.service == nil {
		r.fail(&Error{Kind: Unexpected, Op: "discover characteristics", Err: errPeripheralLost})
		return
	}
	r.setPhase(DiscoveringCharacteristics)

	catalog := p.Catalog()
	service := r.service.UUID()
	uuid := r.c.opts.CharacteristicUUID
	timeout := r.c.opts.DiscoverTimeout
	r.startStage("session-discover-characteristics", func(ctx context.Context, token uint64) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		chars, err := catalog.DiscoverCharacteristics(ctx, service, uuid)
		ev := characteristicDone{token: token, err: err}
		if err == nil {
			ev.char = chars[0]
		} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			ev.err = &Error{Kind: CharacteristicNotFound, Op: "discover characteristics", Err: err}
		}
		r.post(ev)
	})
}

func (r *run) onCharacteristic(ev characteristicDone) {
	if !r.current(ev.token) || r.phase() != DiscoveringCharacteristics {
		return
	}
	r.abortStage()

	if ev.err != nil {
		if !isCancellation(ev.err) {
			r.fail(classify("discover characteristics", ev.err))
		}
		return
	}
	if r.peripheral == nil {
		r.fail(&Error{Kind: Unexpected, Op: "discover characteristics", Err: errPeripheralLost})
		return
	}
	if !ev.char.Writable() {
		r.fail(&Error{
			Kind: CharacteristicNotFound,
			Op:   "discover characteristics",
			Err:  fmt.Errorf("%w: %s has properties %#02x", errNotWritable, ev.char.UUID(), ev.char.Properties()),
		})
		return
	}

	r.char = ev.char
	r.reconnect = 1
	r.setPhase(Ready)

	r.c.logger.WithFields(logrus.Fields{
		"address":             r.peripheral.ID(),
		"characteristic_uuid": ev.char.UUID(),
		"writable":            ev.char.Writable(),
		"catalog_generation":  r.peripheral.Catalog().Generation(),
	}).Info("Target characteristic ready")
	r.enableWrites()
}

func (r *run) onLink(ev linkEvent) {
	if ev.peripheral != r.peripheral {
		return
	}

	if ev.state != r.lastStatus {
		r.lastStatus = ev.state
		r.c.emit(notify.Event{Type: notify.StatusChanged, Status: ev.state})
	}

	if ev.state != device.Disconnected || ev.cause == nil {
		return
	}
	r.fail(classify("link", ev.cause))
}
