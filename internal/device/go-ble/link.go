package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/groutine"
)

var errForeignHandle = errors.New("GATT handle does not belong to this link")

// Link is a device.Link over a go-ble client.
//
// go-ble calls are not cancellable, so each one runs on its own goroutine and
// the caller stops waiting when its context ends or the link goes away.
type Link struct {
	address string
	client  ble.Client
	logger  *logrus.Logger

	writeMu sync.Mutex // go-ble clients do not serialize ATT writes

	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

func newLink(address string, client ble.Client, logger *logrus.Logger) *Link {
	l := &Link{
		address: address,
		client:  client,
		logger:  logger,
		done:    make(chan struct{}),
	}

	// Disconnected() is only reliable on some backends.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "goble-link-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				if l.end(device.ErrPeripheralDisconnected) {
					l.logger.WithField("address", l.address).Warn("Peripheral reported disconnection")
				}
			case <-l.done:
			}
		})
	} else {
		l.logger.Debug("Client does not support Disconnected() channel")
	}
	return l
}

func (l *Link) Address() string { return l.address }

func (l *Link) Done() <-chan struct{} { return l.done }

func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close releases the connection. It is a no-op on a link that already ended.
func (l *Link) Close() error {
	if !l.end(device.ErrNotConnected) {
		return nil
	}
	l.logger.WithField("address", l.address).Debug("Cancelling BLE connection...")
	return NormalizeError(l.client.CancelConnection())
}

// drop ends the link with cause and tears the connection down.
func (l *Link) drop(cause error) {
	if !l.end(cause) {
		return
	}
	if err := l.client.CancelConnection(); err != nil {
		l.logger.WithFields(logrus.Fields{
			"address": l.address,
			"error":   err,
		}).Debug("Cancel connection after drop failed")
	}
}

// end records cause and closes Done. Only the first call wins.
func (l *Link) end(cause error) bool {
	ended := false
	l.once.Do(func() {
		l.mu.Lock()
		l.err = cause
		l.mu.Unlock()
		close(l.done)
		ended = true
	})
	return ended
}

func (l *Link) DiscoverServices(ctx context.Context, uuids []string) ([]device.RemoteService, error) {
	filter, err := parseUUIDs(uuids)
	if err != nil {
		return nil, err
	}

	var services []*ble.Service
	err = l.call(ctx, "goble-discover-services", func() error {
		var err error
		services, err = l.client.DiscoverServices(filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := make([]device.RemoteService, 0, len(services))
	for _, s := range services {
		result = append(result, &remoteService{svc: s})
	}
	return result, nil
}

func (l *Link) DiscoverCharacteristics(ctx context.Context, svc device.RemoteService, uuids []string) ([]device.RemoteCharacteristic, error) {
	rs, ok := svc.(*remoteService)
	if !ok {
		return nil, errForeignHandle
	}
	filter, err := parseUUIDs(uuids)
	if err != nil {
		return nil, err
	}

	var chars []*ble.Characteristic
	err = l.call(ctx, "goble-discover-characteristics", func() error {
		var err error
		chars, err = l.client.DiscoverCharacteristics(filter, rs.svc)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := make([]device.RemoteCharacteristic, 0, len(chars))
	for _, c := range chars {
		result = append(result, &remoteCharacteristic{char: c})
	}
	return result, nil
}

func (l *Link) WriteCharacteristic(ctx context.Context, c device.RemoteCharacteristic, data []byte, withResponse bool) error {
	rc, ok := c.(*remoteCharacteristic)
	if !ok {
		return errForeignHandle
	}
	payload := append([]byte(nil), data...)

	return l.call(ctx, "goble-write", func() error {
		l.writeMu.Lock()
		defer l.writeMu.Unlock()
		return l.client.WriteCharacteristic(rc.char, payload, !withResponse)
	})
}

// call runs fn on its own goroutine and waits for it, ctx or the end of the
// link, whichever comes first.
func (l *Link) call(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return l.Err()
	default:
	}

	errCh := make(chan error, 1)
	groutine.Go(ctx, name, func(context.Context) {
		errCh <- fn()
	})

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		select {
		case <-l.done:
			return fmt.Errorf("%w: %v", l.Err(), err)
		default:
			return NormalizeError(err)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return l.Err()
	}
}
