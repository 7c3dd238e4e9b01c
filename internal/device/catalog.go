package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var catalogGeneration atomic.Uint64

// ServiceCatalog holds the services and characteristics discovered over one
// connection. It is created when a peripheral connects and goes stale when
// that connection ends; a stale catalog answers every call with
// ErrStaleCatalog and is never refilled.
type ServiceCatalog struct {
	link       Link
	logger     *logrus.Logger
	generation uint64

	mu       sync.RWMutex
	stale    bool
	services *orderedmap.OrderedMap[string, *ServiceRecord] // discovery order
}

func newServiceCatalog(link Link, logger *logrus.Logger) *ServiceCatalog {
	return &ServiceCatalog{
		link:       link,
		logger:     logger,
		generation: catalogGeneration.Add(1),
		services:   orderedmap.New[string, *ServiceRecord](),
	}
}

// Generation is unique per catalog within the process.
func (c *ServiceCatalog) Generation() uint64 {
	return c.generation
}

// Stale reports whether the connection this catalog belongs to has ended.
func (c *ServiceCatalog) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

func (c *ServiceCatalog) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale {
		return
	}
	c.stale = true
	c.logger.WithFields(logrus.Fields{
		"generation": c.generation,
		"services":   c.services.Len(),
	}).Debug("Service catalog invalidated")
	c.services = orderedmap.New[string, *ServiceRecord]()
}

// Len returns the number of discovered services.
func (c *ServiceCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services.Len()
}

// Services returns discovered services in discovery order.
func (c *ServiceCatalog) Services() []*ServiceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*ServiceRecord, 0, c.services.Len())
	for pair := c.services.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Service looks up a discovered service. No discovery is performed.
func (c *ServiceCatalog) Service(uuid string) (*ServiceRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stale {
		return nil, ErrStaleCatalog
	}
	svc, ok := c.services.Get(NormalizeUUID(uuid))
	if !ok {
		return nil, &NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

// Characteristic looks up a discovered characteristic. No discovery is performed.
func (c *ServiceCatalog) Characteristic(service, uuid string) (*Characteristic, error) {
	svc, err := c.Service(service)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	char, ok := svc.characteristics.Get(NormalizeUUID(uuid))
	if !ok {
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return char, nil
}

// discoverServices asks the link for the filtered services and records the
// ones actually found. Fails with a service NotFoundError when none match.
func (c *ServiceCatalog) discoverServices(ctx context.Context, uuids []string) ([]*ServiceRecord, error) {
	if c.Stale() {
		return nil, ErrStaleCatalog
	}

	filter := NormalizeUUIDs(uuids)
	c.logger.WithField("filter", filter).Debug("Discovering services...")

	remote, err := c.link.DiscoverServices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stale {
		return nil, ErrStaleCatalog
	}

	var found []*ServiceRecord
	for _, rs := range remote {
		id := NormalizeUUID(rs.UUID())
		if !containsUUID(filter, id) {
			continue
		}
		rec, ok := c.services.Get(id)
		if !ok {
			rec = &ServiceRecord{
				uuid:            id,
				remote:          rs,
				catalog:         c,
				characteristics: orderedmap.New[string, *Characteristic](),
			}
			c.services.Set(id, rec)
		}
		found = append(found, rec)
	}

	if len(found) == 0 {
		return nil, &NotFoundError{Resource: "service", UUIDs: uuids}
	}

	c.logger.WithFields(logrus.Fields{
		"found":      len(found),
		"generation": c.generation,
	}).Debug("Services discovered")
	return found, nil
}

// DiscoverCharacteristics discovers the filtered characteristics of a service
// that an earlier DiscoverServices already found. Fails with a characteristic
// NotFoundError when none match.
func (c *ServiceCatalog) DiscoverCharacteristics(ctx context.Context, service string, uuids ...string) ([]*Characteristic, error) {
	svc, err := c.Service(service)
	if err != nil {
		return nil, err
	}

	filter := NormalizeUUIDs(uuids)
	c.logger.WithFields(logrus.Fields{
		"service_uuid": svc.uuid,
		"filter":       filter,
	}).Debug("Discovering characteristics...")

	remote, err := c.link.DiscoverCharacteristics(ctx, svc.remote, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of service %s: %w", svc.uuid, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stale {
		return nil, ErrStaleCatalog
	}

	var found []*Characteristic
	for _, rc := range remote {
		id := NormalizeUUID(rc.UUID())
		if !containsUUID(filter, id) {
			continue
		}
		char, ok := svc.characteristics.Get(id)
		if !ok {
			char = &Characteristic{
				uuid:        id,
				serviceUUID: svc.uuid,
				remote:      rc,
				catalog:     c,
			}
			svc.characteristics.Set(id, char)
		}
		found = append(found, char)
	}

	if len(found) == 0 {
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: append([]string{service}, uuids...)}
	}
	return found, nil
}

// ServiceRecord is a discovered GATT service.
type ServiceRecord struct {
	uuid            string
	remote          RemoteService
	catalog         *ServiceCatalog
	characteristics *orderedmap.OrderedMap[string, *Characteristic] // guarded by catalog.mu
}

// UUID returns the normalized service UUID.
func (s *ServiceRecord) UUID() string {
	return s.uuid
}

// Characteristics returns the discovered characteristics in discovery order.
func (s *ServiceRecord) Characteristics() []*Characteristic {
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()

	result := make([]*Characteristic, 0, s.characteristics.Len())
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Characteristic is a discovered GATT characteristic, the addressable unit for writes.
type Characteristic struct {
	uuid        string
	serviceUUID string
	remote      RemoteCharacteristic
	catalog     *ServiceCatalog
}

func (c *Characteristic) UUID() string        { return c.uuid }
func (c *Characteristic) ServiceUUID() string { return c.serviceUUID }

// Properties returns the characteristic's GATT properties.
func (c *Characteristic) Properties() Property {
	return c.remote.Properties()
}

// Writable reports whether the characteristic accepts writes.
func (c *Characteristic) Writable() bool {
	return c.remote.Properties().Writable()
}

// Write sends data with a hard deadline. Write-with-response is used when the
// characteristic supports it, so a nil return means the peripheral acknowledged.
// Expiry yields ErrWriteTimeout; cancelling ctx yields ctx's error.
func (c *Characteristic) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	if c.catalog.Stale() {
		return fmt.Errorf("characteristic %s: %w", c.uuid, ErrStaleCatalog)
	}
	if !c.Writable() {
		return fmt.Errorf("%w: characteristic %s does not support write operations", ErrWriteFailed, c.uuid)
	}

	withResponse := c.Properties()&PropWrite != 0

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.catalog.link.WriteCharacteristic(wctx, c.remote, data, withResponse)
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(wctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return fmt.Errorf("%w: characteristic %s after %v", ErrWriteTimeout, c.uuid, timeout)
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrPeripheralDisconnected), errors.Is(err, ErrForcedDisconnect):
		return err
	default:
		return fmt.Errorf("%w: characteristic %s: %w", ErrWriteFailed, c.uuid, err)
	}
}
