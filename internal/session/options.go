package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/srg/blepwn/internal/device"
)

// Default target and timeouts.
const (
	DefaultTargetName         = "Dropcam"
	DefaultServiceUUID        = "D2D3F8EF-9C99-4D9C-A2B3-91C85D44326C"
	DefaultCharacteristicUUID = "7606123e-4282-4ed4-aca1-2374de7fdb61"
	DefaultConnectTimeout     = 10 * time.Second
	DefaultDiscoverTimeout    = 10 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultEventBuffer        = 64
)

// Options configures a Controller.
type Options struct {
	// TargetName is matched exactly against the advertised local name.
	TargetName         string
	ServiceUUID        string
	CharacteristicUUID string

	ConnectTimeout  time.Duration
	DiscoverTimeout time.Duration
	// WriteTimeout applies to SendPayloads calls that pass no timeout.
	WriteTimeout time.Duration

	// AllowDuplicates reports repeated advertisements of the same device.
	AllowDuplicates bool
	// ScanServiceUUIDs narrows the scan (empty: every advertiser).
	ScanServiceUUIDs []string

	// EventBuffer sizes the controller's event queue.
	EventBuffer int
}

// DefaultOptions returns the options of the reference flow.
func DefaultOptions() Options {
	return Options{
		TargetName:         DefaultTargetName,
		ServiceUUID:        DefaultServiceUUID,
		CharacteristicUUID: DefaultCharacteristicUUID,
		ConnectTimeout:     DefaultConnectTimeout,
		DiscoverTimeout:    DefaultDiscoverTimeout,
		WriteTimeout:       DefaultWriteTimeout,
		AllowDuplicates:    true,
		EventBuffer:        DefaultEventBuffer,
	}
}

// Validate checks the options and fills zero timeouts with defaults.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.TargetName) == "" {
		return fmt.Errorf("target name is required")
	}
	if _, err := device.ValidateUUID(o.ServiceUUID, o.CharacteristicUUID); err != nil {
		return fmt.Errorf("invalid target UUID: %w", err)
	}
	if o.ConnectTimeout < 0 || o.DiscoverTimeout < 0 || o.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.DiscoverTimeout == 0 {
		o.DiscoverTimeout = DefaultDiscoverTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	return nil
}
