package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blepwn/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unexpected},
		{"unknown", errors.New("boom"), Unexpected},
		{"service", fmt.Errorf("discover: %w", device.ErrServiceNotFound), ServiceNotFound},
		{"characteristic", device.ErrCharacteristicNotFound, CharacteristicNotFound},
		{"connect timeout", fmt.Errorf("%w: AA after 1s", device.ErrConnectTimeout), ConnectTimeout},
		{"connect failed", fmt.Errorf("%w: AA: refused", device.ErrConnectFailed), ConnectFailed},
		{"write timeout", device.ErrWriteTimeout, WriteTimeout},
		{"write failed", device.ErrWriteFailed, WriteFailed},
		{"forced", device.ErrForcedDisconnect, PeripheralForcedDisconnect},
		{"dropped", device.ErrPeripheralDisconnected, PeripheralDisconnected},
		{"not connected", device.ErrNotConnected, PeripheralDisconnected},
		{"stale catalog", fmt.Errorf("char: %w", device.ErrStaleCatalog), PeripheralDisconnected},
		{"bluetooth off", device.ErrBluetoothOff, AdapterPoweredOff},
		{"unauthorized", device.ErrUnauthorized, AdapterUnauthorized},
		{"unsupported", device.ErrUnsupported, AdapterUnsupported},
		{"resetting", device.ErrAdapterResetting, AdapterResetting},
		{"classified", fmt.Errorf("wrapped: %w", &Error{Kind: NameMismatch}), NameMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("link lost")
	err := fmt.Errorf("session: %w", &Error{Kind: WriteTimeout, Op: "write payload 1", Err: cause})

	assert.ErrorIs(t, err, ErrorOf(WriteTimeout), "errors of the same kind MUST match")
	assert.NotErrorIs(t, err, ErrorOf(WriteFailed))
	assert.ErrorIs(t, err, cause, "the cause MUST stay reachable")
	assert.Equal(t, "session: write payload 1: write_timeout: link lost", err.Error())

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, WriteTimeout, se.Kind)
}

func TestClassifyKeepsExistingError(t *testing.T) {
	orig := &Error{Kind: CharacteristicNotFound, Op: "discover characteristics"}
	assert.Same(t, orig, classify("other", orig))

	e := classify("connect", device.ErrConnectTimeout)
	assert.Equal(t, ConnectTimeout, e.Kind)
	assert.Equal(t, "connect", e.Op)
}

func TestKindTraits(t *testing.T) {
	adapter := []Kind{AdapterPoweredOff, AdapterUnauthorized, AdapterUnsupported, AdapterResetting, AdapterUnknown}
	for _, k := range adapter {
		assert.Equal(t, AdapterLevel, k.Level(), "%s MUST be adapter level", k)
	}
	for _, k := range []Kind{NameMismatch, ServiceNotFound, WriteTimeout, PeripheralDisconnected} {
		assert.Equal(t, SessionLevel, k.Level(), "%s MUST be session level", k)
	}

	halting := map[Kind]bool{
		Unexpected:                 true,
		AdapterPoweredOff:          false,
		AdapterUnauthorized:        true,
		AdapterUnsupported:         true,
		AdapterResetting:           false,
		AdapterUnknown:             false,
		NameMismatch:               false,
		ServiceNotFound:            true,
		CharacteristicNotFound:     true,
		PeripheralDisconnected:     false,
		PeripheralForcedDisconnect: true,
		ConnectTimeout:             true,
		ConnectFailed:              true,
		WriteTimeout:               false,
		WriteFailed:                false,
	}
	for k, want := range halting {
		assert.Equal(t, want, k.Halting(), "Halting(%s)", k)
		assert.NotEmpty(t, k.String())
	}
}

func TestAdapterKind(t *testing.T) {
	_, failed := adapterKind(device.AdapterPoweredOn)
	assert.False(t, failed, "PoweredOn MUST NOT be a failure")

	k, failed := adapterKind(device.AdapterResetting)
	assert.True(t, failed)
	assert.Equal(t, AdapterResetting, k)
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, isCancellation(fmt.Errorf("connect: %w", context.Canceled)))
	assert.False(t, isCancellation(context.DeadlineExceeded))
}
