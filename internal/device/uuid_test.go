package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit lowercase", input: "2902", expected: "2902"},
		{name: "16-bit with 0x prefix", input: "0x2902", expected: "2902"},
		{name: "16-bit with 0X prefix", input: "0X2A19", expected: "2a19"},
		{name: "SIG base with dashes", input: "00002902-0000-1000-8000-00805f9b34fb", expected: "2902"},
		{name: "SIG base without dashes", input: "0000290200001000800000805f9b34fb", expected: "2902"},
		{name: "SIG base uppercase", input: "0000180D-0000-1000-8000-00805F9B34FB", expected: "180d"},
		{name: "custom target service", input: "D2D3F8EF-9C99-4D9C-A2B3-91C85D44326C", expected: "d2d3f8ef9c994d9ca2b391c85d44326c"},
		{name: "custom target characteristic", input: "7606123e-4282-4ed4-aca1-2374de7fdb61", expected: "7606123e42824ed4aca12374de7fdb61"},
		{name: "32-bit", input: "12345678", expected: "12345678"},
		{name: "surrounding spaces", input: " 180F ", expected: "180f"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUID_NoShortening(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{name: "wrong prefix", input: "AA002902-0000-1000-8000-00805f9b34fb", reason: "prefix is not 0000"},
		{name: "wrong suffix", input: "00002902-1234-5678-9abc-def012345678", reason: "suffix is not the SIG base"},
		{name: "too long", input: "0000290200001000800000805f9b34fb00", reason: "34 chars, not 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeUUID(tt.input)
			assert.NotEqual(t, "2902", result, "MUST NOT shorten: %s", tt.reason)
			assert.Equal(t, strings.ToLower(strings.ReplaceAll(tt.input, "-", "")), result)
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	result := NormalizeUUIDs([]string{"2902", "0x180d", "00002a37-0000-1000-8000-00805f9b34fb"})
	assert.Equal(t, []string{"2902", "180d", "2a37"}, result)
}

func TestValidateUUID(t *testing.T) {
	t.Run("accepts and normalizes", func(t *testing.T) {
		got, err := ValidateUUID("180F", "D2D3F8EF-9C99-4D9C-A2B3-91C85D44326C")
		require.NoError(t, err)
		assert.Equal(t, []string{"180f", "d2d3f8ef9c994d9ca2b391c85d44326c"}, got)
	})

	t.Run("rejects empty list", func(t *testing.T) {
		_, err := ValidateUUID()
		assert.Error(t, err)
	})

	t.Run("rejects empty entry", func(t *testing.T) {
		_, err := ValidateUUID("180f", "")
		assert.ErrorContains(t, err, "index 1")
	})

	t.Run("rejects bad length", func(t *testing.T) {
		_, err := ValidateUUID("18f")
		assert.ErrorContains(t, err, "invalid UUID length")
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ValidateUUID("zz0f")
		assert.ErrorContains(t, err, "invalid UUID format")
	})
}
