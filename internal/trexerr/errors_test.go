package trexerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestConfigurationWrapsSentinel(t *testing.T) {
	err := Configuration(ErrChainMismatch, "record network", 31337, 1)

	assert.ErrorIs(t, err, ErrChainMismatch)
	assert.Contains(t, err.Error(), "expected 31337, observed 1")

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestIsTransient(t *testing.T) {
	base := errors.New("connection reset by peer")
	wrapped := fmt.Errorf("read owner: %w", &TransientRPCError{Op: "eth_call", Err: base})

	assert.True(t, IsTransient(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsTransient(base))
	assert.False(t, IsTransient(&PermissionError{Contract: "token", Check: "owner"}))
}

func TestStateInconsistencyMessageNamesRemediation(t *testing.T) {
	err := &StateInconsistencyError{
		Wallet:         common.HexToAddress("0x86DF4B738D592c31F4A9A657D6c8d6D05DC1D462"),
		StoredIdentity: common.HexToAddress("0x1111111111111111111111111111111111110001"),
	}
	assert.Contains(t, err.Error(), "deleteIdentity")
	assert.Contains(t, err.Error(), "isVerified=false")
}

func TestPermissionErrorShowsObservedAndExpected(t *testing.T) {
	err := &PermissionError{
		Contract: "token",
		Check:    "owner",
		Expected: "0xA",
		Actual:   "0xB",
	}
	assert.Equal(t, "permission: owner on token: expected 0xA, observed 0xB", err.Error())
}
