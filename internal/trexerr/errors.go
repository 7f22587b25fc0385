// Package trexerr defines the failure classes surfaced by the deploy and
// bootstrap commands. Every fatal error carries the precondition that failed
// together with the observed and expected values so an operator can
// remediate by hand.
package trexerr

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoDeploymentFound      = errors.New("no deployment record found")
	ErrDeploymentKindMismatch = errors.New("deployment kind does not match target chain")
	ErrAmbiguousDeployment    = errors.New("deployment records of more than one kind match target chain")
	ErrChainMismatch          = errors.New("chain id mismatch")
	ErrMissingCode            = errors.New("address has no contract code")
	ErrMissingKey             = errors.New("private key not configured")
	ErrInvalidKey             = errors.New("invalid private key")
	ErrInvalidAddress         = errors.New("invalid address")
	ErrNoIdentitySource       = errors.New("no way to obtain an investor identity")
	ErrCircularPrecondition   = errors.New("unpause and addAgent block each other")
	ErrTimeout                = errors.New("bootstrap timed out")
)

// ConfigurationError is fatal and never retried.
type ConfigurationError struct {
	Reason   string
	Expected string
	Actual   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration: " + e.Reason
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(" (expected %s, observed %s)", e.Expected, e.Actual)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configuration builds a ConfigurationError wrapping a sentinel.
func Configuration(sentinel error, reason string, expected, actual any) error {
	return &ConfigurationError{
		Reason:   reason,
		Expected: fmt.Sprint(expected),
		Actual:   fmt.Sprint(actual),
		Err:      sentinel,
	}
}

// PermissionError reports an unexpected owner or a missing agent role.
type PermissionError struct {
	Contract string
	Check    string
	Expected string
	Actual   string
	Err      error
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission: %s on %s: expected %s, observed %s", e.Check, e.Contract, e.Expected, e.Actual)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PermissionError) Unwrap() error { return e.Err }

// StateInconsistencyError is the stored-identity-without-verification
// anomaly. It is remediated by deleteIdentity followed by a fresh
// registration, never by retrying the registration.
type StateInconsistencyError struct {
	Wallet         common.Address
	StoredIdentity common.Address
	Verified       bool
}

func (e *StateInconsistencyError) Error() string {
	return fmt.Sprintf(
		"inconsistent identity for %s: storage holds %s but isVerified=%t; run deleteIdentity before re-registering",
		e.Wallet.Hex(), e.StoredIdentity.Hex(), e.Verified,
	)
}

// TransientRPCError marks timeouts, dropped connections and nonce races.
// Callers re-read chain state before resubmitting a write.
type TransientRPCError struct {
	Op  string
	Err error
}

func (e *TransientRPCError) Error() string {
	return fmt.Sprintf("transient rpc error during %s: %v", e.Op, e.Err)
}

func (e *TransientRPCError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var t *TransientRPCError
	return errors.As(err, &t)
}
