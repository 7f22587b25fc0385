package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/sony/gobreaker"

	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
)

// RevertError is an on-chain call or transaction that reverted. Reason holds
// the decoded Error(string)/Panic(uint256) message or the name of a known
// custom error; Data keeps the raw revert payload when the node returned it.
type RevertError struct {
	Reason   string
	Selector [4]byte
	Data     []byte
	TxHash   common.Hash
}

func (e *RevertError) Error() string {
	var b strings.Builder
	b.WriteString("execution reverted")
	switch {
	case e.Reason != "":
		b.WriteString(": " + e.Reason)
	case len(e.Data) >= 4:
		b.WriteString(": custom error " + hexutil.Encode(e.Selector[:]))
	}
	if e.TxHash != (common.Hash{}) {
		b.WriteString(" (tx " + e.TxHash.Hex() + ")")
	}
	return b.String()
}

var (
	selectorError = [4]byte{0x08, 0xc3, 0x79, 0xa0}
	selectorPanic = [4]byte{0x4e, 0x48, 0x7b, 0x71}

	// custom errors emitted by the OpenZeppelin 5 base contracts some suites
	// are compiled against
	knownErrors = customErrors(
		"EnforcedPause()",
		"ExpectedPause()",
		"OwnableUnauthorizedAccount(address)",
		"OwnableInvalidOwner(address)",
		"AccessControlUnauthorizedAccount(address,bytes32)",
		"InvalidInitialization()",
		"NotInitializing()",
	)
)

func customErrors(sigs ...string) map[[4]byte]string {
	out := make(map[[4]byte]string, len(sigs))
	for _, sig := range sigs {
		var sel [4]byte
		copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
		out[sel] = sig[:strings.IndexByte(sig, '(')]
	}
	return out
}

// DecodeRevert decodes a raw revert payload.
func DecodeRevert(data []byte) *RevertError {
	rev := &RevertError{Data: data}
	if len(data) < 4 {
		return rev
	}
	copy(rev.Selector[:], data[:4])
	switch rev.Selector {
	case selectorError, selectorPanic:
		if reason, err := abi.UnpackRevert(data); err == nil {
			rev.Reason = reason
		}
	default:
		rev.Reason = knownErrors[rev.Selector]
	}
	return rev
}

// AsRevert extracts a RevertError from err, including node errors that only
// carry the reason in their message.
func AsRevert(err error) (*RevertError, bool) {
	if err == nil {
		return nil, false
	}
	var rev *RevertError
	if errors.As(err, &rev) {
		return rev, true
	}
	var callErrs w3.CallErrors
	if errors.As(err, &callErrs) {
		for _, e := range callErrs {
			if rev, ok := AsRevert(e); ok {
				return rev, true
			}
		}
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				return DecodeRevert(data), true
			}
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimPrefix(msg[i+len("execution reverted"):], ":")
		return &RevertError{Reason: strings.TrimSpace(reason)}, true
	}
	if strings.Contains(msg, "VM Exception while processing transaction: revert") {
		reason := msg[strings.Index(msg, "revert")+len("revert"):]
		return &RevertError{Reason: strings.Trim(strings.TrimSpace(reason), "'")}, true
	}
	return nil, false
}

// IsPauseRevert reports whether err is a revert caused by a whenNotPaused
// style guard.
func IsPauseRevert(err error) bool {
	rev, ok := AsRevert(err)
	if !ok {
		return false
	}
	r := strings.ToLower(rev.Reason)
	return rev.Reason == "EnforcedPause" || strings.Contains(r, "paused") && !strings.Contains(r, "not paused")
}

// IsAgentRoleRevert reports whether err is a revert caused by an onlyAgent
// guard.
func IsAgentRoleRevert(err error) bool {
	rev, ok := AsRevert(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(rev.Reason), "agent role")
}

var transientMarkers = []string{
	"nonce too low",
	"replacement transaction underpriced",
	"already known",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"timeout",
	"too many requests",
	"eof",
	"503",
	"502",
}

// classify turns an RPC failure into a RevertError, a TransientRPCError or
// a plain wrapped error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if rev, ok := AsRevert(err); ok {
		return rev
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &trexerr.TransientRPCError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &trexerr.TransientRPCError{Op: op, Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return &trexerr.TransientRPCError{Op: op, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
