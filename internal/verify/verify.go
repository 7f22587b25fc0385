// Package verify holds the read-only consistency checks run before and after
// each bootstrap step and by the verify command.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
)

// Reader is the chain state the checks need. Satisfied by *suite.Suite.
type Reader interface {
	Owner(ctx context.Context, c deployment.Contract) (common.Address, error)
	IsAgent(ctx context.Context, c deployment.Contract, who common.Address) (bool, error)
	IsVerified(ctx context.Context, wallet common.Address) (bool, error)
	StoredIdentity(ctx context.Context, wallet common.Address) (common.Address, error)
}

// OwnedContracts are the Ownable contracts whose owner is checked by default.
var OwnedContracts = []deployment.Contract{
	deployment.Token,
	deployment.IdentityRegistry,
	deployment.TrustedIssuersRegistry,
	deployment.ClaimTopicsRegistry,
	deployment.Compliance,
}

type OwnerMatch struct {
	Contract deployment.Contract `json:"contract"`
	Owner    common.Address      `json:"owner"`
	Matches  bool                `json:"matches"`
}

// CheckOwnership reads the owner of every contract. The returned error joins
// one PermissionError per mismatch; the matches are returned either way.
func CheckOwnership(ctx context.Context, r Reader, contracts []deployment.Contract, expected common.Address) ([]OwnerMatch, error) {
	out := make([]OwnerMatch, 0, len(contracts))
	var errs []error
	for _, c := range contracts {
		owner, err := r.Owner(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("read owner of %s: %w", c, err)
		}
		m := OwnerMatch{Contract: c, Owner: owner, Matches: owner == expected}
		out = append(out, m)
		if !m.Matches {
			errs = append(errs, &trexerr.PermissionError{
				Contract: string(c),
				Check:    "owner",
				Expected: expected.Hex(),
				Actual:   owner.Hex(),
			})
		}
	}
	return out, errors.Join(errs...)
}

type AgentState int

const (
	AgentNone AgentState = iota
	// AgentPartial: agent on exactly one of token and identity registry.
	// Never a valid terminal state.
	AgentPartial
	AgentFull
)

func (s AgentState) String() string {
	switch s {
	case AgentNone:
		return "none"
	case AgentPartial:
		return "partial"
	case AgentFull:
		return "full"
	}
	return fmt.Sprintf("AgentState(%d)", int(s))
}

func (s AgentState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type AgentReport struct {
	Address          common.Address `json:"address"`
	Token            bool           `json:"token"`
	IdentityRegistry bool           `json:"identityRegistry"`
	State            AgentState     `json:"state"`
}

// Missing lists the contracts on which the address lacks the agent role.
func (a AgentReport) Missing() []deployment.Contract {
	var out []deployment.Contract
	if !a.Token {
		out = append(out, deployment.Token)
	}
	if !a.IdentityRegistry {
		out = append(out, deployment.IdentityRegistry)
	}
	return out
}

// Err is a PermissionError for every missing role, nil when full.
func (a AgentReport) Err() error {
	var errs []error
	for _, c := range a.Missing() {
		errs = append(errs, &trexerr.PermissionError{
			Contract: string(c),
			Check:    "agent role",
			Expected: "isAgent(" + a.Address.Hex() + ")=true",
			Actual:   "false",
		})
	}
	return errors.Join(errs...)
}

func CheckAgentConsistency(ctx context.Context, r Reader, who common.Address) (AgentReport, error) {
	rep := AgentReport{Address: who}
	var err error
	if rep.Token, err = r.IsAgent(ctx, deployment.Token, who); err != nil {
		return AgentReport{}, fmt.Errorf("read token agent: %w", err)
	}
	if rep.IdentityRegistry, err = r.IsAgent(ctx, deployment.IdentityRegistry, who); err != nil {
		return AgentReport{}, fmt.Errorf("read identity registry agent: %w", err)
	}
	switch {
	case rep.Token && rep.IdentityRegistry:
		rep.State = AgentFull
	case rep.Token || rep.IdentityRegistry:
		rep.State = AgentPartial
	default:
		rep.State = AgentNone
	}
	return rep, nil
}

type IdentityState int

const (
	IdentityUnregistered IdentityState = iota
	IdentityVerified
	// IdentityStoredUnverified: storage holds an identity but the registry
	// does not verify the wallet. Cleared with deleteIdentity, not retries.
	IdentityStoredUnverified
)

func (s IdentityState) String() string {
	switch s {
	case IdentityUnregistered:
		return "unregistered"
	case IdentityVerified:
		return "verified"
	case IdentityStoredUnverified:
		return "stored-unverified"
	}
	return fmt.Sprintf("IdentityState(%d)", int(s))
}

func (s IdentityState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type IdentityReport struct {
	Wallet   common.Address `json:"wallet"`
	Stored   common.Address `json:"storedIdentity"`
	Verified bool           `json:"verified"`
	State    IdentityState  `json:"state"`
}

// Anomaly returns the StateInconsistencyError for a stored but unverified
// identity and nil otherwise.
func (r IdentityReport) Anomaly() error {
	if r.State != IdentityStoredUnverified {
		return nil
	}
	return &trexerr.StateInconsistencyError{Wallet: r.Wallet, StoredIdentity: r.Stored, Verified: r.Verified}
}

func CheckIdentityConsistency(ctx context.Context, r Reader, wallet common.Address) (IdentityReport, error) {
	stored, err := r.StoredIdentity(ctx, wallet)
	if err != nil {
		return IdentityReport{}, fmt.Errorf("read stored identity of %s: %w", wallet.Hex(), err)
	}
	verified, err := r.IsVerified(ctx, wallet)
	if err != nil {
		return IdentityReport{}, fmt.Errorf("read verification of %s: %w", wallet.Hex(), err)
	}

	rep := IdentityReport{Wallet: wallet, Stored: stored, Verified: verified}
	switch {
	case verified:
		rep.State = IdentityVerified
	case stored != (common.Address{}):
		rep.State = IdentityStoredUnverified
	default:
		rep.State = IdentityUnregistered
	}
	return rep, nil
}
