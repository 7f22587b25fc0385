package bootstrap

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status values used across Report and PhaseResult.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Step names, in the order they are reached.
const (
	StepUnpaused           = "unpaused"
	StepAgentGranted       = "agent-granted"
	StepIssuerTrusted      = "issuer-trusted"
	StepIdentityRegistered = "identity-registered"
	StepClaimsIssued       = "claims-issued"
	StepTokensMinted       = "tokens-minted"
	StepTransferValidated  = "transfer-validated"
)

// Ordering is the sequence found to work between unpause and the agent
// grants for the deployed contracts.
type Ordering string

const (
	OrderAgentFirst   Ordering = "agent-first"
	OrderUnpauseFirst Ordering = "unpause-first"
	// OrderSatisfied: token already unpaused and caller already agent.
	OrderSatisfied Ordering = "already-satisfied"
)

// DefaultCountry is the ISO 3166 numeric code used for investors without one
// (Spain).
const DefaultCountry uint16 = 724

type Investor struct {
	Wallet common.Address
	// Identity is the ONCHAINID to register. When zero it is looked up in or
	// created through the suite's identity source.
	Identity common.Address
	Country  uint16
	// Amount is the target balance in whole tokens. Empty skips minting.
	Amount string
}

type Options struct {
	// Issuer defaults to the caller.
	Issuer      common.Address
	ClaimTopics []int64
	Investors   []Investor

	// TransferCheck sends TransferAmount from the first investor to the
	// second. It changes balances on every run.
	TransferCheck  bool
	TransferAmount string

	// RepairIdentities deletes stored-but-unverified identities before
	// registering again instead of failing.
	RepairIdentities bool

	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// Report is the aggregate result of a bootstrap run.
type Report struct {
	Status   string         `json:"status"`
	Caller   common.Address `json:"caller"`
	Ordering Ordering       `json:"ordering,omitempty"`
	Phases   []PhaseResult  `json:"phases"`
	Error    string         `json:"error,omitempty"`
}

// PhaseResult is the outcome of a single step for one target.
type PhaseResult struct {
	Name     string `json:"name"`
	Target   string `json:"target,omitempty"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Writes counts phases that changed chain state.
func (r *Report) Writes() int {
	n := 0
	for _, p := range r.Phases {
		if p.Status == StatusOK {
			n++
		}
	}
	return n
}
