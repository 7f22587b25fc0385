// Package deployment persists and resolves the addresses of a deployed
// T-REX suite and creates new suites with either the manual or the factory
// strategy.
package deployment

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind tags how a suite was created. Records of different kinds are stored
// side by side and never substituted for one another.
type Kind string

const (
	KindFactory Kind = "factory"
	KindManual  Kind = "manual"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return "", nil
	case KindFactory, KindManual:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown deployment kind %q", s)
}

// Contract names one of the six core contracts of a suite.
type Contract string

const (
	Token                   Contract = "token"
	IdentityRegistry        Contract = "identityRegistry"
	Compliance              Contract = "compliance"
	IdentityRegistryStorage Contract = "identityRegistryStorage"
	ClaimTopicsRegistry     Contract = "claimTopicsRegistry"
	TrustedIssuersRegistry  Contract = "trustedIssuersRegistry"
)

// CoreContracts lists the core contracts in dependency order.
var CoreContracts = []Contract{
	ClaimTopicsRegistry,
	TrustedIssuersRegistry,
	IdentityRegistryStorage,
	IdentityRegistry,
	Compliance,
	Token,
}

type Network struct {
	Name    string `json:"name"`
	ChainID uint64 `json:"chainId"`
}

type Core struct {
	Token                   common.Address  `json:"token"`
	IdentityRegistry        common.Address  `json:"identityRegistry"`
	Compliance              common.Address  `json:"compliance"`
	IdentityRegistryStorage common.Address  `json:"identityRegistryStorage"`
	ClaimTopicsRegistry     common.Address  `json:"claimTopicsRegistry"`
	TrustedIssuersRegistry  common.Address  `json:"trustedIssuersRegistry"`
	TokenOnchainID          *common.Address `json:"tokenONChainID,omitempty"`
}

func (c Core) Address(name Contract) common.Address {
	switch name {
	case Token:
		return c.Token
	case IdentityRegistry:
		return c.IdentityRegistry
	case Compliance:
		return c.Compliance
	case IdentityRegistryStorage:
		return c.IdentityRegistryStorage
	case ClaimTopicsRegistry:
		return c.ClaimTopicsRegistry
	case TrustedIssuersRegistry:
		return c.TrustedIssuersRegistry
	}
	return common.Address{}
}

type Infrastructure struct {
	TREXFactory                 *common.Address `json:"trexFactory,omitempty"`
	TREXImplementationAuthority *common.Address `json:"trexImplementationAuthority,omitempty"`
	IdentityFactory             *common.Address `json:"identityFactory,omitempty"`
}

// Record is the persisted description of one deployment run. It is written
// once and never modified; later runs only read it.
type Record struct {
	Network          Network                   `json:"network"`
	DeploymentMethod Kind                      `json:"deploymentMethod"`
	Timestamp        time.Time                 `json:"timestamp"`
	Deployer         common.Address            `json:"deployer"`
	TokenOwner       common.Address            `json:"tokenOwner"`
	Agent            common.Address            `json:"agent"`
	Salt             string                    `json:"salt,omitempty"`
	Core             Core                      `json:"core"`
	Infrastructure   Infrastructure            `json:"infrastructure"`
	Implementations  map[string]common.Address `json:"implementations,omitempty"`
	OnchainIdentity  map[string]common.Address `json:"onchainIdentity,omitempty"`
}

// Validate checks that every core address is set.
func (r Record) Validate() error {
	if _, err := ParseKind(string(r.DeploymentMethod)); err != nil || r.DeploymentMethod == "" {
		return fmt.Errorf("record has invalid deploymentMethod %q", r.DeploymentMethod)
	}
	for _, c := range CoreContracts {
		if r.Core.Address(c) == (common.Address{}) {
			return fmt.Errorf("record is missing core.%s", c)
		}
	}
	return nil
}

// Addresses returns every contract address in the record that must carry
// code, keyed by a display name.
func (r Record) Addresses() map[string]common.Address {
	out := make(map[string]common.Address, len(CoreContracts)+3)
	for _, c := range CoreContracts {
		out[string(c)] = r.Core.Address(c)
	}
	if f := r.Infrastructure.TREXFactory; f != nil {
		out["trexFactory"] = *f
	}
	if a := r.Infrastructure.TREXImplementationAuthority; a != nil {
		out["trexImplementationAuthority"] = *a
	}
	if f := r.Infrastructure.IdentityFactory; f != nil {
		out["identityFactory"] = *f
	}
	return out
}
