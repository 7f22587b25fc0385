// Package trexfactory binds TREXFactory and TREXImplementationAuthority,
// the pair used by the factory deployment strategy.
package trexfactory

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

const (
	FactoryName                 = "TREXFactory"
	ImplementationAuthorityName = "TREXImplementationAuthority"
)

var (
	funcFactoryConstructor   = w3.MustNewFunc("constructor(address,address)", "")
	funcAuthorityConstructor = w3.MustNewFunc("constructor(bool,address,address)", "")

	FuncDeployTREXSuite = w3.MustNewFunc(
		"deployTREXSuite(string _salt,"+
			"(address owner,string name,string symbol,uint8 decimals,address irs,address ONCHAINID,"+
			"address[] irAgents,address[] tokenAgents,address[] complianceModules,bytes[] complianceSettings) _tokenDetails,"+
			"(uint256[] claimTopics,address[] issuers,uint256[][] issuerClaims) _claimDetails)",
		"",
	)
	FuncGetToken = w3.MustNewFunc("getToken(string)", "address")

	FuncAddAndUseTREXVersion = w3.MustNewFunc(
		"addAndUseTREXVersion((uint8 major,uint8 minor,uint8 patch) _version,"+
			"(address tokenImplementation,address ctrImplementation,address irImplementation,"+
			"address irsImplementation,address tirImplementation,address mcImplementation) _trex)",
		"",
	)
)

type (
	// TokenDetails mirrors ITREXFactory.TokenDetails. Field names follow the
	// tuple component names.
	TokenDetails struct {
		Owner              common.Address
		Name               string
		Symbol             string
		Decimals           uint8
		Irs                common.Address
		ONCHAINID          common.Address
		IrAgents           []common.Address
		TokenAgents        []common.Address
		ComplianceModules  []common.Address
		ComplianceSettings [][]byte
	}

	ClaimDetails struct {
		ClaimTopics  []*big.Int
		Issuers      []common.Address
		IssuerClaims [][]*big.Int
	}

	Version struct {
		Major uint8
		Minor uint8
		Patch uint8
	}

	Implementations struct {
		TokenImplementation common.Address
		CtrImplementation   common.Address
		IrImplementation    common.Address
		IrsImplementation   common.Address
		TirImplementation   common.Address
		McImplementation    common.Address
	}
)

// SuiteVersion is the T-REX version registered with the implementation
// authority by the factory strategy.
var SuiteVersion = Version{Major: 4, Minor: 1, Patch: 6}

func EncodeFactoryConstructor(implementationAuthority, identityFactory common.Address) ([]byte, error) {
	return funcFactoryConstructor.Args.Pack(implementationAuthority, identityFactory)
}

// EncodeAuthorityConstructor encodes a reference authority with no parent
// factory or authority.
func EncodeAuthorityConstructor() ([]byte, error) {
	return funcAuthorityConstructor.Args.Pack(true, common.Address{}, common.Address{})
}
