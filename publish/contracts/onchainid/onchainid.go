// Package onchainid binds the ONCHAINID identity contracts shipped with
// @onchain-id/solidity: the Identity implementation, its authority, the
// identity proxy and the identity factory.
package onchainid

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

const (
	IdentityName                = "Identity"
	ImplementationAuthorityName = "ImplementationAuthority"
	IdentityProxyName           = "IdentityProxy"
	FactoryName                 = "IdFactory"
)

var (
	funcIdentityConstructor  = w3.MustNewFunc("constructor(address,bool)", "")
	funcAuthorityConstructor = w3.MustNewFunc("constructor(address)", "")
	funcProxyConstructor     = w3.MustNewFunc("constructor(address,address)", "")
	funcFactoryConstructor   = w3.MustNewFunc("constructor(address)", "")

	FuncCreateIdentity  = w3.MustNewFunc("createIdentity(address,string)", "address")
	FuncGetIdentity     = w3.MustNewFunc("getIdentity(address)", "address")
	FuncAddTokenFactory = w3.MustNewFunc("addTokenFactory(address)", "")
)

// EncodeIdentityConstructor encodes the library-mode implementation
// constructor: initialManagementKey plus isLibrary.
func EncodeIdentityConstructor(managementKey common.Address) ([]byte, error) {
	return funcIdentityConstructor.Args.Pack(managementKey, true)
}

func EncodeAuthorityConstructor(implementation common.Address) ([]byte, error) {
	return funcAuthorityConstructor.Args.Pack(implementation)
}

func EncodeProxyConstructor(authority, managementKey common.Address) ([]byte, error) {
	return funcProxyConstructor.Args.Pack(authority, managementKey)
}

func EncodeFactoryConstructor(authority common.Address) ([]byte, error) {
	return funcFactoryConstructor.Args.Pack(authority)
}

// Salt derives the createIdentity salt for an investor wallet.
func Salt(wallet common.Address) string {
	return "investor-" + wallet.Hex()
}
