package identityregistry

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

const name = "IdentityRegistry"

var (
	funcInit = w3.MustNewFunc("init(address,address,address)", "")

	FuncIsVerified       = w3.MustNewFunc("isVerified(address)", "bool")
	FuncIdentity         = w3.MustNewFunc("identity(address)", "address")
	FuncRegisterIdentity = w3.MustNewFunc("registerIdentity(address,address,uint16)", "")
	FuncDeleteIdentity   = w3.MustNewFunc("deleteIdentity(address)", "")
	FuncIdentityStorage  = w3.MustNewFunc("identityStorage()", "address")
	FuncTopicsRegistry   = w3.MustNewFunc("topicsRegistry()", "address")
	FuncIssuersRegistry  = w3.MustNewFunc("issuersRegistry()", "address")
)

type InitArgs struct {
	TrustedIssuersRegistry  common.Address
	ClaimTopicsRegistry     common.Address
	IdentityRegistryStorage common.Address
}

func Name() string { return name }

func EncodeInit(args InitArgs) ([]byte, error) {
	return funcInit.EncodeArgs(args.TrustedIssuersRegistry, args.ClaimTopicsRegistry, args.IdentityRegistryStorage)
}
