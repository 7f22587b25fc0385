package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

const name = "Token"

var (
	funcInit = w3.MustNewFunc(
		"init(address,address,string,string,uint8,address)", "",
	)

	FuncPaused           = w3.MustNewFunc("paused()", "bool")
	FuncPause            = w3.MustNewFunc("pause()", "")
	FuncUnpause          = w3.MustNewFunc("unpause()", "")
	FuncMint             = w3.MustNewFunc("mint(address,uint256)", "")
	FuncTransfer         = w3.MustNewFunc("transfer(address,uint256)", "bool")
	FuncBalanceOf        = w3.MustNewFunc("balanceOf(address)", "uint256")
	FuncTotalSupply      = w3.MustNewFunc("totalSupply()", "uint256")
	FuncName             = w3.MustNewFunc("name()", "string")
	FuncSymbol           = w3.MustNewFunc("symbol()", "string")
	FuncDecimals         = w3.MustNewFunc("decimals()", "uint8")
	FuncVersion          = w3.MustNewFunc("version()", "string")
	FuncIdentityRegistry = w3.MustNewFunc("identityRegistry()", "address")
	FuncCompliance       = w3.MustNewFunc("compliance()", "address")
)

type InitArgs struct {
	IdentityRegistry common.Address
	Compliance       common.Address
	Name             string
	Symbol           string
	Decimals         uint8
	OnchainID        common.Address
}

func Name() string { return name }

func EncodeInit(args InitArgs) ([]byte, error) {
	return funcInit.EncodeArgs(args.IdentityRegistry, args.Compliance, args.Name, args.Symbol, args.Decimals, args.OnchainID)
}
