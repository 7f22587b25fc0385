package trustedissuersregistry

import "github.com/lmittmann/w3"

const name = "TrustedIssuersRegistry"

var (
	FuncInit                        = w3.MustNewFunc("init()", "")
	FuncAddTrustedIssuer            = w3.MustNewFunc("addTrustedIssuer(address,uint256[])", "")
	FuncUpdateIssuerClaimTopics     = w3.MustNewFunc("updateIssuerClaimTopics(address,uint256[])", "")
	FuncIsTrustedIssuer             = w3.MustNewFunc("isTrustedIssuer(address)", "bool")
	FuncGetTrustedIssuerClaimTopics = w3.MustNewFunc("getTrustedIssuerClaimTopics(address)", "uint256[]")
)

func Name() string { return name }
