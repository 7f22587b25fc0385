package claimtopicsregistry

import "github.com/lmittmann/w3"

const name = "ClaimTopicsRegistry"

// Claim topics configured on every suite.
const (
	TopicKYC        = 1
	TopicAccredited = 2
)

var (
	FuncInit           = w3.MustNewFunc("init()", "")
	FuncAddClaimTopic  = w3.MustNewFunc("addClaimTopic(uint256)", "")
	FuncGetClaimTopics = w3.MustNewFunc("getClaimTopics()", "uint256[]")
)

func Name() string { return name }
