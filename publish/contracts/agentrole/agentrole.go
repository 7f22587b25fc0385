// Package agentrole binds the Ownable and AgentRole surface shared by the
// T-REX token and its registries.
package agentrole

import "github.com/lmittmann/w3"

var (
	FuncOwner             = w3.MustNewFunc("owner()", "address")
	FuncTransferOwnership = w3.MustNewFunc("transferOwnership(address)", "")
	FuncIsAgent           = w3.MustNewFunc("isAgent(address)", "bool")
	FuncAddAgent          = w3.MustNewFunc("addAgent(address)", "")
	FuncRemoveAgent       = w3.MustNewFunc("removeAgent(address)", "")
)
