package identityregistrystorage

import "github.com/lmittmann/w3"

const name = "IdentityRegistryStorage"

var (
	FuncInit                 = w3.MustNewFunc("init()", "")
	FuncBindIdentityRegistry = w3.MustNewFunc("bindIdentityRegistry(address)", "")
	FuncStoredIdentity       = w3.MustNewFunc("storedIdentity(address)", "address")
)

func Name() string { return name }
