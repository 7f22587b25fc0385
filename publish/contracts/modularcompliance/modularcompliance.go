package modularcompliance

import "github.com/lmittmann/w3"

const name = "ModularCompliance"

var (
	FuncInit      = w3.MustNewFunc("init()", "")
	FuncBindToken = w3.MustNewFunc("bindToken(address)", "")
)

func Name() string { return name }
