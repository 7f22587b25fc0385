package main

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
)

// parsePrivateKey reads a hex key with or without 0x. The key itself never
// appears in the returned error.
func parsePrivateKey(field, v string) (*ecdsa.PrivateKey, common.Address, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, common.Address{}, trexerr.Configuration(trexerr.ErrInvalidKey, field,
			"64 hex characters", fmt.Sprintf("%d characters", len(v)))
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

func parseAddress(field, v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, trexerr.Configuration(trexerr.ErrInvalidAddress, field, "hex address", v)
	}
	return common.HexToAddress(v), nil
}

// optionalAddress is parseAddress that maps an empty value to the zero
// address.
func optionalAddress(field, v string) (common.Address, error) {
	if strings.TrimSpace(v) == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, v)
}

// parseAddressList splits a comma-separated flag value. Empty entries are
// skipped; a bad entry is reported as field[i].
func parseAddressList(field, input string) ([]common.Address, error) {
	var out []common.Address
	for _, part := range strings.Split(input, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, len(out)), part)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
