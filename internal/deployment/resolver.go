package deployment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/publish"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/token"
)

// Inspector is the chain access needed to validate a record. Satisfied by
// *publish.Client.
type Inspector interface {
	ChainID(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	Call(ctx context.Context, from, to common.Address, fn *w3.Func, args ...any) ([]any, error)
}

// Resolved is a record that has been checked against the live chain.
type Resolved struct {
	Record       Record
	Capabilities Capabilities
}

type Resolver struct {
	store *Store
}

func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the newest record for chainID. With an explicit kind only
// records of that kind are considered and records for other chains produce
// ErrDeploymentKindMismatch. Without a kind, records of both kinds matching
// the chain are an error rather than a silent pick.
func (r *Resolver) Resolve(chainID uint64, kind Kind) (Record, error) {
	kinds := []Kind{kind}
	if kind == "" {
		kinds = []Kind{KindFactory, KindManual}
	}

	var (
		matches    []Record
		otherChain []uint64
	)
	for _, k := range kinds {
		recs, err := r.store.Records(k)
		if err != nil {
			return Record{}, fmt.Errorf("load %s records: %w", k, err)
		}
		var found bool
		for _, rec := range recs {
			if rec.Network.ChainID == chainID {
				// newest first, so the first hit is the one to use
				matches = append(matches, rec)
				found = true
				break
			}
		}
		if !found {
			for _, rec := range recs {
				otherChain = append(otherChain, rec.Network.ChainID)
			}
		}
	}

	switch {
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) > 1:
		return Record{}, trexerr.Configuration(trexerr.ErrAmbiguousDeployment,
			"set deployment_type to pick one", "one of factory, manual", "factory and manual")
	case kind != "" && len(otherChain) > 0:
		return Record{}, trexerr.Configuration(trexerr.ErrDeploymentKindMismatch,
			fmt.Sprintf("%s records exist only for other chains", kind), chainID, chainList(otherChain))
	default:
		observed := "none"
		if len(otherChain) > 0 {
			observed = chainList(otherChain)
		}
		return Record{}, trexerr.Configuration(trexerr.ErrNoDeploymentFound,
			fmt.Sprintf("no record in %s", r.store.Dir()), fmt.Sprintf("chain %d", chainID), observed)
	}
}

func chainList(ids []uint64) string {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		parts = append(parts, fmt.Sprintf("chain %d", id))
	}
	return strings.Join(parts, ", ")
}

// Inspect checks rec against the live chain: the node must report the
// record's chain id and every address must carry code. It then resolves the
// contract version once for the whole run.
func Inspect(ctx context.Context, chain Inspector, rec Record) (Resolved, error) {
	id, err := chain.ChainID(ctx)
	if err != nil {
		return Resolved{}, fmt.Errorf("read chain id: %w", err)
	}
	if id != rec.Network.ChainID {
		return Resolved{}, trexerr.Configuration(trexerr.ErrChainMismatch, "record network", rec.Network.ChainID, id)
	}

	addrs := rec.Addresses()
	names := make([]string, 0, len(addrs))
	for name := range addrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		code, err := chain.CodeAt(ctx, addrs[name])
		if err != nil {
			return Resolved{}, fmt.Errorf("read code of %s: %w", name, err)
		}
		if len(code) == 0 {
			return Resolved{}, trexerr.Configuration(trexerr.ErrMissingCode, name, "contract code", addrs[name].Hex()+" is empty")
		}
	}

	caps, err := detectCapabilities(ctx, chain, rec.Core.Token)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Record: rec, Capabilities: caps}, nil
}

func detectCapabilities(ctx context.Context, chain Inspector, tokenAddr common.Address) (Capabilities, error) {
	out, err := chain.Call(ctx, common.Address{}, tokenAddr, token.FuncVersion)
	if err != nil {
		if _, reverted := publish.AsRevert(err); reverted || errors.Is(err, publish.ErrEmptyReturn) {
			return CapabilitiesFor(V1, "")
		}
		return Capabilities{}, fmt.Errorf("read token version: %w", err)
	}
	label, _ := out[0].(string)
	if label == "" {
		return CapabilitiesFor(V1, "")
	}
	return CapabilitiesFor(V2, label)
}
