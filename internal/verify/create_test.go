package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/agentrole"
)

// ownershipChain deploys contracts owned by the sender and applies
// transferOwnership, which is all CheckOwnership looks at.
type ownershipChain struct {
	from   common.Address
	next   int64
	owners map[common.Address]common.Address
}

func (c *ownershipChain) Address() common.Address { return c.from }

func (c *ownershipChain) DeployContract(context.Context, string, []byte, []byte) (common.Address, error) {
	c.next++
	a := common.BigToAddress(new(big.Int).SetInt64(0x1000 + c.next))
	c.owners[a] = c.from
	return a, nil
}

func (c *ownershipChain) Transact(_ context.Context, to common.Address, fn *w3.Func, args ...any) (*types.Receipt, error) {
	if fn.Signature == agentrole.FuncTransferOwnership.Signature {
		if c.owners[to] != c.from {
			return nil, errors.New("Ownable: caller is not the owner")
		}
		c.owners[to] = args[0].(common.Address)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (c *ownershipChain) TransactInput(context.Context, common.Address, []byte) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (c *ownershipChain) Call(context.Context, common.Address, common.Address, *w3.Func, ...any) ([]any, error) {
	return nil, errors.New("no reads on a manual create")
}

func (c *ownershipChain) Bytecode(string) ([]byte, error) { return []byte{0x60, 0x00}, nil }

func TestManualSuitePassesOwnershipCheck(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	chain := &ownershipChain{from: admin, owners: map[common.Address]common.Address{}}
	creator := deployment.NewCreator(chain, chain, deployment.NewStore(t.TempDir()), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec, err := creator.Create(context.Background(), deployment.KindManual, deployment.CreateParams{
		Network:     deployment.Network{Name: "localhost", ChainID: 31337},
		TokenOwner:  owner,
		Token:       deployment.TokenParams{Name: "T", Symbol: "T", Decimals: 18},
		ClaimTopics: []int64{1, 2},
	})
	require.NoError(t, err)

	r := &fakeReader{owners: map[deployment.Contract]common.Address{}}
	for _, c := range deployment.CoreContracts {
		r.owners[c] = chain.owners[rec.Core.Address(c)]
	}

	matches, err := CheckOwnership(context.Background(), r, OwnedContracts, rec.TokenOwner)
	require.NoError(t, err)
	for _, m := range matches {
		assert.True(t, m.Matches, m.Contract)
	}
	assert.Equal(t, owner, r.owners[deployment.IdentityRegistryStorage])
}
