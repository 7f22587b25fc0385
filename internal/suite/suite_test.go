package suite

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
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/telemetry"
	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/agentrole"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/identityregistry"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/identityregistrystorage"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/onchainid"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/token"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	wallet  = common.HexToAddress("0x86DF4B738D592c31F4A9A657D6c8d6D05DC1D462")
	fromIR  = common.HexToAddress("0x1111111111111111111111111111111111110001")
	fromIRS = common.HexToAddress("0x1111111111111111111111111111111111110002")
	idf     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

type call struct {
	to  common.Address
	sig string
}

type fakeCaller struct {
	answers map[call][]any
	calls   []call
}

func (f *fakeCaller) Call(_ context.Context, _, to common.Address, fn *w3.Func, _ ...any) ([]any, error) {
	c := call{to, fn.Signature}
	f.calls = append(f.calls, c)
	out, ok := f.answers[c]
	if !ok {
		return nil, errors.New("unexpected call " + fn.Signature)
	}
	return out, nil
}

type fakeSigner struct {
	addr common.Address
	sent []call
}

func (f *fakeSigner) Address() common.Address { return f.addr }

func (f *fakeSigner) Transact(_ context.Context, to common.Address, fn *w3.Func, _ ...any) (*types.Receipt, error) {
	f.sent = append(f.sent, call{to, fn.Signature})
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeSigner) SimulateFunc(context.Context, common.Address, *w3.Func, ...any) error {
	return nil
}

func (f *fakeSigner) DeployContract(context.Context, string, []byte, []byte) (common.Address, error) {
	return common.Address{}, errors.New("not expected")
}

func resolved(v deployment.ContractVersion, withFactory bool) deployment.Resolved {
	caps, _ := deployment.CapabilitiesFor(v, "")
	rec := deployment.Record{
		Core: deployment.Core{
			Token:                   common.HexToAddress("0x01"),
			IdentityRegistry:        common.HexToAddress("0x02"),
			Compliance:              common.HexToAddress("0x03"),
			IdentityRegistryStorage: common.HexToAddress("0x04"),
			ClaimTopicsRegistry:     common.HexToAddress("0x05"),
			TrustedIssuersRegistry:  common.HexToAddress("0x06"),
		},
	}
	if withFactory {
		f := idf
		rec.Infrastructure.IdentityFactory = &f
	}
	return deployment.Resolved{Record: rec, Capabilities: caps}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStoredIdentityFollowsCapabilities(t *testing.T) {
	caller := &fakeCaller{answers: map[call][]any{
		{common.HexToAddress("0x02"), identityregistry.FuncIdentity.Signature}:              {fromIR},
		{common.HexToAddress("0x04"), identityregistrystorage.FuncStoredIdentity.Signature}: {fromIRS},
	}}
	signer := &fakeSigner{addr: admin}

	v2 := New(caller, signer, resolved(deployment.V2, false), discard())
	got, err := v2.StoredIdentity(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, fromIRS, got)

	v1 := New(caller, signer, resolved(deployment.V1, false), discard())
	got, err = v1.StoredIdentity(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, fromIR, got)
}

func TestTransferNeedsInvestorKey(t *testing.T) {
	s := New(&fakeCaller{}, &fakeSigner{addr: admin}, resolved(deployment.V2, false), discard())

	err := s.Transfer(context.Background(), wallet, admin, big.NewInt(1))
	assert.ErrorIs(t, err, trexerr.ErrMissingKey)

	inv := &fakeSigner{addr: wallet}
	s = New(&fakeCaller{}, &fakeSigner{addr: admin}, resolved(deployment.V2, false), discard(), WithInvestor(inv))
	require.NoError(t, s.Transfer(context.Background(), wallet, admin, big.NewInt(1)))
	require.Len(t, inv.sent, 1)
	assert.Equal(t, token.FuncTransfer.Signature, inv.sent[0].sig)
}

func TestCreateIdentityThroughFactory(t *testing.T) {
	created := common.HexToAddress("0x1d01")
	caller := &fakeCaller{answers: map[call][]any{
		{idf, onchainid.FuncGetIdentity.Signature}: {created},
	}}
	signer := &fakeSigner{addr: admin}
	metrics := telemetry.NewMetrics()

	s := New(caller, signer, resolved(deployment.V2, true), discard(), WithMetrics(metrics))
	id, err := s.CreateIdentity(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, created, id)
	require.Len(t, signer.sent, 1)
	assert.Equal(t, call{idf, onchainid.FuncCreateIdentity.Signature}, signer.sent[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transactions.WithLabelValues("create identity")))
}

func TestCreateIdentityWithoutSource(t *testing.T) {
	s := New(&fakeCaller{}, &fakeSigner{addr: admin}, resolved(deployment.V1, false), discard())
	_, err := s.CreateIdentity(context.Background(), wallet)
	assert.ErrorIs(t, err, trexerr.ErrNoIdentitySource)

	id, err := s.LookupIdentity(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, id)
}

func TestWritesTargetRecordAddresses(t *testing.T) {
	signer := &fakeSigner{addr: admin}
	s := New(&fakeCaller{}, signer, resolved(deployment.V2, false), discard())
	ctx := context.Background()

	require.NoError(t, s.Unpause(ctx))
	require.NoError(t, s.AddAgent(ctx, deployment.IdentityRegistry, admin))
	require.NoError(t, s.RegisterIdentity(ctx, wallet, fromIR, 724))
	require.NoError(t, s.Mint(ctx, wallet, big.NewInt(1000)))

	assert.Equal(t, []call{
		{common.HexToAddress("0x01"), token.FuncUnpause.Signature},
		{common.HexToAddress("0x02"), agentrole.FuncAddAgent.Signature},
		{common.HexToAddress("0x02"), identityregistry.FuncRegisterIdentity.Signature},
		{common.HexToAddress("0x01"), token.FuncMint.Signature},
	}, signer.sent)
}

func TestDeleteIdentityOnEveryVersion(t *testing.T) {
	for _, v := range []deployment.ContractVersion{deployment.V1, deployment.V2} {
		t.Run(v.String(), func(t *testing.T) {
			signer := &fakeSigner{addr: admin}
			s := New(&fakeCaller{}, signer, resolved(v, false), discard())

			require.NoError(t, s.DeleteIdentity(context.Background(), wallet))
			require.Len(t, signer.sent, 1)
			assert.Equal(t, call{common.HexToAddress("0x02"), identityregistry.FuncDeleteIdentity.Signature}, signer.sent[0])
		})
	}
}
