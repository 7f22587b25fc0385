package publish

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChainID  = 31337
	testEstimate = 100_000
)

var funcUnpause = w3.MustNewFunc("unpause()", "")

// fakeEth is the eth namespace of a node that mines every sent transaction
// after a number of empty receipt polls.
type fakeEth struct {
	mu sync.Mutex

	nonce        uint64
	callErr      error
	status       uint64
	contract     common.Address
	pendingPolls int
	receiptErrs  []error

	methods []string
	sent    []*types.Transaction
	polls   int
}

func (f *fakeEth) record(method string) {
	f.methods = append(f.methods, method)
}

func (f *fakeEth) Call(_ context.Context, _ map[string]any, _ *json.RawMessage, _ *json.RawMessage) (hexutil.Bytes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("eth_call")
	return hexutil.Bytes{}, f.callErr
}

func (f *fakeEth) EstimateGas(_ context.Context, _ map[string]any, _ *json.RawMessage) (hexutil.Uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("eth_estimateGas")
	return testEstimate, nil
}

func (f *fakeEth) GetTransactionCount(_ context.Context, _ common.Address, _ *json.RawMessage) (hexutil.Uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("eth_getTransactionCount")
	return hexutil.Uint64(f.nonce), nil
}

func (f *fakeEth) SendRawTransaction(_ context.Context, raw hexutil.Bytes) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("eth_sendRawTransaction")
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	f.sent = append(f.sent, tx)
	return tx.Hash(), nil
}

func (f *fakeEth) GetTransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("eth_getTransactionReceipt")
	f.polls++
	if len(f.receiptErrs) > 0 {
		err := f.receiptErrs[0]
		f.receiptErrs = f.receiptErrs[1:]
		return nil, err
	}
	if f.polls <= f.pendingPolls {
		return nil, nil
	}
	return &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            f.status,
		CumulativeGasUsed: testEstimate,
		GasUsed:           testEstimate,
		Logs:              []*types.Log{},
		TxHash:            hash,
		ContractAddress:   f.contract,
		BlockNumber:       big.NewInt(1),
	}, nil
}

func newTestDeployer(t *testing.T, node *fakeEth) *Deployer {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", node))
	t.Cleanup(srv.Stop)

	client := &Client{
		client:       w3.NewClient(rpc.DialInProc(srv)),
		breaker:      newBreaker("test"),
		pollInterval: time.Millisecond,
	}
	t.Cleanup(func() { client.Close() })

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewDeployer(client, testChainID, key, big.NewInt(2_000_000_000), big.NewInt(1_000_000_000))
}

func TestTransactSimulatesSendsAndWaits(t *testing.T) {
	node := &fakeEth{nonce: 7, status: types.ReceiptStatusSuccessful, pendingPolls: 2}
	d := newTestDeployer(t, node)
	to := common.HexToAddress("0x01")

	receipt, err := d.Transact(context.Background(), to, funcUnpause)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"eth_call",
		"eth_estimateGas",
		"eth_getTransactionCount",
		"eth_sendRawTransaction",
		"eth_getTransactionReceipt",
		"eth_getTransactionReceipt",
		"eth_getTransactionReceipt",
	}, node.methods)

	require.Len(t, node.sent, 1)
	tx := node.sent[0]
	assert.Equal(t, receipt.TxHash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(testEstimate+testEstimate*gasHeadroomPercent/100), tx.Gas())
	assert.Equal(t, &to, tx.To())
	assert.Equal(t, funcUnpause.Selector[:], tx.Data())

	from, err := types.Sender(types.NewLondonSigner(big.NewInt(testChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, d.Address(), from)
}

func TestTransactRevertedInSimulationSendsNothing(t *testing.T) {
	reason, err := funcErrorString.EncodeArgs("AgentRole: caller does not have the Agent role")
	require.NoError(t, err)
	node := &fakeEth{callErr: dataError{
		msg:  "execution reverted: AgentRole: caller does not have the Agent role",
		data: hexutil.Encode(reason),
	}}
	d := newTestDeployer(t, node)

	_, err = d.Transact(context.Background(), common.HexToAddress("0x01"), funcUnpause)
	require.Error(t, err)
	assert.True(t, IsAgentRoleRevert(err), err)
	assert.Empty(t, node.sent)
	assert.Equal(t, []string{"eth_call"}, node.methods)
}

func TestTransactFailedReceiptIsRevert(t *testing.T) {
	node := &fakeEth{status: types.ReceiptStatusFailed}
	d := newTestDeployer(t, node)

	receipt, err := d.Transact(context.Background(), common.HexToAddress("0x01"), funcUnpause)
	var rev *RevertError
	require.ErrorAs(t, err, &rev)
	require.Len(t, node.sent, 1)
	assert.Equal(t, node.sent[0].Hash(), rev.TxHash)
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestDeployContractAppendsConstructorArgs(t *testing.T) {
	deployed := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	node := &fakeEth{status: types.ReceiptStatusSuccessful, contract: deployed}
	d := newTestDeployer(t, node)

	addr, err := d.DeployContract(context.Background(), "Token", []byte{0x60, 0x80}, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, deployed, addr)

	require.Len(t, node.sent, 1)
	assert.Nil(t, node.sent[0].To())
	assert.Equal(t, []byte{0x60, 0x80, 0x01, 0x02}, node.sent[0].Data())
}

func TestDeployContractFallsBackToCreateAddress(t *testing.T) {
	node := &fakeEth{nonce: 3, status: types.ReceiptStatusSuccessful}
	d := newTestDeployer(t, node)

	addr, err := d.DeployContract(context.Background(), "Token", []byte{0x60, 0x80}, nil)
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(d.Address(), 3), addr)
}

func TestDeployContractFailedReceipt(t *testing.T) {
	node := &fakeEth{status: types.ReceiptStatusFailed}
	d := newTestDeployer(t, node)

	_, err := d.DeployContract(context.Background(), "Token", []byte{0x60, 0x80}, nil)
	var rev *RevertError
	require.ErrorAs(t, err, &rev)
	assert.ErrorContains(t, err, "Token deployment failed")
}

func TestWaitForReceiptStopsWithContext(t *testing.T) {
	node := &fakeEth{status: types.ReceiptStatusSuccessful, pendingPolls: 1 << 30}
	d := newTestDeployer(t, node)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.WaitForReceipt(ctx, common.HexToHash("0xaa"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, node.polls, 1)
}

func TestWaitForReceiptKeepsPollingThroughTransientErrors(t *testing.T) {
	node := &fakeEth{
		status:      types.ReceiptStatusSuccessful,
		receiptErrs: []error{errors.New("503 service unavailable"), errors.New("i/o timeout")},
	}
	d := newTestDeployer(t, node)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := d.WaitForReceipt(ctx, common.HexToHash("0xaa"))
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xaa"), receipt.TxHash)
	assert.Equal(t, 3, node.polls)
}

func TestWaitForReceiptStopsOnPermanentError(t *testing.T) {
	node := &fakeEth{
		status:      types.ReceiptStatusSuccessful,
		receiptErrs: []error{errors.New("method handler crashed")},
	}
	d := newTestDeployer(t, node)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := d.WaitForReceipt(ctx, common.HexToHash("0xaa"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "method handler crashed")
	assert.NoError(t, ctx.Err())
	assert.Equal(t, 1, node.polls)
}
