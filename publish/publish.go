package publish

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
	"github.com/sony/gobreaker"

	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
)

// gas estimates are padded by this percentage before signing
const gasHeadroomPercent = 20

// ErrEmptyReturn is returned by Call when the target answered with no data,
// which is what a missing function on a contract without fallback looks like.
var ErrEmptyReturn = errors.New("empty return data")

type (
	DeployResult struct {
		TxHash          common.Hash
		ContractAddress common.Address
	}

	// Client is the read side of an RPC endpoint. All calls go through one
	// circuit breaker so a dead node fails fast instead of being hammered by
	// retries.
	Client struct {
		client       *w3.Client
		breaker      *gobreaker.CircuitBreaker
		pollInterval time.Duration
	}

	// Deployer signs and submits EIP-1559 transactions for a single key.
	// Every write is awaited to its receipt before returning.
	Deployer struct {
		*Client
		signer    types.Signer
		key       *ecdsa.PrivateKey
		address   common.Address
		gasFeeCap *big.Int
		gasTipCap *big.Int
	}
)

func Dial(rpcURL string, pollInterval time.Duration) (*Client, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{
		client:       client,
		breaker:      newBreaker(rpcURL),
		pollInterval: pollInterval,
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// reverts are answers, not endpoint failures
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			_, reverted := AsRevert(err)
			return reverted || errors.Is(err, context.Canceled)
		},
	})
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) call(ctx context.Context, op string, calls ...w3types.RPCCaller) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.CallCtx(ctx, calls...)
	})
	return classify(op, err)
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := c.call(ctx, "eth_chainId", eth.ChainID().Returns(&id)); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	if err := c.call(ctx, "eth_getCode", eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, err
	}
	return code, nil
}

func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := c.call(ctx, "eth_getBalance", eth.Balance(addr, nil).Returns(&balance)); err != nil {
		return nil, err
	}
	return balance, nil
}

// Call executes fn against the latest block as from and returns the decoded
// return values.
func (c *Client) Call(ctx context.Context, from, to common.Address, fn *w3.Func, args ...any) ([]any, error) {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", fn.Signature, err)
	}
	var output []byte
	msg := &w3types.Message{From: from, To: &to, Input: input}
	if err := c.call(ctx, "eth_call "+fn.Signature, eth.Call(msg, nil, nil).Returns(&output)); err != nil {
		return nil, err
	}
	if len(fn.Returns) == 0 {
		return nil, nil
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", fn.Signature, to.Hex(), ErrEmptyReturn)
	}
	values, err := fn.Returns.Unpack(output)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fn.Signature, err)
	}
	return values, nil
}

// Simulate runs input as an eth_call from the given sender and reports the
// decoded revert, if any. No state changes.
func (c *Client) Simulate(ctx context.Context, from, to common.Address, input []byte) error {
	var output []byte
	msg := &w3types.Message{From: from, To: &to, Input: input}
	return c.call(ctx, "simulate", eth.Call(msg, nil, nil).Returns(&output))
}

// WaitForReceipt polls until txHash is mined. Transient failures keep
// polling; any other error, or ctx ending, stops the wait.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.receipt(ctx, txHash)
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash.Hex(), ctx.Err())
		case err != nil && !trexerr.IsTransient(err):
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash.Hex(), err)
		case receipt != nil:
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// receipt returns nil without error while the transaction is pending. A
// pending transaction does not count against the breaker.
func (c *Client) receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.client.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&receipt))
		if err != nil && strings.Contains(err.Error(), "not found") {
			receipt = nil
			return nil, nil
		}
		return nil, err
	})
	return receipt, classify("eth_getTransactionReceipt", err)
}

func NewDeployer(c *Client, chainID int64, privateKey *ecdsa.PrivateKey, gasFeeCap, gasTipCap *big.Int) *Deployer {
	return &Deployer{
		Client:    c,
		signer:    types.NewLondonSigner(big.NewInt(chainID)),
		key:       privateKey,
		address:   crypto.PubkeyToAddress(privateKey.PublicKey),
		gasFeeCap: gasFeeCap,
		gasTipCap: gasTipCap,
	}
}

func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) getNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := d.call(ctx, "eth_getTransactionCount", eth.Nonce(d.address, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (d *Deployer) estimateGas(ctx context.Context, to *common.Address, input []byte) (uint64, error) {
	var gas uint64
	msg := &w3types.Message{From: d.address, To: to, Input: input}
	if err := d.call(ctx, "eth_estimateGas", eth.EstimateGas(msg, nil).Returns(&gas)); err != nil {
		return 0, err
	}
	return gas + gas*gasHeadroomPercent/100, nil
}

func (d *Deployer) sendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := types.SignTx(tx, d.signer, d.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	var txHash common.Hash
	if err := d.call(ctx, "eth_sendRawTransaction", eth.SendTx(signedTx).Returns(&txHash)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return txHash, nil
}

// DeployImplementation submits a contract creation without waiting for it.
// A zero gasLimit is replaced by a padded estimate.
func (d *Deployer) DeployImplementation(ctx context.Context, bytecode []byte, gasLimit uint64) (DeployResult, error) {
	if gasLimit == 0 {
		var err error
		if gasLimit, err = d.estimateGas(ctx, nil, bytecode); err != nil {
			return DeployResult{}, fmt.Errorf("estimate deployment gas: %w", err)
		}
	}

	nonce, err := d.getNonce(ctx)
	if err != nil {
		return DeployResult{}, err
	}

	contractAddr := crypto.CreateAddress(d.address, nonce)

	//  EIP-1559 only
	tx := types.NewTx(&types.DynamicFeeTx{
		Nonce:     nonce,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      bytecode,
	})

	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return DeployResult{}, err
	}

	return DeployResult{
		TxHash:          txHash,
		ContractAddress: contractAddr,
	}, nil
}

// DeployContract creates a contract from creation bytecode followed by its
// ABI-encoded constructor arguments and waits for the receipt.
func (d *Deployer) DeployContract(ctx context.Context, name string, bytecode, ctorArgs []byte) (common.Address, error) {
	data := append(append([]byte{}, bytecode...), ctorArgs...)
	result, err := d.DeployImplementation(ctx, data, 0)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy %s: %w", name, err)
	}
	receipt, err := d.WaitForReceipt(ctx, result.TxHash)
	if err != nil {
		return common.Address{}, fmt.Errorf("wait %s deployment: %w", name, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Address{}, fmt.Errorf("%s deployment failed: %w", name, &RevertError{TxHash: receipt.TxHash})
	}
	if receipt.ContractAddress != (common.Address{}) {
		return receipt.ContractAddress, nil
	}
	return result.ContractAddress, nil
}

// Transact simulates fn first so a revert surfaces with its decoded reason,
// then signs, sends and waits for the receipt.
func (d *Deployer) Transact(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (*types.Receipt, error) {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", fn.Signature, err)
	}
	return d.TransactInput(ctx, to, input)
}

// TransactInput is Transact for calldata that is already encoded.
func (d *Deployer) TransactInput(ctx context.Context, to common.Address, input []byte) (*types.Receipt, error) {
	if err := d.Simulate(ctx, d.address, to, input); err != nil {
		return nil, err
	}
	gasLimit, err := d.estimateGas(ctx, &to, input)
	if err != nil {
		return nil, err
	}
	nonce, err := d.getNonce(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		Nonce:     nonce,
		To:        &to,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      input,
	})
	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	receipt, err := d.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &RevertError{TxHash: txHash}
	}
	return receipt, nil
}

// SimulateFunc is Simulate for an ABI function called by this key.
func (d *Deployer) SimulateFunc(ctx context.Context, to common.Address, fn *w3.Func, args ...any) error {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return fmt.Errorf("encode %s: %w", fn.Signature, err)
	}
	return d.Simulate(ctx, d.address, to, input)
}

func decodeHex(hexStr string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}
