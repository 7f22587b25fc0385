// Package suite reads and writes a resolved T-REX deployment on a live
// chain. Reads go through the RPC client; writes are signed by the admin key
// except transfers, which are signed by the investor that sends them.
package suite

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/telemetry"
	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/agentrole"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/identityregistry"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/identityregistrystorage"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/onchainid"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/token"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/trustedissuersregistry"
)

// Caller performs read-only calls. Satisfied by *publish.Client.
type Caller interface {
	Call(ctx context.Context, from, to common.Address, fn *w3.Func, args ...any) ([]any, error)
}

// Signer submits transactions for one key. Satisfied by *publish.Deployer.
type Signer interface {
	Address() common.Address
	Transact(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (*types.Receipt, error)
	SimulateFunc(ctx context.Context, to common.Address, fn *w3.Func, args ...any) error
	DeployContract(ctx context.Context, name string, bytecode, ctorArgs []byte) (common.Address, error)
}

// BytecodeSource resolves creation bytecode by contract name.
type BytecodeSource interface {
	Bytecode(name string) ([]byte, error)
}

type Suite struct {
	reader    Caller
	admin     Signer
	investors map[common.Address]Signer
	code      BytecodeSource
	res       deployment.Resolved
	metrics   *telemetry.Metrics
	log       *slog.Logger
}

type Option func(*Suite)

// WithInvestor registers a signer that can send transfers from its address.
func WithInvestor(s Signer) Option {
	return func(su *Suite) { su.investors[s.Address()] = s }
}

// WithBytecode enables identity deployment on suites without an identity
// factory.
func WithBytecode(code BytecodeSource) Option {
	return func(su *Suite) { su.code = code }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(su *Suite) { su.metrics = m }
}

func New(reader Caller, admin Signer, res deployment.Resolved, log *slog.Logger, opts ...Option) *Suite {
	s := &Suite{
		reader:    reader,
		admin:     admin,
		investors: map[common.Address]Signer{},
		res:       res,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Suite) Resolved() deployment.Resolved { return s.res }

// Caller is the address every admin write is sent from.
func (s *Suite) Caller() common.Address { return s.admin.Address() }

func (s *Suite) addr(c deployment.Contract) common.Address {
	return s.res.Record.Core.Address(c)
}

func (s *Suite) call(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (any, error) {
	out, err := s.reader.Call(ctx, s.admin.Address(), to, fn, args...)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", fn.Signature, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: no return value", fn.Signature, to.Hex())
	}
	return out[0], nil
}

func (s *Suite) callAddress(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (common.Address, error) {
	v, err := s.call(ctx, to, fn, args...)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected %T", fn.Signature, v)
	}
	return a, nil
}

func (s *Suite) callBool(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (bool, error) {
	v, err := s.call(ctx, to, fn, args...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected %T", fn.Signature, v)
	}
	return b, nil
}

func (s *Suite) callBig(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (*big.Int, error) {
	v, err := s.call(ctx, to, fn, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected %T", fn.Signature, v)
	}
	return n, nil
}

func (s *Suite) transact(ctx context.Context, op string, signer Signer, to common.Address, fn *w3.Func, args ...any) error {
	receipt, err := signer.Transact(ctx, to, fn, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.InfoContext(ctx, "transaction confirmed", "op", op, "tx", receipt.TxHash.Hex(), "block", receipt.BlockNumber)
	if s.metrics != nil {
		s.metrics.TxConfirmed(op)
	}
	return nil
}

func (s *Suite) Owner(ctx context.Context, c deployment.Contract) (common.Address, error) {
	return s.callAddress(ctx, s.addr(c), agentrole.FuncOwner)
}

func (s *Suite) IsAgent(ctx context.Context, c deployment.Contract, who common.Address) (bool, error) {
	return s.callBool(ctx, s.addr(c), agentrole.FuncIsAgent, who)
}

func (s *Suite) Paused(ctx context.Context) (bool, error) {
	return s.callBool(ctx, s.addr(deployment.Token), token.FuncPaused)
}

func (s *Suite) IsVerified(ctx context.Context, wallet common.Address) (bool, error) {
	return s.callBool(ctx, s.addr(deployment.IdentityRegistry), identityregistry.FuncIsVerified, wallet)
}

func (s *Suite) Identity(ctx context.Context, wallet common.Address) (common.Address, error) {
	return s.callAddress(ctx, s.addr(deployment.IdentityRegistry), identityregistry.FuncIdentity, wallet)
}

// StoredIdentity reads the storage contract directly where the version
// allows it and falls back to the registry view otherwise.
func (s *Suite) StoredIdentity(ctx context.Context, wallet common.Address) (common.Address, error) {
	if !s.res.Capabilities.StoredIdentity {
		return s.Identity(ctx, wallet)
	}
	return s.callAddress(ctx, s.addr(deployment.IdentityRegistryStorage), identityregistrystorage.FuncStoredIdentity, wallet)
}

func (s *Suite) IsTrustedIssuer(ctx context.Context, issuer common.Address) (bool, error) {
	return s.callBool(ctx, s.addr(deployment.TrustedIssuersRegistry), trustedissuersregistry.FuncIsTrustedIssuer, issuer)
}

func (s *Suite) IssuerTopics(ctx context.Context, issuer common.Address) ([]*big.Int, error) {
	v, err := s.call(ctx, s.addr(deployment.TrustedIssuersRegistry), trustedissuersregistry.FuncGetTrustedIssuerClaimTopics, issuer)
	if err != nil {
		return nil, err
	}
	topics, ok := v.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getTrustedIssuerClaimTopics: unexpected %T", v)
	}
	return topics, nil
}

func (s *Suite) BalanceOf(ctx context.Context, wallet common.Address) (*big.Int, error) {
	return s.callBig(ctx, s.addr(deployment.Token), token.FuncBalanceOf, wallet)
}

func (s *Suite) Decimals(ctx context.Context) (uint8, error) {
	v, err := s.call(ctx, s.addr(deployment.Token), token.FuncDecimals)
	if err != nil {
		return 0, err
	}
	d, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected %T", v)
	}
	return d, nil
}

// SimulateAddAgent dry-runs addAgent(caller) on c.
func (s *Suite) SimulateAddAgent(ctx context.Context, c deployment.Contract) error {
	return s.admin.SimulateFunc(ctx, s.addr(c), agentrole.FuncAddAgent, s.admin.Address())
}

func (s *Suite) SimulateUnpause(ctx context.Context) error {
	return s.admin.SimulateFunc(ctx, s.addr(deployment.Token), token.FuncUnpause)
}

func (s *Suite) SimulateDeleteIdentity(ctx context.Context, wallet common.Address) error {
	return s.admin.SimulateFunc(ctx, s.addr(deployment.IdentityRegistry), identityregistry.FuncDeleteIdentity, wallet)
}

func (s *Suite) Unpause(ctx context.Context) error {
	return s.transact(ctx, "unpause", s.admin, s.addr(deployment.Token), token.FuncUnpause)
}

func (s *Suite) AddAgent(ctx context.Context, c deployment.Contract, who common.Address) error {
	return s.transact(ctx, "add agent on "+string(c), s.admin, s.addr(c), agentrole.FuncAddAgent, who)
}

func (s *Suite) AddTrustedIssuer(ctx context.Context, issuer common.Address, topics []*big.Int) error {
	return s.transact(ctx, "add trusted issuer", s.admin, s.addr(deployment.TrustedIssuersRegistry),
		trustedissuersregistry.FuncAddTrustedIssuer, issuer, topics)
}

func (s *Suite) UpdateIssuerTopics(ctx context.Context, issuer common.Address, topics []*big.Int) error {
	return s.transact(ctx, "update issuer claim topics", s.admin, s.addr(deployment.TrustedIssuersRegistry),
		trustedissuersregistry.FuncUpdateIssuerClaimTopics, issuer, topics)
}

func (s *Suite) RegisterIdentity(ctx context.Context, wallet, identity common.Address, country uint16) error {
	return s.transact(ctx, "register identity", s.admin, s.addr(deployment.IdentityRegistry),
		identityregistry.FuncRegisterIdentity, wallet, identity, country)
}

func (s *Suite) DeleteIdentity(ctx context.Context, wallet common.Address) error {
	return s.transact(ctx, "delete identity", s.admin, s.addr(deployment.IdentityRegistry),
		identityregistry.FuncDeleteIdentity, wallet)
}

func (s *Suite) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	return s.transact(ctx, "mint", s.admin, s.addr(deployment.Token), token.FuncMint, to, amount)
}

// Transfer sends amount from one of the registered investor signers.
func (s *Suite) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	signer, ok := s.investors[from]
	if !ok {
		return trexerr.Configuration(trexerr.ErrMissingKey, "transfer sender", "investor key for "+from.Hex(), "none configured")
	}
	return s.transact(ctx, "transfer", signer, s.addr(deployment.Token), token.FuncTransfer, to, amount)
}

// LookupIdentity returns the identity the identity factory holds for wallet,
// or the zero address when there is none or the suite has no factory.
func (s *Suite) LookupIdentity(ctx context.Context, wallet common.Address) (common.Address, error) {
	factory := s.res.Record.Infrastructure.IdentityFactory
	if factory == nil {
		return common.Address{}, nil
	}
	return s.callAddress(ctx, *factory, onchainid.FuncGetIdentity, wallet)
}

// CreateIdentity creates an ONCHAINID for wallet. Factory suites go through
// the identity factory with a salt derived from the wallet; manual suites
// deploy a proxy on the implementation authority created with the token's
// own identity.
func (s *Suite) CreateIdentity(ctx context.Context, wallet common.Address) (common.Address, error) {
	if factory := s.res.Record.Infrastructure.IdentityFactory; factory != nil {
		if err := s.transact(ctx, "create identity", s.admin, *factory, onchainid.FuncCreateIdentity, wallet, onchainid.Salt(wallet)); err != nil {
			return common.Address{}, err
		}
		return s.LookupIdentity(ctx, wallet)
	}

	authority, ok := s.res.Record.OnchainIdentity["identityImplementationAuthority"]
	if !ok || s.code == nil {
		return common.Address{}, trexerr.Configuration(trexerr.ErrNoIdentitySource,
			"identity for "+wallet.Hex(), "configured identity, identity factory or identity authority", "none")
	}
	bytecode, err := s.code.Bytecode(onchainid.IdentityProxyName)
	if err != nil {
		return common.Address{}, err
	}
	args, err := onchainid.EncodeProxyConstructor(authority, wallet)
	if err != nil {
		return common.Address{}, err
	}
	id, err := s.admin.DeployContract(ctx, onchainid.IdentityProxyName, bytecode, args)
	if err != nil {
		return common.Address{}, err
	}
	s.log.InfoContext(ctx, "identity deployed", "wallet", wallet.Hex(), "identity", id.Hex())
	if s.metrics != nil {
		s.metrics.TxConfirmed("create identity")
	}
	return id, nil
}

// TokenInfo is the status summary of the token.
type TokenInfo struct {
	Name             string         `json:"name"`
	Symbol           string         `json:"symbol"`
	Decimals         uint8          `json:"decimals"`
	Version          string         `json:"version,omitempty"`
	Owner            common.Address `json:"owner"`
	Paused           bool           `json:"paused"`
	TotalSupply      string         `json:"totalSupply"`
	IdentityRegistry common.Address `json:"identityRegistry"`
	Compliance       common.Address `json:"compliance"`
}

func (s *Suite) TokenInfo(ctx context.Context) (TokenInfo, error) {
	tok := s.addr(deployment.Token)
	info := TokenInfo{Version: s.res.Capabilities.Label}

	var err error
	if info.Name, err = s.callString(ctx, tok, token.FuncName); err != nil {
		return TokenInfo{}, err
	}
	if info.Symbol, err = s.callString(ctx, tok, token.FuncSymbol); err != nil {
		return TokenInfo{}, err
	}
	if info.Decimals, err = s.Decimals(ctx); err != nil {
		return TokenInfo{}, err
	}
	if info.Owner, err = s.Owner(ctx, deployment.Token); err != nil {
		return TokenInfo{}, err
	}
	if info.Paused, err = s.Paused(ctx); err != nil {
		return TokenInfo{}, err
	}
	supply, err := s.callBig(ctx, tok, token.FuncTotalSupply)
	if err != nil {
		return TokenInfo{}, err
	}
	info.TotalSupply = supply.String()
	if info.IdentityRegistry, err = s.callAddress(ctx, tok, token.FuncIdentityRegistry); err != nil {
		return TokenInfo{}, err
	}
	if info.Compliance, err = s.callAddress(ctx, tok, token.FuncCompliance); err != nil {
		return TokenInfo{}, err
	}
	return info, nil
}

func (s *Suite) callString(ctx context.Context, to common.Address, fn *w3.Func) (string, error) {
	v, err := s.call(ctx, to, fn)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected %T", fn.Signature, v)
	}
	return str, nil
}
