package deployment

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"

	"github.com/Cainuriel/personal-T-REX/publish"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/agentrole"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/claimtopicsregistry"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/identityregistry"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/identityregistrystorage"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/modularcompliance"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/onchainid"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/token"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/trexfactory"
	"github.com/Cainuriel/personal-T-REX/publish/contracts/trustedissuersregistry"
)

// Writer is the signing side used to create a suite. Satisfied by
// *publish.Deployer.
type Writer interface {
	Address() common.Address
	DeployContract(ctx context.Context, name string, bytecode, ctorArgs []byte) (common.Address, error)
	Transact(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (*types.Receipt, error)
	TransactInput(ctx context.Context, to common.Address, input []byte) (*types.Receipt, error)
	Call(ctx context.Context, from, to common.Address, fn *w3.Func, args ...any) ([]any, error)
}

// BytecodeSource resolves creation bytecode by contract name. Satisfied by
// *publish.Artifacts.
type BytecodeSource interface {
	Bytecode(name string) ([]byte, error)
}

type TokenParams struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// CreateParams are the inputs of a new deployment. Zero TokenOwner or Agent
// default to the deployer.
type CreateParams struct {
	Network     Network
	TokenOwner  common.Address
	Agent       common.Address
	Token       TokenParams
	ClaimTopics []int64
}

type Creator struct {
	w     Writer
	code  BytecodeSource
	store *Store
	log   *slog.Logger
	now   func() time.Time
}

func NewCreator(w Writer, code BytecodeSource, store *Store, log *slog.Logger) *Creator {
	return &Creator{w: w, code: code, store: store, log: log, now: time.Now}
}

// Create deploys a full suite with the given strategy, persists the record
// and returns it.
func (c *Creator) Create(ctx context.Context, kind Kind, p CreateParams) (Record, error) {
	deployer := c.w.Address()
	if p.TokenOwner == (common.Address{}) {
		p.TokenOwner = deployer
	}
	if p.Agent == (common.Address{}) {
		p.Agent = deployer
	}

	rec := Record{
		Network:          p.Network,
		DeploymentMethod: kind,
		Timestamp:        c.now().UTC(),
		Deployer:         deployer,
		TokenOwner:       p.TokenOwner,
		Agent:            p.Agent,
	}

	var err error
	switch kind {
	case KindManual:
		err = c.createManual(ctx, &rec, p)
	case KindFactory:
		err = c.createFactory(ctx, &rec, p)
	default:
		return Record{}, fmt.Errorf("unknown deployment kind %q", kind)
	}
	if err != nil {
		return Record{}, err
	}

	path, err := c.store.Save(rec)
	if err != nil {
		return Record{}, fmt.Errorf("persist record: %w", err)
	}
	c.log.InfoContext(ctx, "deployment record saved", "path", path, "kind", kind)
	return rec, nil
}

func (c *Creator) deploy(ctx context.Context, name string, ctorArgs []byte) (common.Address, error) {
	bytecode, err := c.code.Bytecode(name)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := c.w.DeployContract(ctx, name, bytecode, ctorArgs)
	if err != nil {
		return common.Address{}, err
	}
	c.log.InfoContext(ctx, "contract deployed", "contract", name, "address", addr.Hex())
	return addr, nil
}

func (c *Creator) transact(ctx context.Context, what string, to common.Address, fn *w3.Func, args ...any) error {
	if _, err := c.w.Transact(ctx, to, fn, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	c.log.DebugContext(ctx, "transaction confirmed", "op", what)
	return nil
}

func (c *Creator) deployAndInit(ctx context.Context, name string, init *w3.Func) (common.Address, error) {
	addr, err := c.deploy(ctx, name, nil)
	if err != nil {
		return common.Address{}, err
	}
	if err := c.transact(ctx, "init "+name, addr, init); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// createManual deploys and wires each contract individually. Registries come
// before the identity registry, and the identity registry and compliance
// before the token.
func (c *Creator) createManual(ctx context.Context, rec *Record, p CreateParams) error {
	deployer := rec.Deployer

	ctr, err := c.deployAndInit(ctx, claimtopicsregistry.Name(), claimtopicsregistry.FuncInit)
	if err != nil {
		return err
	}
	tir, err := c.deployAndInit(ctx, trustedissuersregistry.Name(), trustedissuersregistry.FuncInit)
	if err != nil {
		return err
	}
	irs, err := c.deployAndInit(ctx, identityregistrystorage.Name(), identityregistrystorage.FuncInit)
	if err != nil {
		return err
	}

	ir, err := c.deploy(ctx, identityregistry.Name(), nil)
	if err != nil {
		return err
	}
	initIR, err := identityregistry.EncodeInit(identityregistry.InitArgs{
		TrustedIssuersRegistry:  tir,
		ClaimTopicsRegistry:     ctr,
		IdentityRegistryStorage: irs,
	})
	if err != nil {
		return fmt.Errorf("encode IdentityRegistry init: %w", err)
	}
	if err := c.transactRaw(ctx, "init IdentityRegistry", ir, initIR); err != nil {
		return err
	}
	if err := c.transact(ctx, "bind identity registry to storage", irs, identityregistrystorage.FuncBindIdentityRegistry, ir); err != nil {
		return err
	}

	mc, err := c.deployAndInit(ctx, modularcompliance.Name(), modularcompliance.FuncInit)
	if err != nil {
		return err
	}

	oid, err := c.deployTokenIdentity(ctx, rec, deployer, p.TokenOwner)
	if err != nil {
		return err
	}

	tok, err := c.deploy(ctx, token.Name(), nil)
	if err != nil {
		return err
	}
	initToken, err := token.EncodeInit(token.InitArgs{
		IdentityRegistry: ir,
		Compliance:       mc,
		Name:             p.Token.Name,
		Symbol:           p.Token.Symbol,
		Decimals:         p.Token.Decimals,
		OnchainID:        oid,
	})
	if err != nil {
		return fmt.Errorf("encode Token init: %w", err)
	}
	if err := c.transactRaw(ctx, "init Token", tok, initToken); err != nil {
		return err
	}
	if err := c.transact(ctx, "bind token to compliance", mc, modularcompliance.FuncBindToken, tok); err != nil {
		return err
	}

	rec.Core = Core{
		Token:                   tok,
		IdentityRegistry:        ir,
		Compliance:              mc,
		IdentityRegistryStorage: irs,
		ClaimTopicsRegistry:     ctr,
		TrustedIssuersRegistry:  tir,
		TokenOnchainID:          &oid,
	}

	// A freshly initialised token is paused. Agent grants that trip over the
	// pause are left to the bootstrap sequencer, which discovers a working
	// order at runtime.
	for _, target := range []struct {
		name string
		addr common.Address
	}{{"token", tok}, {"identity registry", ir}} {
		err := c.transact(ctx, "add agent on "+target.name, target.addr, agentrole.FuncAddAgent, p.Agent)
		if err != nil && !publish.IsPauseRevert(err) {
			return err
		}
		if err != nil {
			c.log.WarnContext(ctx, "agent grant deferred to bootstrap", "contract", target.name, "err", err)
		}
	}

	for _, topic := range p.ClaimTopics {
		if err := c.transact(ctx, fmt.Sprintf("add claim topic %d", topic), ctr, claimtopicsregistry.FuncAddClaimTopic, big.NewInt(topic)); err != nil {
			return err
		}
	}

	if p.TokenOwner != deployer {
		for _, target := range []struct {
			name string
			addr common.Address
		}{
			{"token", tok},
			{"identity registry", ir},
			{"identity registry storage", irs},
			{"claim topics registry", ctr},
			{"trusted issuers registry", tir},
			{"compliance", mc},
		} {
			if err := c.transact(ctx, "transfer ownership of "+target.name, target.addr, agentrole.FuncTransferOwnership, p.TokenOwner); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Creator) transactRaw(ctx context.Context, what string, to common.Address, input []byte) error {
	if _, err := c.w.TransactInput(ctx, to, input); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	c.log.DebugContext(ctx, "transaction confirmed", "op", what)
	return nil
}

// deployTokenIdentity deploys the ONCHAINID of the token: a library-mode
// Identity implementation, its authority and a proxy managed by the owner.
func (c *Creator) deployTokenIdentity(ctx context.Context, rec *Record, deployer, owner common.Address) (common.Address, error) {
	implArgs, err := onchainid.EncodeIdentityConstructor(deployer)
	if err != nil {
		return common.Address{}, err
	}
	impl, err := c.deploy(ctx, onchainid.IdentityName, implArgs)
	if err != nil {
		return common.Address{}, err
	}
	authArgs, err := onchainid.EncodeAuthorityConstructor(impl)
	if err != nil {
		return common.Address{}, err
	}
	auth, err := c.deploy(ctx, onchainid.ImplementationAuthorityName, authArgs)
	if err != nil {
		return common.Address{}, err
	}
	proxyArgs, err := onchainid.EncodeProxyConstructor(auth, owner)
	if err != nil {
		return common.Address{}, err
	}
	oid, err := c.deploy(ctx, onchainid.IdentityProxyName, proxyArgs)
	if err != nil {
		return common.Address{}, err
	}
	rec.OnchainIdentity = map[string]common.Address{
		"identityImplementation":          impl,
		"identityImplementationAuthority": auth,
		"tokenONChainID":                  oid,
	}
	return oid, nil
}

// createFactory deploys the implementations, the implementation authority,
// an identity factory and a TREXFactory, then creates the suite with a
// single deployTREXSuite call. The resulting token is paused and has no
// agents regardless of the agent lists passed in, so none are passed.
func (c *Creator) createFactory(ctx context.Context, rec *Record, p CreateParams) error {
	deployer := rec.Deployer

	impls := map[string]common.Address{}
	for _, name := range []string{
		claimtopicsregistry.Name(),
		trustedissuersregistry.Name(),
		identityregistrystorage.Name(),
		identityregistry.Name(),
		modularcompliance.Name(),
		token.Name(),
	} {
		addr, err := c.deploy(ctx, name, nil)
		if err != nil {
			return err
		}
		impls[name] = addr
	}

	authArgs, err := trexfactory.EncodeAuthorityConstructor()
	if err != nil {
		return err
	}
	ia, err := c.deploy(ctx, trexfactory.ImplementationAuthorityName, authArgs)
	if err != nil {
		return err
	}
	err = c.transact(ctx, "add and use TREX version", ia, trexfactory.FuncAddAndUseTREXVersion,
		trexfactory.SuiteVersion,
		trexfactory.Implementations{
			TokenImplementation: impls[token.Name()],
			CtrImplementation:   impls[claimtopicsregistry.Name()],
			IrImplementation:    impls[identityregistry.Name()],
			IrsImplementation:   impls[identityregistrystorage.Name()],
			TirImplementation:   impls[trustedissuersregistry.Name()],
			McImplementation:    impls[modularcompliance.Name()],
		},
	)
	if err != nil {
		return err
	}

	idFactory, err := c.deployIdentityFactory(ctx, deployer)
	if err != nil {
		return err
	}

	factoryArgs, err := trexfactory.EncodeFactoryConstructor(ia, idFactory)
	if err != nil {
		return err
	}
	factory, err := c.deploy(ctx, trexfactory.FactoryName, factoryArgs)
	if err != nil {
		return err
	}
	if err := c.transact(ctx, "register token factory", idFactory, onchainid.FuncAddTokenFactory, factory); err != nil {
		return err
	}

	salt := fmt.Sprintf("TREX_%d", c.now().UnixMilli())
	topics := make([]*big.Int, len(p.ClaimTopics))
	for i, t := range p.ClaimTopics {
		topics[i] = big.NewInt(t)
	}
	err = c.transact(ctx, "deploy TREX suite", factory, trexfactory.FuncDeployTREXSuite,
		salt,
		trexfactory.TokenDetails{
			Owner:              p.TokenOwner,
			Name:               p.Token.Name,
			Symbol:             p.Token.Symbol,
			Decimals:           p.Token.Decimals,
			IrAgents:           []common.Address{},
			TokenAgents:        []common.Address{},
			ComplianceModules:  []common.Address{},
			ComplianceSettings: [][]byte{},
		},
		trexfactory.ClaimDetails{
			ClaimTopics:  topics,
			Issuers:      []common.Address{},
			IssuerClaims: [][]*big.Int{},
		},
	)
	if err != nil {
		return err
	}

	core, err := c.readSuite(ctx, factory, salt)
	if err != nil {
		return err
	}

	rec.Salt = salt
	rec.Core = core
	rec.Infrastructure = Infrastructure{
		TREXFactory:                 &factory,
		TREXImplementationAuthority: &ia,
		IdentityFactory:             &idFactory,
	}
	rec.Implementations = map[string]common.Address{
		"tokenImplementation":                   impls[token.Name()],
		"claimTopicsRegistryImplementation":     impls[claimtopicsregistry.Name()],
		"trustedIssuersRegistryImplementation":  impls[trustedissuersregistry.Name()],
		"identityRegistryStorageImplementation": impls[identityregistrystorage.Name()],
		"identityRegistryImplementation":        impls[identityregistry.Name()],
		"modularComplianceImplementation":       impls[modularcompliance.Name()],
	}
	return nil
}

func (c *Creator) deployIdentityFactory(ctx context.Context, deployer common.Address) (common.Address, error) {
	implArgs, err := onchainid.EncodeIdentityConstructor(deployer)
	if err != nil {
		return common.Address{}, err
	}
	impl, err := c.deploy(ctx, onchainid.IdentityName, implArgs)
	if err != nil {
		return common.Address{}, err
	}
	authArgs, err := onchainid.EncodeAuthorityConstructor(impl)
	if err != nil {
		return common.Address{}, err
	}
	auth, err := c.deploy(ctx, onchainid.ImplementationAuthorityName, authArgs)
	if err != nil {
		return common.Address{}, err
	}
	factoryArgs, err := onchainid.EncodeFactoryConstructor(auth)
	if err != nil {
		return common.Address{}, err
	}
	return c.deploy(ctx, onchainid.FactoryName, factoryArgs)
}

// readSuite follows the factory's token to the rest of the suite.
func (c *Creator) readSuite(ctx context.Context, factory common.Address, salt string) (Core, error) {
	from := c.w.Address()
	tok, err := c.readAddress(ctx, from, factory, trexfactory.FuncGetToken, salt)
	if err != nil {
		return Core{}, err
	}
	if tok == (common.Address{}) {
		return Core{}, fmt.Errorf("factory has no token for salt %s", salt)
	}
	ir, err := c.readAddress(ctx, from, tok, token.FuncIdentityRegistry)
	if err != nil {
		return Core{}, err
	}
	mc, err := c.readAddress(ctx, from, tok, token.FuncCompliance)
	if err != nil {
		return Core{}, err
	}
	irs, err := c.readAddress(ctx, from, ir, identityregistry.FuncIdentityStorage)
	if err != nil {
		return Core{}, err
	}
	ctr, err := c.readAddress(ctx, from, ir, identityregistry.FuncTopicsRegistry)
	if err != nil {
		return Core{}, err
	}
	tir, err := c.readAddress(ctx, from, ir, identityregistry.FuncIssuersRegistry)
	if err != nil {
		return Core{}, err
	}
	return Core{
		Token:                   tok,
		IdentityRegistry:        ir,
		Compliance:              mc,
		IdentityRegistryStorage: irs,
		ClaimTopicsRegistry:     ctr,
		TrustedIssuersRegistry:  tir,
	}, nil
}

func (c *Creator) readAddress(ctx context.Context, from, to common.Address, fn *w3.Func, args ...any) (common.Address, error) {
	out, err := c.w.Call(ctx, from, to, fn, args...)
	if err != nil {
		return common.Address{}, fmt.Errorf("read %s: %w", fn.Signature, err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("read %s: unexpected %T", fn.Signature, out[0])
	}
	return addr, nil
}
