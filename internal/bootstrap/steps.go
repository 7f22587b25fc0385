package bootstrap

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/internal/verify"
	"github.com/Cainuriel/personal-T-REX/publish"
)

func (s *Sequencer) issuerStep() step {
	issuer := s.opts.Issuer
	required := make([]*big.Int, len(s.opts.ClaimTopics))
	for i, t := range s.opts.ClaimTopics {
		required[i] = big.NewInt(t)
	}

	return step{
		name:   StepIssuerTrusted,
		target: issuer.Hex(),
		check: func(ctx context.Context) (bool, error) {
			trusted, err := s.chain.IsTrustedIssuer(ctx, issuer)
			if err != nil || !trusted {
				return false, err
			}
			topics, err := s.chain.IssuerTopics(ctx, issuer)
			if err != nil {
				return false, err
			}
			return len(missingTopics(topics, required)) == 0, nil
		},
		apply: func(ctx context.Context) error {
			trusted, err := s.chain.IsTrustedIssuer(ctx, issuer)
			if err != nil {
				return err
			}
			if !trusted {
				return s.chain.AddTrustedIssuer(ctx, issuer, required)
			}
			// already trusted for other topics: addTrustedIssuer would revert
			topics, err := s.chain.IssuerTopics(ctx, issuer)
			if err != nil {
				return err
			}
			return s.chain.UpdateIssuerTopics(ctx, issuer, append(topics, missingTopics(topics, required)...))
		},
	}
}

func missingTopics(have, want []*big.Int) []*big.Int {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t.String()] = true
	}
	var out []*big.Int
	for _, t := range want {
		if !set[t.String()] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// identityStep registers inv.Wallet. A verified wallet is left alone; a
// wallet whose storage holds an identity the registry does not verify is
// fatal unless repair is enabled, in which case the identity is deleted and
// registered again.
func (s *Sequencer) identityStep(inv Investor) step {
	wallet := inv.Wallet
	country := inv.Country
	if country == 0 {
		country = DefaultCountry
	}

	return step{
		name:   StepIdentityRegistered,
		target: wallet.Hex(),
		check: func(ctx context.Context) (bool, error) {
			rep, err := verify.CheckIdentityConsistency(ctx, s.chain, wallet)
			if err != nil {
				return false, err
			}
			switch rep.State {
			case verify.IdentityVerified:
				if inv.Identity != (common.Address{}) && rep.Stored != inv.Identity {
					s.log.WarnContext(ctx, "wallet verified with a different identity",
						"wallet", wallet.Hex(), "stored", rep.Stored.Hex(), "configured", inv.Identity.Hex())
				}
				return true, nil
			case verify.IdentityStoredUnverified:
				if !s.opts.RepairIdentities {
					return false, rep.Anomaly()
				}
			}
			return false, nil
		},
		apply: func(ctx context.Context) error {
			rep, err := verify.CheckIdentityConsistency(ctx, s.chain, wallet)
			if err != nil {
				return err
			}
			if rep.State == verify.IdentityStoredUnverified {
				s.log.WarnContext(ctx, "deleting inconsistent identity", "wallet", wallet.Hex(), "stored", rep.Stored.Hex())
				if err := s.chain.DeleteIdentity(ctx, wallet); err != nil {
					return err
				}
			}
			identity, err := s.identityFor(ctx, inv)
			if err != nil {
				return err
			}
			return s.chain.RegisterIdentity(ctx, wallet, identity, country)
		},
		confirm: func(ctx context.Context) (bool, error) {
			rep, err := verify.CheckIdentityConsistency(ctx, s.chain, wallet)
			if err != nil {
				return false, err
			}
			if rep.State == verify.IdentityStoredUnverified {
				// registered but not verified, typically missing claims
				return false, rep.Anomaly()
			}
			if rep.State != verify.IdentityVerified {
				return false, nil
			}
			bound, err := s.chain.Identity(ctx, wallet)
			return bound != (common.Address{}), err
		},
	}
}

func (s *Sequencer) identityFor(ctx context.Context, inv Investor) (common.Address, error) {
	if inv.Identity != (common.Address{}) {
		return inv.Identity, nil
	}
	id, err := s.chain.LookupIdentity(ctx, inv.Wallet)
	if err != nil {
		return common.Address{}, err
	}
	if id != (common.Address{}) {
		return id, nil
	}
	return s.chain.CreateIdentity(ctx, inv.Wallet)
}

// mintStep tops the investor up to the target balance, so a second run
// mints nothing.
func (s *Sequencer) mintStep(inv Investor, decimals uint8) (step, error) {
	target, err := publish.ParseUnits(inv.Amount, decimals)
	if err != nil {
		return step{}, trexerr.Configuration(err, "mint amount for "+inv.Wallet.Hex(), "decimal amount", inv.Amount)
	}

	return step{
		name:   StepTokensMinted,
		target: inv.Wallet.Hex(),
		check: func(ctx context.Context) (bool, error) {
			balance, err := s.chain.BalanceOf(ctx, inv.Wallet)
			if err != nil {
				return false, err
			}
			return balance.Cmp(target) >= 0, nil
		},
		apply: func(ctx context.Context) error {
			balance, err := s.chain.BalanceOf(ctx, inv.Wallet)
			if err != nil {
				return err
			}
			return s.chain.Mint(ctx, inv.Wallet, new(big.Int).Sub(target, balance))
		},
	}, nil
}

// validateTransfer moves TransferAmount from the first investor to the
// second and requires both balances to move by exactly that amount. It is
// not idempotent and runs only when enabled.
func (s *Sequencer) validateTransfer(ctx context.Context, rep *Report, decimals uint8) error {
	if !s.opts.TransferCheck {
		s.record(ctx, rep, PhaseResult{Name: StepTransferValidated, Status: StatusSkipped, Detail: "disabled"})
		return nil
	}
	if len(s.opts.Investors) < 2 {
		return trexerr.Configuration(trexerr.ErrMissingKey, "transfer check", "two investors", len(s.opts.Investors))
	}
	amount, err := publish.ParseUnits(s.opts.TransferAmount, decimals)
	if err != nil {
		return trexerr.Configuration(err, "transfer amount", "decimal amount", s.opts.TransferAmount)
	}
	from, to := s.opts.Investors[0].Wallet, s.opts.Investors[1].Wallet

	ctx, span := s.tracer.Start(ctx, "bootstrap."+StepTransferValidated)
	defer span.End()

	phase := PhaseResult{Name: StepTransferValidated, Target: from.Hex() + "->" + to.Hex()}
	var fromBefore, toBefore *big.Int
	err = s.retry(ctx, "read balances", func() error {
		var err error
		fromBefore, toBefore, err = s.balances(ctx, from, to)
		return err
	})
	if err == nil && fromBefore.Cmp(amount) < 0 {
		err = fmt.Errorf("sender balance %s below transfer amount %s", fromBefore, amount)
	}

	if err == nil {
		err = s.retry(ctx, StepTransferValidated, func() error {
			phase.Attempts++
			fromNow, toNow, err := s.balances(ctx, from, to)
			if err != nil {
				return err
			}
			// a transfer that landed before a transient error is not resent
			if fromNow.Cmp(fromBefore) == 0 && toNow.Cmp(toBefore) == 0 {
				if err := s.chain.Transfer(ctx, from, to, amount); err != nil {
					return err
				}
				if fromNow, toNow, err = s.balances(ctx, from, to); err != nil {
					return err
				}
			}
			sent := new(big.Int).Sub(fromBefore, fromNow)
			received := new(big.Int).Sub(toNow, toBefore)
			if sent.Cmp(amount) != 0 || received.Cmp(amount) != 0 {
				return fmt.Errorf("balances moved by -%s/+%s, expected %s", sent, received, amount)
			}
			return nil
		})
	}

	if err != nil {
		phase.Status = StatusError
		phase.Error = err.Error()
		span.RecordError(err)
		s.record(ctx, rep, phase)
		return fmt.Errorf("%s: %w", StepTransferValidated, err)
	}
	phase.Status = StatusOK
	s.record(ctx, rep, phase)
	return nil
}

func (s *Sequencer) balances(ctx context.Context, a, b common.Address) (*big.Int, *big.Int, error) {
	x, err := s.chain.BalanceOf(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	y, err := s.chain.BalanceOf(ctx, b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}
