package bootstrap

import (
	"context"
	"fmt"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/internal/verify"
	"github.com/Cainuriel/personal-T-REX/publish"
)

// grantRoles reaches Unpaused and Agent-Granted. Depending on the contract
// version addAgent may be blocked while the token is paused, or unpause may
// require the agent role, so the working order is found by simulating the
// grants before anything is sent.
func (s *Sequencer) grantRoles(ctx context.Context, rep *Report) error {
	var order Ordering
	if err := s.retry(ctx, "discover ordering", func() error {
		var err error
		order, err = s.discoverOrder(ctx)
		return err
	}); err != nil {
		return err
	}
	rep.Ordering = order
	s.log.InfoContext(ctx, "role ordering resolved", "ordering", order)

	first, second := s.agentStep(), s.unpauseStep()
	if order == OrderUnpauseFirst {
		first, second = second, first
	}
	if err := s.runStep(ctx, rep, first); err != nil {
		return err
	}
	if err := s.runStep(ctx, rep, second); err != nil {
		return err
	}

	// partial agent state must never be terminal
	agents, err := verify.CheckAgentConsistency(ctx, s.chain, s.chain.Caller())
	if err != nil {
		return err
	}
	return agents.Err()
}

func (s *Sequencer) discoverOrder(ctx context.Context) (Ordering, error) {
	paused, err := s.chain.Paused(ctx)
	if err != nil {
		return "", fmt.Errorf("read paused: %w", err)
	}
	agents, err := verify.CheckAgentConsistency(ctx, s.chain, s.chain.Caller())
	if err != nil {
		return "", err
	}
	if agents.State == verify.AgentPartial {
		s.log.WarnContext(ctx, "caller holds agent role on only one contract",
			"token", agents.Token, "identity_registry", agents.IdentityRegistry)
	}

	if agents.State == verify.AgentFull {
		if paused {
			return OrderAgentFirst, nil
		}
		return OrderSatisfied, nil
	}

	for _, c := range agents.Missing() {
		err := s.chain.SimulateAddAgent(ctx, c)
		switch {
		case err == nil:
			continue
		case trexerr.IsTransient(err):
			return "", err
		case paused && publish.IsPauseRevert(err):
			s.log.InfoContext(ctx, "addAgent blocked while paused", "contract", c, "reason", err)
			if err := s.checkUnpauseWithoutAgent(ctx); err != nil {
				return "", err
			}
			return OrderUnpauseFirst, nil
		default:
			return "", s.addAgentDenied(ctx, c, err)
		}
	}
	return OrderAgentFirst, nil
}

// checkUnpauseWithoutAgent is reached when addAgent cannot run while paused.
// If unpause in turn demands the agent role, neither order can work.
func (s *Sequencer) checkUnpauseWithoutAgent(ctx context.Context) error {
	err := s.chain.SimulateUnpause(ctx)
	switch {
	case err == nil:
		return nil
	case trexerr.IsTransient(err):
		return err
	case publish.IsAgentRoleRevert(err):
		return &trexerr.PermissionError{
			Contract: string(deployment.Token),
			Check:    "unpause/addAgent ordering",
			Expected: "addAgent allowed while paused or unpause allowed without agent role",
			Actual:   "addAgent reverts while paused and unpause requires the agent role",
			Err:      fmt.Errorf("%w: %w", trexerr.ErrCircularPrecondition, err),
		}
	default:
		return s.unpauseDenied(err)
	}
}

func (s *Sequencer) addAgentDenied(ctx context.Context, c deployment.Contract, cause error) error {
	perm := &trexerr.PermissionError{
		Contract: string(c),
		Check:    "addAgent",
		Expected: "caller " + s.chain.Caller().Hex() + " is owner",
		Actual:   "unknown owner",
		Err:      cause,
	}
	if owner, err := s.chain.Owner(ctx, c); err == nil {
		perm.Actual = "owner " + owner.Hex()
	}
	return perm
}

func (s *Sequencer) unpauseDenied(cause error) error {
	return &trexerr.PermissionError{
		Contract: string(deployment.Token),
		Check:    "unpause",
		Expected: "caller " + s.chain.Caller().Hex() + " may unpause",
		Actual:   "reverted",
		Err:      cause,
	}
}

func (s *Sequencer) unpauseStep() step {
	return step{
		name:   StepUnpaused,
		target: string(deployment.Token),
		check: func(ctx context.Context) (bool, error) {
			paused, err := s.chain.Paused(ctx)
			return !paused, err
		},
		apply: func(ctx context.Context) error {
			err := s.chain.Unpause(ctx)
			if err == nil || trexerr.IsTransient(err) {
				return err
			}
			if publish.IsAgentRoleRevert(err) {
				return &trexerr.PermissionError{
					Contract: string(deployment.Token),
					Check:    "unpause",
					Expected: "agent role for " + s.chain.Caller().Hex(),
					Actual:   "isAgent=false",
					Err:      err,
				}
			}
			return s.unpauseDenied(err)
		},
	}
}

func (s *Sequencer) agentStep() step {
	caller := s.chain.Caller()
	full := func(ctx context.Context) (bool, error) {
		agents, err := verify.CheckAgentConsistency(ctx, s.chain, caller)
		return agents.State == verify.AgentFull, err
	}
	return step{
		name:   StepAgentGranted,
		target: caller.Hex(),
		check:  full,
		apply: func(ctx context.Context) error {
			agents, err := verify.CheckAgentConsistency(ctx, s.chain, caller)
			if err != nil {
				return err
			}
			for _, c := range agents.Missing() {
				if err := s.chain.AddAgent(ctx, c, caller); err != nil {
					if trexerr.IsTransient(err) {
						return err
					}
					return s.addAgentDenied(ctx, c, err)
				}
			}
			return nil
		},
	}
}
