// Package bootstrap brings a resolved T-REX suite from "contracts exist" to
// "ready for investor onboarding". Every step checks its condition before
// writing, so a run interrupted at any point resumes from the first unmet
// condition when started again.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/telemetry"
	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/internal/verify"
)

// Chain is the suite as seen by the sequencer. Satisfied by *suite.Suite.
type Chain interface {
	verify.Reader

	Caller() common.Address
	Paused(ctx context.Context) (bool, error)
	Identity(ctx context.Context, wallet common.Address) (common.Address, error)
	IsTrustedIssuer(ctx context.Context, issuer common.Address) (bool, error)
	IssuerTopics(ctx context.Context, issuer common.Address) ([]*big.Int, error)
	BalanceOf(ctx context.Context, wallet common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint8, error)
	LookupIdentity(ctx context.Context, wallet common.Address) (common.Address, error)

	SimulateAddAgent(ctx context.Context, c deployment.Contract) error
	SimulateUnpause(ctx context.Context) error

	Unpause(ctx context.Context) error
	AddAgent(ctx context.Context, c deployment.Contract, who common.Address) error
	AddTrustedIssuer(ctx context.Context, issuer common.Address, topics []*big.Int) error
	UpdateIssuerTopics(ctx context.Context, issuer common.Address, topics []*big.Int) error
	CreateIdentity(ctx context.Context, wallet common.Address) (common.Address, error)
	RegisterIdentity(ctx context.Context, wallet, identity common.Address, country uint16) error
	DeleteIdentity(ctx context.Context, wallet common.Address) error
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// errNotConfirmed is returned when a write succeeded but the condition it
// should establish is not visible yet.
var errNotConfirmed = errors.New("condition not confirmed after write")

type Sequencer struct {
	chain   Chain
	opts    Options
	log     *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

func New(chain Chain, opts Options, log *slog.Logger, metrics *telemetry.Metrics) *Sequencer {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Issuer == (common.Address{}) {
		opts.Issuer = chain.Caller()
	}
	return &Sequencer{
		chain:   chain,
		opts:    opts,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer("trexctl"),
	}
}

// Run executes the whole sequence under the global timeout. The report is
// returned on failure too, with the failed phase last.
func (s *Sequencer) Run(ctx context.Context) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "trex.bootstrap")
	defer span.End()

	rep := &Report{Caller: s.chain.Caller(), Phases: []PhaseResult{}}
	s.log.InfoContext(ctx, "bootstrap started", "caller", rep.Caller.Hex(), "investors", len(s.opts.Investors))

	err := s.run(ctx, rep)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", trexerr.ErrTimeout, s.opts.Timeout, err)
	}

	span.SetAttributes(
		attribute.String("bootstrap.ordering", string(rep.Ordering)),
		attribute.Int("bootstrap.writes", rep.Writes()),
	)
	if err != nil {
		rep.Status = StatusError
		rep.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "bootstrap failed")
		s.log.ErrorContext(ctx, "bootstrap failed", "err", err)
		return rep, err
	}
	rep.Status = StatusOK
	span.SetStatus(codes.Ok, "")
	s.log.InfoContext(ctx, "bootstrap completed", "ordering", rep.Ordering, "writes", rep.Writes())
	return rep, nil
}

func (s *Sequencer) run(ctx context.Context, rep *Report) error {
	if err := s.grantRoles(ctx, rep); err != nil {
		return err
	}
	if err := s.runStep(ctx, rep, s.issuerStep()); err != nil {
		return err
	}

	for _, inv := range s.opts.Investors {
		if err := s.runStep(ctx, rep, s.identityStep(inv)); err != nil {
			return err
		}
	}

	s.record(ctx, rep, PhaseResult{
		Name:   StepClaimsIssued,
		Status: StatusSkipped,
		Detail: "claims are issued outside this tool",
	})

	var decimals uint8
	if err := s.retry(ctx, "read decimals", func() error {
		var err error
		decimals, err = s.chain.Decimals(ctx)
		return err
	}); err != nil {
		return err
	}
	for _, inv := range s.opts.Investors {
		if inv.Amount == "" {
			continue
		}
		st, err := s.mintStep(inv, decimals)
		if err != nil {
			return err
		}
		if err := s.runStep(ctx, rep, st); err != nil {
			return err
		}
	}

	return s.validateTransfer(ctx, rep, decimals)
}

// step is one idempotent unit: check reports whether the condition already
// holds, apply establishes it and confirm (check when nil) verifies it
// afterwards.
type step struct {
	name    string
	target  string
	check   func(context.Context) (bool, error)
	apply   func(context.Context) error
	confirm func(context.Context) (bool, error)
}

// runStep checks, applies and re-checks st. Every attempt starts by reading
// state again, so a write that landed despite a transient error is not
// repeated.
func (s *Sequencer) runStep(ctx context.Context, rep *Report, st step) error {
	ctx, span := s.tracer.Start(ctx, "bootstrap."+st.name, trace.WithAttributes(attribute.String("step.target", st.target)))
	defer span.End()

	confirm := st.confirm
	if confirm == nil {
		confirm = st.check
	}

	phase := PhaseResult{Name: st.name, Target: st.target}
	applied := false
	err := s.retry(ctx, st.name, func() error {
		phase.Attempts++
		check := st.check
		if applied {
			check = confirm
		}
		done, err := check(ctx)
		if err != nil || done {
			return err
		}
		// from here on a write may have landed even if apply fails
		applied = true
		if err := st.apply(ctx); err != nil {
			return err
		}
		done, err = confirm(ctx)
		if err != nil {
			return err
		}
		if !done {
			return errNotConfirmed
		}
		return nil
	})

	switch {
	case err != nil:
		phase.Status = StatusError
		phase.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, st.name+" failed")
	case applied:
		phase.Status = StatusOK
	default:
		phase.Status = StatusSkipped
		phase.Detail = "already satisfied"
	}
	span.SetAttributes(attribute.String("step.status", phase.Status))
	s.record(ctx, rep, phase)

	if err != nil {
		if st.target != "" {
			return fmt.Errorf("%s %s: %w", st.name, st.target, err)
		}
		return fmt.Errorf("%s: %w", st.name, err)
	}
	return nil
}

// retry runs op with exponential backoff. Only transient RPC failures and
// unconfirmed writes are retried; anything else stops at once.
func (s *Sequencer) retry(ctx context.Context, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxRetries)), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || trexerr.IsTransient(err) || errors.Is(err, errNotConfirmed) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		s.log.WarnContext(ctx, "retrying", "step", name, "err", err, "wait", wait)
		if s.metrics != nil {
			s.metrics.Retried(name)
		}
	})
}

func (s *Sequencer) record(ctx context.Context, rep *Report, phase PhaseResult) {
	rep.Phases = append(rep.Phases, phase)
	attrs := []any{"step", phase.Name, "status", phase.Status}
	if phase.Target != "" {
		attrs = append(attrs, "target", phase.Target)
	}
	if phase.Detail != "" {
		attrs = append(attrs, "detail", phase.Detail)
	}
	if phase.Status == StatusError {
		s.log.ErrorContext(ctx, "step finished", append(attrs, "err", phase.Error)...)
	} else {
		s.log.InfoContext(ctx, "step finished", attrs...)
	}
	if s.metrics != nil {
		s.metrics.StepFinished(phase.Name, phase.Status)
	}
}
