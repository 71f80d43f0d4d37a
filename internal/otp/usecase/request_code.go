package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// rollbackTimeout bounds cleanup that runs after the operation deadline may
// already have passed.
const rollbackTimeout = 2 * time.Second

type RequestCodeInput struct {
	Identity    string `validate:"required,email,max=254"`
	DisplayName string `validate:"required,max=100"`
}

type RequestCodeOutput struct {
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

func (s *Usecase) RequestCode(ctx context.Context, in RequestCodeInput) (_ *RequestCodeOutput, err error) {
	ctx, span := s.startSpan(ctx, "RequestCode")
	defer span.End()
	defer func() { s.record(ctx, s.requests, outcomeOf(err)) }()

	in.Identity = normalizeIdentity(in.Identity)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := s.validator.Validate(in); err != nil {
		return nil, entity.ErrInvalidArgument(err)
	}

	fp := s.fingerprint.Fingerprint(in.Identity)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cooling, err := s.acquireCooldown(ctx, in.Identity, fp)
	if err != nil {
		return nil, err
	}

	code, err := s.generator.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate verification code", "identity_fp", fp, "error", err)
		s.releaseCooldown(ctx, cooling, in.Identity, fp)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	rec := entity.OTP{
		ID:                s.uid.Generate(),
		IdentityKey:       in.Identity,
		CodeHash:          s.codeHash.Hash(code),
		DisplayName:       in.DisplayName,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.cfg.TTL),
		AttemptsRemaining: entity.UnlimitedAttempts,
	}
	if s.cfg.MaxAttempts > 0 {
		rec.AttemptsRemaining = s.cfg.MaxAttempts
	}

	if err := s.repoStore.Save(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to repo save otp", "identity_fp", fp, "challenge_id", rec.ID, "error", err)
		s.releaseCooldown(ctx, cooling, in.Identity, fp)
		return nil, infraError(ctx, err)
	}

	if err := s.repoSender.Send(ctx, Delivery{
		ChallengeID: rec.ID,
		Identity:    rec.IdentityKey,
		DisplayName: rec.DisplayName,
		Code:        code,
		ExpiresIn:   s.cfg.TTL,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to send verification code", "identity_fp", fp, "challenge_id", rec.ID, "error", err)
		s.rollback(ctx, rec, cooling, fp)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, entity.ErrTimeout(err)
		}
		return nil, entity.ErrDeliveryFailed(err)
	}

	slog.InfoContext(ctx, "verification code issued", "identity_fp", fp, "challenge_id", rec.ID, "expires_at", rec.ExpiresAt)

	return &RequestCodeOutput{ExpiresAt: rec.ExpiresAt, ExpiresIn: s.cfg.TTL}, nil
}

// rollback removes an undelivered record unless a newer request replaced it.
func (s *Usecase) rollback(ctx context.Context, rec entity.OTP, cooling bool, fp string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	err := s.repoStore.Mutate(ctx, rec.IdentityKey, func(cur *entity.OTP) entity.Mutation {
		if cur.ID != rec.ID {
			return entity.MutationNone
		}
		return entity.MutationDelete
	})
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to roll back undelivered otp", "identity_fp", fp, "challenge_id", rec.ID, "error", err)
	}

	s.releaseCooldown(ctx, cooling, rec.IdentityKey, fp)
}

// acquireCooldown reports whether a cooldown slot is now held. Cooldown
// backend failures do not block issuance.
func (s *Usecase) acquireCooldown(ctx context.Context, identity, fp string) (bool, error) {
	if s.cfg.ResendCooldown <= 0 || s.cooldown == nil {
		return false, nil
	}

	ok, err := s.cooldown.Acquire(ctx, identity, s.cfg.ResendCooldown)
	if err != nil {
		slog.WarnContext(ctx, "failed to acquire resend cooldown", "identity_fp", fp, "error", err)
		return false, nil
	}
	if !ok {
		slog.WarnContext(ctx, "verification code requested during cooldown", "identity_fp", fp)
		return false, entity.ErrRateLimited()
	}

	return true, nil
}

func (s *Usecase) releaseCooldown(ctx context.Context, held bool, identity, fp string) {
	if !held {
		return
	}
	if err := s.cooldown.Release(context.WithoutCancel(ctx), identity); err != nil {
		slog.WarnContext(ctx, "failed to release resend cooldown", "identity_fp", fp, "error", err)
	}
}
