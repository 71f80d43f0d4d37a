package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
)

type VerifyCodeInput struct {
	Identity string `validate:"required,email,max=254"`
	Code     string `validate:"required,digits,max=8"`
}

type VerifyCodeOutput struct {
	Verified          bool
	VerifiedAt        time.Time
	VerificationToken string
	TokenExpiresAt    time.Time
}

type verdict int

const (
	verdictUnknown verdict = iota
	verdictExpired
	verdictMismatch
	verdictExhausted
	verdictVerified
)

func (s *Usecase) VerifyCode(ctx context.Context, in VerifyCodeInput) (_ *VerifyCodeOutput, err error) {
	ctx, span := s.startSpan(ctx, "VerifyCode")
	defer span.End()
	defer func() { s.record(ctx, s.verifications, outcomeOf(err)) }()

	in.Identity = normalizeIdentity(in.Identity)
	in.Code = strings.TrimSpace(in.Code)
	if err := s.validator.Validate(in); err != nil {
		return nil, entity.ErrInvalidArgument(err)
	}
	if n := s.generator.Length(); len(in.Code) != n {
		return nil, entity.ErrInvalidField("code", "Code must be "+strconv.Itoa(n)+" digits")
	}

	fp := s.fingerprint.Fingerprint(in.Identity)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.clock.Now()

	var (
		result    verdict
		challenge int64
		remaining int
	)
	err = s.repoStore.Mutate(ctx, in.Identity, func(rec *entity.OTP) entity.Mutation {
		challenge, remaining, result = rec.ID, rec.AttemptsRemaining, verdictUnknown

		if rec.IsExpired(now) {
			result = verdictExpired
			return entity.MutationDelete
		}

		if !s.codeHash.Verify(rec.CodeHash, in.Code) {
			result = verdictMismatch
			if !rec.Limited() {
				return entity.MutationNone
			}

			rec.AttemptsRemaining--
			remaining = rec.AttemptsRemaining
			if rec.AttemptsRemaining <= 0 {
				result = verdictExhausted
				return entity.MutationDelete
			}
			return entity.MutationUpdate
		}

		result = verdictVerified
		return entity.MutationDelete
	})
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "no pending verification code", "identity_fp", fp)
		return nil, entity.ErrNotFound()
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo mutate otp", "identity_fp", fp, "error", err)
		return nil, infraError(ctx, err)
	}

	switch result {
	case verdictExpired:
		slog.WarnContext(ctx, "verification code expired", "identity_fp", fp, "challenge_id", challenge)
		return nil, entity.ErrExpired()

	case verdictMismatch:
		slog.WarnContext(ctx, "verification code mismatch", "identity_fp", fp, "challenge_id", challenge, "attempts_remaining", remaining)
		return nil, entity.ErrInvalidCode()

	case verdictExhausted:
		slog.WarnContext(ctx, "verification attempts exhausted, code revoked", "identity_fp", fp, "challenge_id", challenge)
		return nil, entity.ErrInvalidCode()

	case verdictVerified:
		return s.verified(ctx, in.Identity, fp, challenge, now), nil

	default:
		slog.ErrorContext(ctx, "store applied no decision", "identity_fp", fp)
		return nil, goerror.NewServer(errors.New("otp: mutate returned without decision"))
	}
}

// verified runs the best-effort follow-ups of a consumed code. The code is
// already gone, so none of them can fail the verification.
func (s *Usecase) verified(ctx context.Context, identity, fp string, challenge int64, at time.Time) *VerifyCodeOutput {
	slog.InfoContext(ctx, "verification code accepted", "identity_fp", fp, "challenge_id", challenge)

	out := &VerifyCodeOutput{Verified: true, VerifiedAt: at}

	if s.repoMessaging != nil {
		if err := s.repoMessaging.PublishOTPVerified(ctx, VerifiedEvent{
			ChallengeID: challenge,
			Identity:    identity,
			VerifiedAt:  at,
		}); err != nil {
			slog.WarnContext(ctx, "failed to publish otp verified event", "identity_fp", fp, "challenge_id", challenge, "error", err)
		}
	}

	if s.cfg.VerificationToken && s.jwt != nil {
		token, exp, err := s.jwt.Generate(identity, jwt.PurposeEmailVerified)
		if err != nil {
			slog.ErrorContext(ctx, "failed to generate verification token", "identity_fp", fp, "challenge_id", challenge, "error", err)
			return out
		}
		out.VerificationToken = token
		out.TokenExpiresAt = exp
	}

	return out
}
