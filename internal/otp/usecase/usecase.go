package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/cooldown"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

// Delivery is what a sender needs to put a code in front of the user.
type Delivery struct {
	ChallengeID int64
	Identity    string
	DisplayName string
	Code        string
	ExpiresIn   time.Duration
}

type VerifiedEvent struct {
	ChallengeID int64
	Identity    string
	VerifiedAt  time.Time
}

type repoStore interface {
	Save(ctx context.Context, rec entity.OTP) error
	Delete(ctx context.Context, identityKey string) error
	// Mutate loads the record for identityKey, lets fn decide, and applies the
	// verdict atomically. fn may run more than once.
	Mutate(ctx context.Context, identityKey string, fn func(*entity.OTP) entity.Mutation) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

type repoSender interface {
	Send(ctx context.Context, d Delivery) error
}

type repoMessaging interface {
	PublishOTPVerified(ctx context.Context, ev VerifiedEvent) error
}

type fingerprinter interface {
	Fingerprint(str string) string
}

// Config is read once at startup; usecases never consult the config source.
type Config struct {
	TTL              time.Duration
	MaxAttempts      int
	OperationTimeout time.Duration
	ResendCooldown   time.Duration
	// ExpiredRetention keeps expired records around so verification can say
	// Expired instead of NotFound. The reaper only removes records older than it.
	ExpiredRetention time.Duration
	SweepBatchSize   int
	// VerificationToken mints a JWT on successful verification.
	VerificationToken bool
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.ExpiredRetention < 0 {
		c.ExpiredRetention = 0
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 500
	}
	return c
}

type Usecase struct {
	cfg           Config
	repoStore     repoStore
	repoSender    repoSender
	repoMessaging repoMessaging
	cooldown      cooldown.Cooldown
	generator     otp.Generator
	codeHash      hash.Hash
	fingerprint   fingerprinter
	validator     validator.Validator
	uid           uid.NumberID
	clock         clock.Clocker
	jwt           jwt.JWT
	ins           instrument.Instrumentation

	requests      metric.Int64Counter
	verifications metric.Int64Counter
	swept         metric.Int64Counter
}

type Dependency struct {
	Config        Config
	RepoStore     repoStore
	RepoSender    repoSender
	RepoMessaging repoMessaging     // optional
	Cooldown      cooldown.Cooldown // optional, needed when ResendCooldown > 0
	Generator     otp.Generator
	CodeHash      hash.Hash
	Fingerprint   fingerprinter
	Validator     validator.Validator
	UID           uid.NumberID
	Clock         clock.Clocker
	JWT           jwt.JWT // optional, needed when VerificationToken is on
	Instrument    instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	s := &Usecase{
		cfg:           dep.Config.withDefaults(),
		repoStore:     dep.RepoStore,
		repoSender:    dep.RepoSender,
		repoMessaging: dep.RepoMessaging,
		cooldown:      dep.Cooldown,
		generator:     dep.Generator,
		codeHash:      dep.CodeHash,
		fingerprint:   dep.Fingerprint,
		validator:     dep.Validator,
		uid:           dep.UID,
		clock:         dep.Clock,
		jwt:           dep.JWT,
		ins:           dep.Instrument,
	}

	meter := s.ins.Meter("otp.usecase")
	s.requests = counter(meter, "otp.requests", "Verification code requests by outcome")
	s.verifications = counter(meter, "otp.verifications", "Verification attempts by outcome")
	s.swept = counter(meter, "otp.reaper.swept", "Expired verification codes removed by the reaper")

	return s
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		slog.Warn("failed to create counter", "name", name, "error", err)
		return metricnoop.Int64Counter{}
	}
	return c
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.usecase").Start(ctx, name)
}

func (s *Usecase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

func (s *Usecase) record(ctx context.Context, c metric.Int64Counter, outcome string) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// infraError classifies a store failure. A passed deadline is a Timeout, the
// rest is StoreUnavailable.
func infraError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return entity.ErrTimeout(err)
	}
	return entity.ErrStoreUnavailable(err)
}

func normalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := goerror.KindOf(err); k != "" {
		return k
	}
	return "error"
}
