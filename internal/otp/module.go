package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/inbound"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/cache"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/db"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/memory"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/mq"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/sender"
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/cooldown"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	pkgotp "github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

var (
	ErrUnknownStore  = errors.New("otp: unknown store driver")
	ErrUnknownSender = errors.New("otp: unknown delivery driver")
	ErrMissingDep    = errors.New("otp: missing dependency for configured driver")

	// ErrNoDeliveryConsumer means codes would be queued on the in-process
	// broker while the notification worker that drains it is disabled.
	ErrNoDeliveryConsumer = errors.New("otp: messaging delivery has no consumer")
)

type Dependency struct {
	// Ctx bounds background jobs (reaper). Nil disables them.
	Ctx         context.Context
	CacheConn   *redis.Client
	DBConn      *pgxpool.Pool
	Messaging   messaging.Messaging
	Mail        mail.Mail
	JWT         jwt.JWT
	Goroutine   *goroutine.Manager         `validate:"required"`
	Router      *router.Router             `validate:"required"`
	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	UID         uid.NumberID               `validate:"required"`
	CodeHash    hash.Hash                  `validate:"required"`
	Fingerprint *hash.HMACSHA256           `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	cfg := dep.Config
	ucCfg := usecaseConfig(cfg)

	generator, err := pkgotp.NewNumeric(intOr(cfg.GetInt("modules.otp.code_length"), 6))
	if err != nil {
		return err
	}

	repo, err := newStore(dep, ucCfg.ExpiredRetention)
	if err != nil {
		return err
	}

	send, err := newSender(dep)
	if err != nil {
		return err
	}

	ucDep := usecase.Dependency{
		Config:      ucCfg,
		RepoStore:   repo,
		RepoSender:  send,
		Generator:   generator,
		CodeHash:    dep.CodeHash,
		Fingerprint: dep.Fingerprint,
		Validator:   dep.Validator,
		UID:         dep.UID,
		Clock:       dep.Clock,
		JWT:         dep.JWT,
		Instrument:  dep.Instrument,
	}
	if pub := newVerifiedPublisher(dep); pub != nil {
		ucDep.RepoMessaging = pub
	}
	if ucCfg.ResendCooldown > 0 {
		if dep.CacheConn != nil {
			ucDep.Cooldown = cooldown.NewRedis(dep.CacheConn)
		} else {
			ucDep.Cooldown = cooldown.NewMemory(dep.Clock)
		}
	}

	uc := usecase.New(ucDep)

	inbound.RegisterHTTPEndpoint(dep.Router, uc, inbound.HTTPConfig{
		GenericErrors: cfg.GetBool("modules.otp.generic_errors"),
	})

	if dep.Ctx != nil && cfg.GetBool("modules.otp.reaper.enabled") {
		inbound.RegisterReaper(dep.Ctx, dep.Goroutine, uc, cfg.GetSecond("modules.otp.reaper.interval_seconds"))
	}

	return nil
}

func usecaseConfig(cfg config.Config) usecase.Config {
	c := usecase.Config{
		TTL:               durationOr(cfg.GetSecond("modules.otp.ttl_seconds"), 5*time.Minute),
		MaxAttempts:       5,
		OperationTimeout:  durationOr(cfg.GetSecond("modules.otp.operation_timeout_seconds"), 3*time.Second),
		ResendCooldown:    cfg.GetSecond("modules.otp.resend_cooldown_seconds"),
		ExpiredRetention:  time.Hour,
		SweepBatchSize:    cfg.GetInt("modules.otp.reaper.batch_size"),
		VerificationToken: cfg.GetBool("modules.otp.verification_token.enabled"),
	}

	// zero is meaningful for these two, so only override when present
	if cfg.IsSet("modules.otp.max_attempts") {
		c.MaxAttempts = cfg.GetInt("modules.otp.max_attempts")
	}
	if cfg.IsSet("modules.otp.expired_retention_seconds") {
		c.ExpiredRetention = cfg.GetSecond("modules.otp.expired_retention_seconds")
	}

	return c
}

type store interface {
	Save(ctx context.Context, rec entity.OTP) error
	Delete(ctx context.Context, identityKey string) error
	Mutate(ctx context.Context, identityKey string, fn func(*entity.OTP) entity.Mutation) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

func newStore(dep Dependency, retention time.Duration) (store, error) {
	driver := strings.ToLower(strings.TrimSpace(dep.Config.GetString("modules.otp.store.driver")))
	if driver == "" {
		driver = StoreRedis
	}

	switch driver {
	case StoreRedis:
		if dep.CacheConn == nil {
			return nil, fmt.Errorf("%w: redis store needs a cache connection", ErrMissingDep)
		}
		return cache.New(dep.CacheConn, retention, dep.Instrument), nil

	case StorePostgres:
		if dep.DBConn == nil {
			return nil, fmt.Errorf("%w: postgres store needs a database connection", ErrMissingDep)
		}
		s := db.NewDB(dep.DBConn, dep.Instrument)
		if dep.Config.GetBool("modules.otp.store.postgres.auto_migrate") {
			ctx := dep.Ctx
			if ctx == nil {
				ctx = context.Background()
			}
			if err := s.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("otp: migrate: %w", err)
			}
			slog.Info("otp schema migrated")
		}
		return s, nil

	case StoreMemory:
		slog.Warn("otp store is in memory, codes are lost on restart and not shared between replicas")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, driver)
	}
}

func newSender(dep Dependency) (*sender.Retrying, error) {
	cfg := dep.Config
	driver := strings.ToLower(strings.TrimSpace(cfg.GetString("modules.otp.delivery.driver")))
	if driver == "" {
		driver = sender.DriverMail
	}

	var next interface {
		Send(ctx context.Context, d usecase.Delivery) error
	}
	switch driver {
	case sender.DriverMail:
		if dep.Mail == nil {
			return nil, fmt.Errorf("%w: mail delivery needs a mail client", ErrMissingDep)
		}
		next = sender.NewMail(dep.Mail, sender.MailConfig{
			From:    cfg.GetString("modules.otp.mail.from"),
			Subject: cfg.GetString("modules.otp.mail.subject"),
			Brand:   cfg.GetString("modules.otp.mail.brand"),
		}, dep.Instrument)

	case sender.DriverMessaging:
		if dep.Messaging == nil {
			return nil, fmt.Errorf("%w: messaging delivery needs a broker", ErrMissingDep)
		}
		if inProcessBroker(dep.Messaging) && !cfg.GetBool("modules.notification.enabled") {
			return nil, fmt.Errorf("%w: enable modules.notification or use an external broker", ErrNoDeliveryConsumer)
		}
		next = sender.NewMessaging(dep.Messaging, dep.Instrument)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSender, driver)
	}

	return sender.NewRetrying(
		next,
		cfg.GetInt("modules.otp.delivery.retries"),
		cfg.GetMillisecond("modules.otp.delivery.backoff_millis"),
		dep.Instrument,
	), nil
}

// newVerifiedPublisher returns nil unless verified events are switched on and
// can leave the process. Nothing in this service consumes otp_verified, so on
// the in-process broker they would only pile up.
func newVerifiedPublisher(dep Dependency) *mq.Messaging {
	if dep.Messaging == nil || !dep.Config.GetBool("modules.otp.verified_event.enabled") {
		return nil
	}
	if inProcessBroker(dep.Messaging) {
		slog.Warn("otp verified events disabled, the memory broker has no consumer for them")
		return nil
	}
	return mq.NewMessaging(dep.Messaging, dep.Instrument)
}

func inProcessBroker(m messaging.Messaging) bool {
	_, ok := m.(*messaging.Memory)
	return ok
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
