package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/cache"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

func TestVerifyCode_ScenarioA(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.codes = []string{"482913"}
	f.request(t, "user@example.com")

	_, err := f.verify("user@example.com", "111111")
	assertKind(t, err, entity.KindInvalidCode)

	out, err := f.verify("user@example.com", "482913")
	if err != nil {
		t.Fatalf("VerifyCode() error = %v", err)
	}
	if !out.Verified || !out.VerifiedAt.Equal(t0) {
		t.Fatalf("output = %+v", out)
	}

	_, err = f.verify("user@example.com", "482913")
	assertKind(t, err, entity.KindNotFound)
}

func TestVerifyCode_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		kind    string
	}{
		{name: "just before ttl", advance: 5*time.Minute - time.Second},
		{name: "exactly at ttl", advance: 5 * time.Minute},
		{name: "past ttl", advance: 5*time.Minute + time.Second, kind: entity.KindExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.gen.codes = []string{"123456"}
			f.request(t, "a@x.co")

			f.clock.Advance(tt.advance)
			_, err := f.verify("a@x.co", "123456")

			if tt.kind == "" {
				if err != nil {
					t.Fatalf("VerifyCode() error = %v", err)
				}
				return
			}
			assertKind(t, err, tt.kind)

			// expired records are cleared on detection
			_, err = f.verify("a@x.co", "123456")
			assertKind(t, err, entity.KindNotFound)
		})
	}
}

func TestVerifyCode_NewRequestInvalidatesOldCode(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.codes = []string{"111111", "222222"}
	f.request(t, "a@x.co")
	f.request(t, "a@x.co")

	_, err := f.verify("a@x.co", "111111")
	assertKind(t, err, entity.KindInvalidCode)

	if _, err := f.verify("a@x.co", "222222"); err != nil {
		t.Fatalf("VerifyCode(new code) error = %v", err)
	}
}

func TestVerifyCode_AttemptBudget(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Dependency) { c.MaxAttempts = 3 })
	f.gen.codes = []string{"654321"}
	f.request(t, "a@x.co")

	// wrong guesses inside the budget do not consume the record
	for range 2 {
		_, err := f.verify("a@x.co", "000001")
		assertKind(t, err, entity.KindInvalidCode)
	}
	rec, _ := f.store.Get(context.Background(), "a@x.co")
	if rec.AttemptsRemaining != 1 {
		t.Fatalf("AttemptsRemaining = %d, want 1", rec.AttemptsRemaining)
	}

	// the last allowed miss revokes the code
	_, err := f.verify("a@x.co", "000001")
	assertKind(t, err, entity.KindInvalidCode)

	_, err = f.verify("a@x.co", "654321")
	assertKind(t, err, entity.KindNotFound)
}

func TestVerifyCode_WrongThenRightWithinBudget(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.codes = []string{"654321"}
	f.request(t, "a@x.co")

	_, _ = f.verify("a@x.co", "000001")
	if _, err := f.verify("a@x.co", "654321"); err != nil {
		t.Fatalf("VerifyCode() error = %v", err)
	}
}

func TestVerifyCode_UnlimitedAttempts(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Dependency) { c.MaxAttempts = 0 })
	f.gen.codes = []string{"777777"}
	f.request(t, "a@x.co")

	for range 20 {
		_, err := f.verify("a@x.co", "000001")
		assertKind(t, err, entity.KindInvalidCode)
	}

	rec, _ := f.store.Get(context.Background(), "a@x.co")
	if rec.AttemptsRemaining != entity.UnlimitedAttempts {
		t.Fatalf("AttemptsRemaining = %d", rec.AttemptsRemaining)
	}
	if _, err := f.verify("a@x.co", "777777"); err != nil {
		t.Fatalf("VerifyCode() error = %v", err)
	}
}

func TestVerifyCode_NoPendingCode(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.verify("nobody@example.com", "123456")

	assertKind(t, err, entity.KindNotFound)
}

func TestVerifyCode_InvalidArgument(t *testing.T) {
	tests := []struct {
		name string
		in   VerifyCodeInput
	}{
		{name: "empty identity", in: VerifyCodeInput{Code: "123456"}},
		{name: "empty code", in: VerifyCodeInput{Identity: "a@x.co"}},
		{name: "letters", in: VerifyCodeInput{Identity: "a@x.co", Code: "12ab56"}},
		{name: "short", in: VerifyCodeInput{Identity: "a@x.co", Code: "12345"}},
		{name: "long", in: VerifyCodeInput{Identity: "a@x.co", Code: "1234567"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.uc.VerifyCode(context.Background(), tt.in)

			assertKind(t, err, entity.KindInvalidArgument)
		})
	}
}

func TestVerifyCode_ConcurrentCorrectCode(t *testing.T) {
	// Arrange
	f := newFixture(t, nil)
	f.gen.codes = []string{"314159"}
	f.request(t, "race@x.co")

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)

	// Act
	for range n {
		wg.Go(func() {
			_, err := f.verify("race@x.co", "314159")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case goerror.KindOf(err) == entity.KindNotFound:
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	// Assert
	if successes != 1 || notFound != n-1 {
		t.Fatalf("successes = %d, notFound = %d", successes, notFound)
	}
}

func TestVerifyCode_ConcurrentWrongGuessesOnRedis(t *testing.T) {
	// Arrange
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(c *Config, d *Dependency) {
		c.MaxAttempts = 1000
		c.OperationTimeout = 10 * time.Second
		d.RepoStore = cache.New(client, 0, instrument.NewNoop())
		d.Clock = clock.NewManual(time.Now().UTC())
	})
	f.gen.codes = []string{"271828"}
	f.request(t, "busy@x.co")

	const n = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid int
	)

	// Act
	for range n {
		wg.Go(func() {
			_, err := f.verify("busy@x.co", "111111")

			mu.Lock()
			defer mu.Unlock()
			if goerror.KindOf(err) == entity.KindInvalidCode {
				invalid++
				return
			}
			t.Errorf("unexpected error: %v", err)
		})
	}
	wg.Wait()

	// Assert
	if invalid != n {
		t.Fatalf("invalid = %d, want %d", invalid, n)
	}
	if got := mr.HGet("otp:busy@x.co", "attempts"); got != "936" {
		t.Fatalf("attempts = %q, want 936", got)
	}
}

func TestVerifyCode_StoreFailures(t *testing.T) {
	f := newFixture(t, func(c *Config, d *Dependency) {
		c.OperationTimeout = 20 * time.Millisecond
		d.RepoStore = failingStore{}
	})
	_, err := f.verify("a@x.co", "123456")
	assertKind(t, err, entity.KindTimeout)

	f = newFixture(t, func(_ *Config, d *Dependency) {
		d.RepoStore = failingStore{err: errors.New("READONLY")}
	})
	_, err = f.verify("a@x.co", "123456")
	assertKind(t, err, entity.KindStoreUnavailable)
}

func TestVerifyCode_PublishesEventAndToken(t *testing.T) {
	// Arrange
	var j jwt.JWT
	f := newFixture(t, func(c *Config, d *Dependency) {
		c.VerificationToken = true
		var err error
		j, err = jwt.NewHS512(jwt.Config{
			Secret: []byte(strings.Repeat("s", 64)),
			Issuer: "otpgate",
			TTL:    15 * time.Minute,
			Clock:  d.Clock,
			UUID:   uid.NewUUID(),
		})
		if err != nil {
			t.Fatalf("NewHS512() error = %v", err)
		}
		d.JWT = j
	})
	f.gen.codes = []string{"271828"}
	f.request(t, "a@x.co")

	// Act
	out, err := f.verify("a@x.co", "271828")

	// Assert
	if err != nil {
		t.Fatalf("VerifyCode() error = %v", err)
	}
	if out.VerificationToken == "" {
		t.Fatal("expected verification token")
	}
	claims, err := j.Verify(out.VerificationToken, jwt.PurposeEmailVerified)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "a@x.co" {
		t.Fatalf("subject = %q", claims.Subject)
	}

	if len(f.pub.events) != 1 || f.pub.events[0].Identity != "a@x.co" {
		t.Fatalf("events = %+v", f.pub.events)
	}
}

func TestVerifyCode_PublishFailureDoesNotFailVerification(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.err = errors.New("broker down")
	f.gen.codes = []string{"161803"}
	f.request(t, "a@x.co")

	out, err := f.verify("a@x.co", "161803")
	if err != nil || !out.Verified {
		t.Fatalf("VerifyCode() = %+v, %v", out, err)
	}
	if out.VerificationToken != "" {
		t.Fatal("token must not be minted when disabled")
	}
}
