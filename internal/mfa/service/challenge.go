// Package service implements the two-factor challenge: issuing, delivering and verifying one-time codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"clavionx/backend/internal/metrics"
	"clavionx/backend/internal/mfa"
	"clavionx/backend/internal/mfa/domain"
	"clavionx/backend/internal/mfa/notify"
	"clavionx/backend/internal/mfa/repository"
	"clavionx/backend/internal/platform/clock"
)

const (
	// DefaultCodeTTL is how long an issued code stays valid.
	DefaultCodeTTL = 10 * time.Minute
	// DefaultUsedRetention is how long used tokens are kept before Cleanup deletes them.
	DefaultUsedRetention = 7 * 24 * time.Hour
)

var (
	ErrCodeInvalid       = errors.New("verification code invalid")
	ErrCodeExpired       = errors.New("verification code expired")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	ErrUnsupportedMethod = errors.New("unsupported two-factor method")
)

// Recipient is where a user's codes are delivered.
type Recipient struct {
	UserID string
	Email  string
	Phone  string
}

// Config configures a ChallengeService. Zero values fall back to the defaults.
type Config struct {
	CodeTTL     time.Duration
	MaxAttempts int
	AppName     string
}

// ChallengeService issues and verifies two-factor codes.
type ChallengeService struct {
	repo        repository.Repository
	notifier    notify.Notifier
	clk         clock.Clock
	codeTTL     time.Duration
	maxAttempts int
	appName     string
}

// NewChallengeService returns a ChallengeService backed by repo that delivers codes through notifier.
func NewChallengeService(repo repository.Repository, notifier notify.Notifier, clk clock.Clock, cfg Config) *ChallengeService {
	s := &ChallengeService{
		repo:        repo,
		notifier:    notifier,
		clk:         clock.OrSystem(clk),
		codeTTL:     cfg.CodeTTL,
		maxAttempts: cfg.MaxAttempts,
		appName:     cfg.AppName,
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = domain.DefaultMaxAttempts
	}
	if s.appName == "" {
		s.appName = "ClavionX"
	}
	return s
}

// Issue supersedes the user's outstanding codes, stores a new one and delivers it. It returns false
// (with a nil error) when delivery fails; the undelivered token is burned so it can never be used.
func (s *ChallengeService) Issue(ctx context.Context, to Recipient, method domain.Method) (bool, error) {
	switch method {
	case domain.MethodEmail, domain.MethodPhone, domain.MethodBoth:
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	code, err := mfa.GenerateOTP()
	if err != nil {
		return false, fmt.Errorf("generate code: %w", err)
	}
	now := s.clk.Now()
	tok := &domain.Token{
		ID:          uuid.New().String(),
		UserID:      to.UserID,
		CodeHash:    mfa.HashOTP(code),
		Method:      method,
		ExpiresAt:   now.Add(s.codeTTL),
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
	}
	if err := s.repo.ReplaceActive(ctx, tok, now); err != nil {
		return false, fmt.Errorf("store token: %w", err)
	}

	if !s.dispatch(ctx, to, method, code) {
		if err := s.repo.Burn(ctx, tok.ID, s.clk.Now()); err != nil {
			log.Printf("mfa: burn undelivered token for user %s: %v", to.UserID, err)
		}
		metrics.TwoFactorIssued.WithLabelValues("failed").Inc()
		return false, nil
	}
	metrics.TwoFactorIssued.WithLabelValues("delivered").Inc()
	return true, nil
}

func (s *ChallengeService) dispatch(ctx context.Context, to Recipient, method domain.Method, code string) bool {
	msg := notify.Message{
		Subject: s.appName + " verification code",
		Text:    fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes.", s.appName, code, int(s.codeTTL/time.Minute)),
		Code:    code,
	}
	sendEmail := func() bool {
		if strings.TrimSpace(to.Email) == "" {
			return false
		}
		if err := s.notifier.Send(ctx, notify.ChannelEmail, to.Email, msg); err != nil {
			log.Printf("mfa: email delivery for user %s failed: %v", to.UserID, err)
			return false
		}
		return true
	}
	sendSMS := func() bool {
		if strings.TrimSpace(to.Phone) == "" {
			log.Printf("mfa: user %s has no phone number on file", to.UserID)
			return false
		}
		if err := s.notifier.Send(ctx, notify.ChannelSMS, to.Phone, msg); err != nil {
			log.Printf("mfa: sms delivery for user %s failed: %v", to.UserID, err)
			return false
		}
		return true
	}
	switch method {
	case domain.MethodEmail:
		return sendEmail()
	case domain.MethodPhone:
		return sendSMS()
	default:
		emailOK := sendEmail()
		smsOK := sendSMS()
		return emailOK || smsOK
	}
}

// Verify consumes the user's valid token matching code. On failure it reports why without changing
// any token: ErrAttemptsExhausted, ErrCodeExpired or ErrCodeInvalid.
func (s *ChallengeService) Verify(ctx context.Context, userID, code string) error {
	if !mfa.WellFormed(code) {
		metrics.TwoFactorVerifications.WithLabelValues("invalid").Inc()
		return ErrCodeInvalid
	}
	now := s.clk.Now()
	tok, err := s.repo.Consume(ctx, userID, mfa.HashOTP(code), now)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if tok != nil {
		metrics.TwoFactorVerifications.WithLabelValues("success").Inc()
		return nil
	}

	latest, err := s.repo.Latest(ctx, userID)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	reason := diagnose(latest, now)
	switch reason {
	case ErrAttemptsExhausted:
		metrics.TwoFactorVerifications.WithLabelValues("exhausted").Inc()
	case ErrCodeExpired:
		metrics.TwoFactorVerifications.WithLabelValues("expired").Inc()
	default:
		metrics.TwoFactorVerifications.WithLabelValues("invalid").Inc()
	}
	return reason
}

func diagnose(latest *domain.Token, now time.Time) error {
	switch {
	case latest == nil || latest.Used:
		return ErrCodeInvalid
	case latest.IsExhausted():
		return ErrAttemptsExhausted
	case latest.IsExpired(now):
		return ErrCodeExpired
	default:
		return ErrCodeInvalid
	}
}

// RecordFailedAttempt counts one wrong attempt against the user's valid token matching code, or
// else against the user's current valid token. It is a no-op when the user has no valid token.
func (s *ChallengeService) RecordFailedAttempt(ctx context.Context, userID, code string) error {
	var codeHash string
	if code != "" {
		codeHash = mfa.HashOTP(code)
	}
	tok, err := s.repo.IncrementAttempts(ctx, userID, codeHash, s.clk.Now())
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if tok != nil && tok.IsExhausted() {
		log.Printf("mfa: verification attempts exhausted for user %s", userID)
	}
	return nil
}

// InvalidateAll voids every code of the user that could still be verified. Returns the number voided.
func (s *ChallengeService) InvalidateAll(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.InvalidateActive(ctx, userID, s.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("invalidate tokens: %w", err)
	}
	return n, nil
}

// HasActiveTokens reports whether the user has a code that can still be verified.
func (s *ChallengeService) HasActiveTokens(ctx context.Context, userID string) (bool, error) {
	ok, err := s.repo.HasValid(ctx, userID, s.clk.Now())
	if err != nil {
		return false, fmt.Errorf("check tokens: %w", err)
	}
	return ok, nil
}

// Cleanup deletes expired tokens and used tokens older than usedRetention. Returns the number removed.
func (s *ChallengeService) Cleanup(ctx context.Context, usedRetention time.Duration) (int, error) {
	if usedRetention <= 0 {
		usedRetention = DefaultUsedRetention
	}
	now := s.clk.Now()
	n, err := s.repo.DeleteStale(ctx, now, now.Add(-usedRetention))
	if err != nil {
		return 0, fmt.Errorf("delete stale tokens: %w", err)
	}
	return n, nil
}
