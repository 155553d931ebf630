package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/nortide/identity/internal/cache"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// EmailVerificationInitResult reports how long the issued code is valid.
type EmailVerificationInitResult struct {
	ExpiresIn int64
}

// EmailVerificationInit issues a six digit code for the user's email and
// publishes it for delivery. Re-initializing replaces any outstanding code
// and resets the attempt budget.
func (s *AuthService) EmailVerificationInit(ctx context.Context, userID string) (*EmailVerificationInitResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Email.Verified {
		return nil, apperrors.InvalidInput("email is already verified")
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	key := cache.Key(cache.FlowVerifyCode, userID)
	if err := s.codes.Put(ctx, key, code, user.Email.Address, s.cfg.VerifyCodeTTL); err != nil {
		return nil, err
	}

	if err := s.producer.PublishEmailVerification(ctx, user.ID, user.Email.Address, code); err != nil {
		// Delivery is best effort; the client can re-init if nothing arrives.
		s.logger.ErrorContext(ctx, "failed to publish user.email_verification event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "email verification started",
		slog.String("user_id", userID),
	)

	return &EmailVerificationInitResult{
		ExpiresIn: int64(s.cfg.VerifyCodeTTL.Seconds()),
	}, nil
}

// EmailVerificationComplete consumes the code and marks the email verified.
// Exceeding the attempt budget deletes the code so the flow must restart.
func (s *AuthService) EmailVerificationComplete(ctx context.Context, userID, code string) error {
	key := cache.Key(cache.FlowVerifyCode, userID)
	res, err := s.codes.Consume(ctx, key, code, s.cfg.MaxCodeAttempts)
	if err != nil {
		return err
	}

	switch res {
	case cache.ConsumeOK:
	case cache.ConsumeWrongCode:
		return apperrors.VerificationCodeInvalid()
	case cache.ConsumeTooManyAttempts:
		return apperrors.TooManyAttempts()
	default:
		return apperrors.VerificationCodeExpired()
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	updated := user.WithEmailVerified(time.Now().UTC())
	if err := s.users.Update(ctx, &updated); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "email verified",
		slog.String("user_id", userID),
	)

	if err := s.producer.PublishEmailVerified(ctx, userID, updated.Email.Address); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.email_verified event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
