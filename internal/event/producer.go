package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nortide/identity/internal/domain"
	pkgkafka "github.com/nortide/identity/pkg/kafka"
)

// Kafka topic constants for identity domain events. The notification service
// consumes these to render and deliver email/SMS templates.
const (
	TopicUserRegistered    = "identity.user.registered"
	TopicEmailVerification = "identity.user.email_verification"
	TopicEmailVerified     = "identity.user.email_verified"
	TopicSessionRevoked    = "identity.session.revoked"
)

// Aggregate type constants.
const (
	AggregateTypeUser    = "user"
	AggregateTypeSession = "session"
)

// Source identifier for events originating from the identity service.
const SourceIdentity = "identity"

// UserRegisteredData is the payload for a user.registered welcome event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// EmailVerificationData carries the code for an email verification template.
type EmailVerificationData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Code   string `json:"code"`
}

// EmailVerifiedData is the payload for a user.email_verified event.
type EmailVerifiedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// SessionRevokedData is the payload for a session.revoked security notification.
type SessionRevokedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Count  int    `json:"count"`
	Reason string `json:"reason"`
}

// Producer publishes identity domain events to Kafka. Callers treat publish
// failures as fire-and-forget: log and continue, never roll back the flow.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the identity service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User, provider string) error {
	data := UserRegisteredData{
		ID:       user.ID,
		Email:    user.Email.Address,
		Name:     user.Name,
		Provider: provider,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID, AggregateTypeUser, SourceIdentity, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
		slog.String("provider", provider),
	)

	return nil
}

// PublishEmailVerification publishes a user.email_verification event carrying
// the code the notification service delivers.
func (p *Producer) PublishEmailVerification(ctx context.Context, userID, email, code string) error {
	data := EmailVerificationData{UserID: userID, Email: email, Code: code}

	event, err := pkgkafka.NewEvent(TopicEmailVerification, userID, AggregateTypeUser, SourceIdentity, data)
	if err != nil {
		return fmt.Errorf("create user.email_verification event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicEmailVerification, event); err != nil {
		return fmt.Errorf("publish user.email_verification event: %w", err)
	}

	return nil
}

// PublishEmailVerified publishes a user.email_verified event.
func (p *Producer) PublishEmailVerified(ctx context.Context, userID, email string) error {
	data := EmailVerifiedData{UserID: userID, Email: email}

	event, err := pkgkafka.NewEvent(TopicEmailVerified, userID, AggregateTypeUser, SourceIdentity, data)
	if err != nil {
		return fmt.Errorf("create user.email_verified event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicEmailVerified, event); err != nil {
		return fmt.Errorf("publish user.email_verified event: %w", err)
	}

	return nil
}

// PublishSessionRevoked publishes a session.revoked security notification.
func (p *Producer) PublishSessionRevoked(ctx context.Context, userID, email, reason string, count int) error {
	data := SessionRevokedData{UserID: userID, Email: email, Count: count, Reason: reason}

	event, err := pkgkafka.NewEvent(TopicSessionRevoked, userID, AggregateTypeSession, SourceIdentity, data)
	if err != nil {
		return fmt.Errorf("create session.revoked event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicSessionRevoked, event); err != nil {
		return fmt.Errorf("publish session.revoked event: %w", err)
	}

	p.logger.DebugContext(ctx, "published session.revoked event",
		slog.String("user_id", userID),
		slog.Int("count", count),
	)

	return nil
}
