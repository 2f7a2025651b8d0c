package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sushilparajuli/note-app-fullstack/internal/domain"
	pkgkafka "github.com/sushilparajuli/note-app-fullstack/pkg/kafka"
)

// Kafka topic constants for user domain events.
const (
	TopicUserRegistered = "noteapp.user.registered"
	TopicUserDeleted    = "noteapp.user.deleted"
)

const aggregateTypeUser = "user"

const sourceAuthService = "auth-service"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserDeletedData is the payload for a user.deleted event.
type UserDeletedData struct {
	ID string `json:"id"`
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID, aggregateTypeUser, sourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, userID string) error {
	data := UserDeletedData{ID: userID}

	event, err := pkgkafka.NewEvent(TopicUserDeleted, userID, aggregateTypeUser, sourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserDeleted, event); err != nil {
		return fmt.Errorf("publish user.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.deleted event",
		slog.String("user_id", userID),
	)

	return nil
}
