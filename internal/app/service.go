/**
 * @description
 * This file contains the core business logic for the treasury-service. The `Service`
 * struct orchestrates the monthly dues lifecycle, coordinating between the repository,
 * the pure domain state machine, and the message broker.
 *
 * Key features:
 * - Monthly templates and idempotent seeding of payment records.
 * - The payment record state machine, with every settlement applied atomically.
 * - The club wallet ledger with optimistic-concurrency retries.
 * - Treasurer views built from records reconciled against the clock.
 * - Fire-and-forget events to RabbitMQ after each committed change.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/pkg/rabbitmq"
	"github.com/google/uuid"
)

const (
	defaultWalletMaxRetries  = 5
	defaultMemberActionLimit = 10
	eventPublishTimeout      = 5 * time.Second
)

// ErrRateLimited is matched by *RateLimitError.
var ErrRateLimited = errors.New("too many requests")

// RateLimitError reports a throttled member action.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests; retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// MemberLimiter decides whether a member may take a self-service action now.
// A refusal is a *RateLimitError; any other error means the limiter is unavailable.
type MemberLimiter interface {
	Allow(ctx context.Context, action string, memberID uuid.UUID) error
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	Location         *time.Location
	WalletMaxRetries int
	MemberLimiter    MemberLimiter
	Clock            func() time.Time
}

// Service provides the core business logic for the club treasury.
type Service struct {
	repo             store.Repository
	eventProducer    rabbitmq.Publisher
	loc              *time.Location
	walletMaxRetries int
	limiter          MemberLimiter
	now              func() time.Time
}

// NewService creates a new treasury service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, opts Options) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	s := &Service{
		repo:             repo,
		eventProducer:    producer,
		loc:              opts.Location,
		walletMaxRetries: opts.WalletMaxRetries,
		limiter:          opts.MemberLimiter,
		now:              opts.Clock,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.walletMaxRetries <= 0 {
		s.walletMaxRetries = defaultWalletMaxRetries
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// publishEvent sends an event after the change it describes has committed. Failures
// are logged and never reach the caller.
func (s *Service) publishEvent(event domain.TreasuryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
	defer cancel()
	if err := s.eventProducer.Publish(ctx, event.EventType, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" event_type=%s event_id=%s err=%v", event.EventType, event.EventID, err)
	}
}

// checkMemberRateLimit throttles member self-service writes when a limiter is set.
// Limiter outages fail open.
func (s *Service) checkMemberRateLimit(ctx context.Context, action string, memberID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Allow(ctx, action, memberID)
	if err == nil || errors.Is(err, ErrRateLimited) {
		return err
	}
	log.Printf("level=warn component=service msg=\"rate limiter unavailable; allowing request\" action=%s member_id=%s err=%v", action, memberID, err)
	return nil
}
