package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/pkg/rabbitmq"
	"github.com/google/uuid"
)

// MemberEventConsumer mirrors the user directory into the members table.
type MemberEventConsumer struct {
	repo store.Repository
}

func NewMemberEventConsumer(repo store.Repository) *MemberEventConsumer {
	return &MemberEventConsumer{repo: repo}
}

// Bindings maps the consumed routing keys to their handlers.
func (c *MemberEventConsumer) Bindings() map[string]rabbitmq.Handler {
	return map[string]rabbitmq.Handler{
		domain.EventMemberCreated:     c.HandleUpsert,
		domain.EventMemberUpdated:     c.HandleUpsert,
		domain.EventMemberDeactivated: c.HandleDeactivated,
	}
}

// HandleUpsert applies a created or updated member. Malformed payloads are acked
// and dropped; storage failures are retried.
func (c *MemberEventConsumer) HandleUpsert(body []byte) bool {
	event, ok := decodeMemberEvent(body)
	if !ok {
		return true
	}
	if !event.Year.Valid() {
		log.Printf("member-consumer: unknown year tier %q for member %s; dropping", event.Year, event.MemberID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.upsert(ctx, event); err != nil {
		log.Printf("member-consumer: failed to upsert member %s: %v", event.MemberID, err)
		return false
	}
	return true
}

// HandleDeactivated marks a member inactive so future months skip them.
func (c *MemberEventConsumer) HandleDeactivated(body []byte) bool {
	event, ok := decodeMemberEvent(body)
	if !ok {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	member, err := c.repo.GetMember(ctx, event.MemberID)
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			log.Printf("member-consumer: deactivation for unknown member %s; acknowledging", event.MemberID)
			return true
		}
		log.Printf("member-consumer: lookup failed for member %s: %v", event.MemberID, err)
		return false
	}
	member.Active = false
	if err := c.repo.UpsertMember(ctx, member); err != nil {
		log.Printf("member-consumer: failed to deactivate member %s: %v", event.MemberID, err)
		return false
	}
	return true
}

func (c *MemberEventConsumer) upsert(ctx context.Context, event domain.MemberEvent) error {
	member := &domain.Member{
		ID:     event.MemberID,
		Name:   strings.TrimSpace(event.Name),
		Email:  strings.TrimSpace(event.Email),
		Year:   event.Year,
		Role:   event.Role,
		Active: true,
	}
	if member.Role != domain.RoleTreasurer {
		member.Role = domain.RoleMember
	}
	if event.Active != nil {
		member.Active = *event.Active
	}
	if err := c.repo.UpsertMember(ctx, member); err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func decodeMemberEvent(body []byte) (domain.MemberEvent, bool) {
	var event domain.MemberEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("member-consumer: failed to unmarshal payload: %v", err)
		return event, false
	}
	if event.MemberID == uuid.Nil {
		log.Printf("member-consumer: missing member id in event %+v", event)
		return event, false
	}
	return event, true
}
