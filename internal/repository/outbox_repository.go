package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
)

const maxLastErrorLen = 500

// OutboxEventModel is the GORM model for the outbox_events table.
type OutboxEventModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	EventType   string          `gorm:"not null;size:50"`
	BookingID   *uuid.UUID      `gorm:"type:uuid"`
	RideID      uuid.UUID       `gorm:"type:uuid;not null"`
	ActorID     *uuid.UUID      `gorm:"type:uuid"`
	Payload     json.RawMessage `gorm:"type:jsonb;not null"`
	OccurredAt  time.Time       `gorm:"not null;index"`
	PublishedAt *time.Time      `gorm:""`
	Attempts    int             `gorm:"not null;default:0"`
	LastError   string          `gorm:"size:500"`
}

// TableName returns the table name for the GORM model.
func (OutboxEventModel) TableName() string {
	return "outbox_events"
}

// GormOutboxRepository is the GORM-based implementation of OutboxRepository.
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GormOutboxRepository.
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Relay claims a batch with FOR UPDATE SKIP LOCKED so concurrent relays never
// publish the same row, and records each publish result in the same transaction.
func (r *GormOutboxRepository) Relay(ctx context.Context, limit int, publish func(context.Context, bookingDomain.Event) error) (int, error) {
	published := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []OutboxEventModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("published_at IS NULL").
			Order("occurred_at ASC").
			Limit(limit).
			Find(&models).Error; err != nil {
			return fmt.Errorf("failed to claim outbox events: %w", err)
		}

		for i := range models {
			m := &models[i]
			ev, err := toDomainEvent(m)
			if err != nil {
				return err
			}

			if pubErr := publish(ctx, ev); pubErr != nil {
				msg := pubErr.Error()
				if len(msg) > maxLastErrorLen {
					msg = msg[:maxLastErrorLen]
				}
				if err := tx.Model(&OutboxEventModel{}).
					Where("id = ?", m.ID).
					Updates(map[string]interface{}{
						"attempts":   gorm.Expr("attempts + 1"),
						"last_error": msg,
					}).Error; err != nil {
					return fmt.Errorf("failed to record outbox failure: %w", err)
				}
				continue
			}

			if err := tx.Model(&OutboxEventModel{}).
				Where("id = ?", m.ID).
				Update("published_at", time.Now().UTC()).Error; err != nil {
				return fmt.Errorf("failed to mark outbox event published: %w", err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// CountPending returns the number of unpublished events.
func (r *GormOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&OutboxEventModel{}).
		Where("published_at IS NULL").
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return n, nil
}

func toOutboxModel(ev bookingDomain.Event) (*OutboxEventModel, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &OutboxEventModel{
		ID:         ev.ID,
		EventType:  string(ev.Type),
		BookingID:  nullableID(ev.BookingID),
		RideID:     ev.RideID,
		ActorID:    nullableID(ev.ActorID),
		Payload:    payload,
		OccurredAt: ev.OccurredAt,
	}, nil
}

func toDomainEvent(m *OutboxEventModel) (bookingDomain.Event, error) {
	payload := map[string]any{}
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return bookingDomain.Event{}, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
	}
	ev := bookingDomain.Event{
		ID:         m.ID,
		Type:       bookingDomain.EventType(m.EventType),
		RideID:     m.RideID,
		OccurredAt: m.OccurredAt,
		Payload:    payload,
	}
	if m.BookingID != nil {
		ev.BookingID = *m.BookingID
	}
	if m.ActorID != nil {
		ev.ActorID = *m.ActorID
	}
	return ev, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
