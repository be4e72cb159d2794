package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallparish/offertory/internal/webhook/domain"
	pkgdb "github.com/smallparish/offertory/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, gatewayEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway_event_id, event_type, payload, received_at, processed_at
		 FROM webhook_events
		 WHERE gateway_event_id = ?
		 LIMIT 1`,
		gatewayEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, gateway_event_id, event_type, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway_event_id) DO NOTHING`,
		event.ID,
		event.GatewayEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}

func (r *repo) ListUnprocessed(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway_event_id, event_type, payload, received_at, processed_at
		 FROM webhook_events
		 WHERE processed_at IS NULL AND received_at < ?
		 ORDER BY received_at ASC
		 LIMIT ?`,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
