package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent performs an atomic insert-if-absent against the unique
	// gateway_event_id index. Returns false when the row already existed.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, gatewayEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	// ListUnprocessed returns accepted events whose handler never completed,
	// oldest first. Feed for the reprocessing sweep.
	ListUnprocessed(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]EventRecord, error)
}
