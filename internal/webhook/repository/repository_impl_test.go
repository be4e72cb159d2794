package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallparish/offertory/internal/webhook/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDBSeq int64

func newTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:webhook_repo_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.EventRecord{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return db, node
}

func TestInsertEvent_DedupByGatewayEventID(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := &domain.EventRecord{
		ID:             node.Generate(),
		GatewayEventID: "evt_1",
		EventType:      string(domain.EventTypePaymentSucceeded),
		Payload:        []byte(`{"id":"evt_1"}`),
		ReceivedAt:     now,
	}
	inserted, err := repo.InsertEvent(ctx, db, first)
	require.NoError(t, err)
	require.True(t, inserted)

	second := &domain.EventRecord{
		ID:             node.Generate(),
		GatewayEventID: "evt_1",
		EventType:      string(domain.EventTypePaymentSucceeded),
		Payload:        []byte(`{"id":"evt_1"}`),
		ReceivedAt:     now.Add(time.Minute),
	}
	inserted, err = repo.InsertEvent(ctx, db, second)
	require.NoError(t, err)
	require.False(t, inserted)

	var n int64
	require.NoError(t, db.Model(&domain.EventRecord{}).Count(&n).Error)
	require.Equal(t, int64(1), n)

	found, err := repo.FindEvent(ctx, db, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, first.ID, found.ID)
}

func TestMarkProcessed(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record := &domain.EventRecord{
		ID:             node.Generate(),
		GatewayEventID: "evt_mark",
		EventType:      string(domain.EventTypeUnknown),
		Payload:        []byte(`{}`),
		ReceivedAt:     now,
	}
	_, err := repo.InsertEvent(ctx, db, record)
	require.NoError(t, err)

	require.NoError(t, repo.MarkProcessed(ctx, db, record.ID, now.Add(time.Second)))

	found, err := repo.FindEvent(ctx, db, "evt_mark")
	require.NoError(t, err)
	require.NotNil(t, found.ProcessedAt)
}

func TestListUnprocessed_OldestFirstWithinWindow(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	insert := func(eventID string, receivedAt time.Time, processed bool) {
		t.Helper()
		record := &domain.EventRecord{
			ID:             node.Generate(),
			GatewayEventID: eventID,
			EventType:      string(domain.EventTypePaymentSucceeded),
			Payload:        []byte(`{}`),
			ReceivedAt:     receivedAt,
		}
		inserted, err := repo.InsertEvent(ctx, db, record)
		require.NoError(t, err)
		require.True(t, inserted)
		if processed {
			require.NoError(t, repo.MarkProcessed(ctx, db, record.ID, receivedAt.Add(time.Second)))
		}
	}

	insert("evt_old", base.Add(-2*time.Hour), false)
	insert("evt_older", base.Add(-3*time.Hour), false)
	insert("evt_done", base.Add(-4*time.Hour), true)
	insert("evt_fresh", base.Add(-time.Minute), false)

	items, err := repo.ListUnprocessed(ctx, db, base.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "evt_older", items[0].GatewayEventID)
	require.Equal(t, "evt_old", items[1].GatewayEventID)
}
