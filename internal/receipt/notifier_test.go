package receipt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallparish/offertory/internal/clock"
	"github.com/smallparish/offertory/internal/contribution/domain"
	"github.com/smallparish/offertory/internal/contribution/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDBSeq int64

type recordedSend struct {
	to      []string
	subject string
	body    string
}

type recordingProvider struct {
	mu   sync.Mutex
	sent []recordedSend
	err  error
}

func (p *recordingProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, recordedSend{to: to, subject: subject, body: htmlBody})
	return nil
}

func newTestNotifier(t *testing.T) (*Notifier, *gorm.DB, *recordingProvider, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:receipt_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Contribution{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	provider := &recordingProvider{}
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	notifier := NewNotifier(repository.Provide(), provider, nil, fc, nil, zap.NewNop())

	return notifier, db, provider, node
}

func seed(t *testing.T, db *gorm.DB, node *snowflake.Node, mutate func(*domain.Contribution)) *domain.Contribution {
	t.Helper()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	item := &domain.Contribution{
		ID:               node.Generate(),
		TenantID:         node.Generate(),
		FundID:           "general",
		DonorName:        "Pat Donor",
		DonorEmail:       "pat@example.org",
		AmountCents:      2500,
		Currency:         "USD",
		PaymentMethod:    "card",
		PaymentStatus:    domain.StatusSucceeded,
		GatewayPaymentID: "pay_123456789012345",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if mutate != nil {
		mutate(item)
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestSendIfNeeded_SendsOnceAndRendersAmount(t *testing.T) {
	notifier, db, provider, node := newTestNotifier(t)
	ctx := context.Background()

	item := seed(t, db, node, nil)

	require.NoError(t, notifier.SendIfNeeded(ctx, db, item))
	require.Len(t, provider.sent, 1)

	send := provider.sent[0]
	require.Equal(t, []string{"pat@example.org"}, send.to)
	require.Equal(t, "Thank you for your gift", send.subject)
	require.Contains(t, send.body, "$25.00")
	require.Contains(t, send.body, "Pat Donor")
	require.Contains(t, send.body, "general")
	require.Contains(t, send.body, "pay_12345678")

	var reloaded domain.Contribution
	require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
	require.NotNil(t, reloaded.ReceiptSentAt)

	// A fresh copy of the row without the in-memory short-circuit still
	// loses the conditional claim.
	reloaded.ReceiptSentAt = nil
	require.NoError(t, notifier.SendIfNeeded(ctx, db, &reloaded))
	require.Len(t, provider.sent, 1)
}

func TestSendIfNeeded_SkipsWhenAlreadySent(t *testing.T) {
	notifier, db, provider, node := newTestNotifier(t)

	sentAt := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	item := seed(t, db, node, func(c *domain.Contribution) {
		c.ReceiptSentAt = &sentAt
	})

	require.NoError(t, notifier.SendIfNeeded(context.Background(), db, item))
	require.Empty(t, provider.sent)
}

func TestSendIfNeeded_NoDonorEmail(t *testing.T) {
	notifier, db, provider, node := newTestNotifier(t)

	item := seed(t, db, node, func(c *domain.Contribution) {
		c.DonorEmail = ""
	})

	require.NoError(t, notifier.SendIfNeeded(context.Background(), db, item))
	require.Empty(t, provider.sent)

	var reloaded domain.Contribution
	require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
	require.Nil(t, reloaded.ReceiptSentAt)
}

func TestSendIfNeeded_ProviderFailureIsSwallowed(t *testing.T) {
	notifier, db, provider, node := newTestNotifier(t)
	provider.err = errors.New("smtp down")

	item := seed(t, db, node, nil)

	require.NoError(t, notifier.SendIfNeeded(context.Background(), db, item))
	require.Empty(t, provider.sent)

	// The claim stands even though the send failed: at-most-once.
	var reloaded domain.Contribution
	require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
	require.NotNil(t, reloaded.ReceiptSentAt)
}

func TestSendPaymentNotice(t *testing.T) {
	notifier, _, provider, node := newTestNotifier(t)

	subID := "sub_1"
	item := &domain.Contribution{
		ID:             node.Generate(),
		DonorName:      "Jo Giver",
		DonorEmail:     "jo@example.org",
		FundID:         "building",
		AmountCents:    7550,
		Currency:       "USD",
		IsRecurring:    true,
		SubscriptionID: &subID,
	}

	require.NoError(t, notifier.SendPaymentNotice(context.Background(), item))
	require.Len(t, provider.sent, 1)
	require.Equal(t, "Your payment method needs attention", provider.sent[0].subject)
	require.Contains(t, provider.sent[0].body, "$75.50")
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		cents    int64
		currency string
		want     string
	}{
		{2500, "USD", "$25.00"},
		{2500, "usd", "$25.00"},
		{5, "USD", "$0.05"},
		{123456, "EUR", "€1234.56"},
		{7550, "GBP", "£75.50"},
		{-2500, "USD", "-$25.00"},
		{100, "SEK", "1.00 SEK"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.cents, tc.currency); got != tc.want {
			t.Fatalf("FormatAmount(%d, %q) = %q, want %q", tc.cents, tc.currency, got, tc.want)
		}
	}
}
